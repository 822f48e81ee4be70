package sla

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sst-resolve/resolve-service/internal/domain"
)

// MillisPerHour is the divisor used for every elapsed-hours figure in the service.
const MillisPerHour = 3_600_000

const (
	unitHour  = time.Hour
	unitDay   = 24 * unitHour
	unitWeek  = 7 * unitDay
	unitMonth = 30 * unitDay

	// DefaultDuration applies when a duration text cannot be parsed.
	DefaultDuration = unitDay
)

var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(hour|day|week|month)s?`)

// ComputeDueTimestamp returns created+hours, or nil when there is no budget.
// It is plain elapsed time: no business hours, no rounding.
func ComputeDueTimestamp(created time.Time, hours *int) *time.Time {
	if hours == nil {
		return nil
	}
	due := created.Add(time.Duration(*hours) * unitHour)
	return &due
}

// ParseDuration reads "<n> <unit>" (hour, day, week, month; plural optional, any case).
// The first match wins; anything unparseable or too large for a time.Duration yields
// one day. A month is always 30 days, so callers needing calendar months must not use this.
func ParseDuration(text string) time.Duration {
	match := durationPattern.FindStringSubmatch(text)
	if match == nil {
		return DefaultDuration
	}
	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return DefaultDuration
	}
	var unit time.Duration
	switch strings.ToLower(match[2]) {
	case "hour":
		unit = unitHour
	case "day":
		unit = unitDay
	case "week":
		unit = unitWeek
	default:
		unit = unitMonth
	}
	if n > math.MaxInt64/int64(unit) {
		return DefaultDuration
	}
	return time.Duration(n) * unit
}

// ParseDurationMillis is ParseDuration expressed in milliseconds.
func ParseDurationMillis(text string) int64 {
	return ParseDuration(text).Milliseconds()
}

// HoursBetween returns (to-from) in fractional hours.
func HoursBetween(from, to time.Time) float64 {
	return float64(to.Sub(from).Milliseconds()) / MillisPerHour
}

// Deadline names which SLA deadline a ticket missed.
type Deadline string

const (
	DeadlineNone            Deadline = ""
	DeadlineAcknowledgement Deadline = "acknowledgement"
	DeadlineResolution      Deadline = "resolution"
)

// BreachedDeadline reports the first missed deadline of an active ticket at now.
// The acknowledgement deadline only counts until the ticket is acknowledged.
func BreachedDeadline(t *domain.Ticket, now time.Time) Deadline {
	if t == nil || t.Status.IsTerminal() {
		return DeadlineNone
	}
	if t.AcknowledgedAt == nil && t.AcknowledgementDueAt != nil && t.AcknowledgementDueAt.Before(now) {
		return DeadlineAcknowledgement
	}
	if t.ResolutionDueAt != nil && t.ResolutionDueAt.Before(now) {
		return DeadlineResolution
	}
	return DeadlineNone
}

// IsOverdue reports whether an active ticket has a due timestamp in the past.
func IsOverdue(t *domain.Ticket, now time.Time) bool {
	return BreachedDeadline(t, now) != DeadlineNone
}

// View summarizes a ticket's SLA position for display.
type View struct {
	AcknowledgementDueAt *time.Time `json:"acknowledgement_due_at,omitempty"`
	ResolutionDueAt      *time.Time `json:"resolution_due_at,omitempty"`
	Overdue              bool       `json:"overdue"`
	BreachedDeadline     Deadline   `json:"breached_deadline,omitempty"`
	SLABreachedAt        *time.Time `json:"sla_breached_at,omitempty"`
	HoursToResolution    *float64   `json:"hours_to_resolution,omitempty"`
	TATExtensions        int        `json:"tat_extensions"`
	EscalationLevel      int        `json:"escalation_level"`
}

// Snapshot computes the SLA view of t at now.
func Snapshot(t *domain.Ticket, now time.Time) View {
	v := View{
		AcknowledgementDueAt: t.AcknowledgementDueAt,
		ResolutionDueAt:      t.ResolutionDueAt,
		BreachedDeadline:     BreachedDeadline(t, now),
		SLABreachedAt:        t.SLABreachedAt,
		TATExtensions:        t.TATExtensions,
		EscalationLevel:      t.EscalationLevel,
	}
	v.Overdue = v.BreachedDeadline != DeadlineNone
	if t.ResolutionDueAt != nil && !t.Status.IsTerminal() {
		h := HoursBetween(now, *t.ResolutionDueAt)
		v.HoursToResolution = &h
	}
	return v
}
