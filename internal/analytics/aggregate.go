// Package analytics computes read-only TAT and volume figures over ticket sets.
package analytics

import (
	"time"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/sla"
)

// Span extracts the (from, to) pair measured for one ticket; nil skips the ticket.
type Span func(t *domain.Ticket) (from, to *time.Time)

// AcknowledgementSpan measures creation to first acknowledgement.
func AcknowledgementSpan(t *domain.Ticket) (*time.Time, *time.Time) {
	created := t.CreatedAt
	return &created, t.AcknowledgedAt
}

// ResolutionSpan measures creation to resolution.
func ResolutionSpan(t *domain.Ticket) (*time.Time, *time.Time) {
	created := t.CreatedAt
	return &created, t.ResolvedAt
}

// HoursBetween uses the same definition as the TAT calculator.
func HoursBetween(from, to time.Time) float64 {
	return sla.HoursBetween(from, to)
}

// AverageHoursBetween averages span hours over the tickets where both ends are set.
// It returns the average and how many tickets contributed.
func AverageHoursBetween(tickets []domain.Ticket, span Span) (float64, int) {
	var total float64
	n := 0
	for i := range tickets {
		from, to := span(&tickets[i])
		if from == nil || to == nil {
			continue
		}
		total += HoursBetween(*from, *to)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return total / float64(n), n
}

// Percentage returns part/total*100, or 0 for an empty total.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// Count returns how many tickets satisfy pred.
func Count(tickets []domain.Ticket, pred func(*domain.Ticket) bool) int {
	n := 0
	for i := range tickets {
		if pred(&tickets[i]) {
			n++
		}
	}
	return n
}

// WindowCounts are creation and resolution counts within the last Days days.
type WindowCounts struct {
	Days     int `json:"days"`
	Created  int `json:"created"`
	Resolved int `json:"resolved"`
}

// RollingCounts buckets tickets into the window (now-days, now].
func RollingCounts(tickets []domain.Ticket, now time.Time, days int) WindowCounts {
	since := now.Add(-time.Duration(days) * 24 * time.Hour)
	in := func(ts time.Time) bool { return ts.After(since) && !ts.After(now) }
	wc := WindowCounts{Days: days}
	for i := range tickets {
		t := &tickets[i]
		if in(t.CreatedAt) {
			wc.Created++
		}
		if t.ResolvedAt != nil && in(*t.ResolvedAt) {
			wc.Resolved++
		}
	}
	return wc
}

// Summary is the analytics view served to admins.
type Summary struct {
	GeneratedAt           time.Time                   `json:"generated_at"`
	Total                 int                         `json:"total"`
	ByStatus              map[domain.TicketStatus]int `json:"by_status"`
	Overdue               int                         `json:"overdue"`
	Breached              int                         `json:"breached"`
	Escalated             int                         `json:"escalated"`
	Reopened              int                         `json:"reopened"`
	AvgAcknowledgeHours   float64                     `json:"avg_acknowledge_hours"`
	AvgResolutionHours    float64                     `json:"avg_resolution_hours"`
	ResolvedPercentage    float64                     `json:"resolved_percentage"`
	SLACompliancePercent  float64                     `json:"sla_compliance_percentage"`
	EscalationRatePercent float64                     `json:"escalation_rate_percentage"`
	AverageRating         float64                     `json:"average_rating"`
	RatedCount            int                         `json:"rated_count"`
	LastWeek              WindowCounts                `json:"last_7_days"`
	LastMonth             WindowCounts                `json:"last_30_days"`
}

// Summarize computes the admin summary for tickets at now.
func Summarize(tickets []domain.Ticket, now time.Time) Summary {
	s := Summary{
		GeneratedAt: now,
		Total:       len(tickets),
		ByStatus:    make(map[domain.TicketStatus]int, len(domain.AllTicketStatuses)),
	}
	for _, status := range domain.AllTicketStatuses {
		s.ByStatus[status] = 0
	}

	ratingSum := 0
	for i := range tickets {
		t := &tickets[i]
		s.ByStatus[t.Status]++
		if sla.IsOverdue(t, now) {
			s.Overdue++
		}
		if t.SLABreachedAt != nil {
			s.Breached++
		}
		if t.EscalationLevel > 0 {
			s.Escalated++
		}
		if t.ReopenCount > 0 {
			s.Reopened++
		}
		if t.Rating != nil {
			ratingSum += *t.Rating
			s.RatedCount++
		}
	}

	s.AvgAcknowledgeHours, _ = AverageHoursBetween(tickets, AcknowledgementSpan)
	s.AvgResolutionHours, _ = AverageHoursBetween(tickets, ResolutionSpan)
	s.ResolvedPercentage = Percentage(s.ByStatus[domain.TicketStatusResolved], s.Total)
	s.SLACompliancePercent = Percentage(s.Total-s.Breached, s.Total)
	s.EscalationRatePercent = Percentage(s.Escalated, s.Total)
	if s.RatedCount > 0 {
		s.AverageRating = float64(ratingSum) / float64(s.RatedCount)
	}
	s.LastWeek = RollingCounts(tickets, now, 7)
	s.LastMonth = RollingCounts(tickets, now, 30)
	return s
}
