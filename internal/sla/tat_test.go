package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sst-resolve/resolve-service/internal/domain"
)

var created = time.Date(2025, 1, 6, 8, 30, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func TestComputeDueTimestamp(t *testing.T) {
	assert.Nil(t, ComputeDueTimestamp(created, nil))

	due := ComputeDueTimestamp(created, intPtr(48))
	require.NotNil(t, due)
	assert.Equal(t, created.Add(48*time.Hour), *due)

	zero := ComputeDueTimestamp(created, intPtr(0))
	require.NotNil(t, zero)
	assert.Equal(t, created, *zero)
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		text string
		want time.Duration
	}{
		{"2 days", 48 * time.Hour},
		{"1 day", 24 * time.Hour},
		{"3 HOURS", 3 * time.Hour},
		{"1week", 7 * 24 * time.Hour},
		{"2 months", 60 * 24 * time.Hour},
		{"extend by 5 hours please", 5 * time.Hour},
		{"4 hours 2 days", 4 * time.Hour},
		{"soon", 24 * time.Hour},
		{"", 24 * time.Hour},
		{"99999999999 days", 24 * time.Hour},
		{"4000 months", 24 * time.Hour},
		{"3000000 hours", 24 * time.Hour},
		{"99999999999999999999 hours", 24 * time.Hour},
		{"3558 months", 3558 * 30 * 24 * time.Hour},
		{"2562047 hours", 2562047 * time.Hour},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseDuration(tc.text), "ParseDuration(%q)", tc.text)
	}
	assert.Equal(t, int64(3*3_600_000), ParseDurationMillis("3 hours"))

	for _, text := range []string{"4000 months", "3000000 hours", "500000 weeks"} {
		assert.Positive(t, ParseDuration(text), "ParseDuration(%q)", text)
	}
}

func TestHoursBetween(t *testing.T) {
	assert.InDelta(t, 1.5, HoursBetween(created, created.Add(90*time.Minute)), 1e-9)
	assert.InDelta(t, -2.0, HoursBetween(created, created.Add(-2*time.Hour)), 1e-9)
}

func TestBreachedDeadline(t *testing.T) {
	now := created.Add(10 * time.Hour)
	past := created.Add(2 * time.Hour)
	future := created.Add(20 * time.Hour)
	acked := created.Add(time.Hour)

	cases := []struct {
		name   string
		ticket *domain.Ticket
		want   Deadline
	}{
		{"no deadlines", &domain.Ticket{Status: domain.TicketStatusOpen}, DeadlineNone},
		{"ack missed", &domain.Ticket{Status: domain.TicketStatusOpen, AcknowledgementDueAt: &past, ResolutionDueAt: &future}, DeadlineAcknowledgement},
		{"ack missed but acknowledged", &domain.Ticket{Status: domain.TicketStatusInProgress, AcknowledgementDueAt: &past, AcknowledgedAt: &acked, ResolutionDueAt: &future}, DeadlineNone},
		{"resolution missed", &domain.Ticket{Status: domain.TicketStatusInProgress, AcknowledgedAt: &acked, ResolutionDueAt: &past}, DeadlineResolution},
		{"resolved never overdue", &domain.Ticket{Status: domain.TicketStatusResolved, ResolutionDueAt: &past}, DeadlineNone},
		{"due exactly now", &domain.Ticket{Status: domain.TicketStatusOpen, ResolutionDueAt: &now}, DeadlineNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BreachedDeadline(tc.ticket, now))
			assert.Equal(t, tc.want != DeadlineNone, IsOverdue(tc.ticket, now))
		})
	}
	assert.Equal(t, DeadlineNone, BreachedDeadline(nil, now))
}

func TestSnapshot(t *testing.T) {
	now := created.Add(10 * time.Hour)
	due := created.Add(16 * time.Hour)
	ticket := &domain.Ticket{
		Status:          domain.TicketStatusEscalated,
		ResolutionDueAt: &due,
		EscalationLevel: 2,
		TATExtensions:   1,
	}

	view := Snapshot(ticket, now)
	assert.False(t, view.Overdue)
	require.NotNil(t, view.HoursToResolution)
	assert.InDelta(t, 6.0, *view.HoursToResolution, 1e-9)
	assert.Equal(t, 2, view.EscalationLevel)
	assert.Equal(t, 1, view.TATExtensions)

	ticket.Status = domain.TicketStatusResolved
	assert.Nil(t, Snapshot(ticket, now).HoursToResolution)
}
