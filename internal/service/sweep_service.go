package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/events"
	"github.com/sst-resolve/resolve-service/internal/lifecycle"
	"github.com/sst-resolve/resolve-service/internal/repository"
	"github.com/sst-resolve/resolve-service/internal/sla"
)

// SweepService detects SLA breaches and escalates overdue tickets as the system actor.
type SweepService struct {
	store       repository.Transactor
	escalations *EscalationService
	machine     *lifecycle.Machine
	logger      *zap.Logger
	batchSize   int
	cooldown    time.Duration
}

// SweepDependencies bundles collaborators.
type SweepDependencies struct {
	Store       repository.Transactor
	Escalations *EscalationService
	Machine     *lifecycle.Machine
	Logger      *zap.Logger
	BatchSize   int
	// AutoEscalateAfter is duration text such as "1 day" or "12 hours".
	AutoEscalateAfter string
}

// SweepReport summarizes one sweep. Overdue counts the tickets past their
// cooldown that were considered for escalation.
type SweepReport struct {
	Overdue   int `json:"overdue"`
	Breached  int `json:"breached"`
	Escalated int `json:"escalated"`
	Failed    int `json:"failed"`
}

// NewSweepService creates the service.
func NewSweepService(deps SweepDependencies) *SweepService {
	machine := deps.Machine
	if machine == nil {
		machine = lifecycle.NewMachine(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &SweepService{
		store:       deps.Store,
		escalations: deps.Escalations,
		machine:     machine,
		logger:      logger,
		batchSize:   batch,
		cooldown:    sla.ParseDuration(deps.AutoEscalateAfter),
	}
}

// SweepOnce stamps first breaches, then escalates overdue tickets whose last
// escalation is older than the cooldown. A failing ticket does not stop the sweep.
func (s *SweepService) SweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.machine.Now()

	breached, err := s.stampBreaches(ctx, now)
	if err != nil {
		return report, err
	}
	report.Breached = breached

	cutoff := now.Add(-s.cooldown)
	overdue, err := s.store.Repositories().Tickets.ListOverdue(ctx, repository.OverdueFilter{
		Now:             now,
		EscalatedBefore: &cutoff,
		Limit:           s.batchSize,
	})
	if err != nil {
		return report, fmt.Errorf("list overdue tickets: %w", err)
	}
	report.Overdue = len(overdue)

	for i := range overdue {
		t := &overdue[i]
		reason := fmt.Sprintf("%s deadline missed", sla.BreachedDeadline(t, now))
		if _, err := s.escalations.Escalate(ctx, domain.SystemActor(), t.ID, reason); err != nil {
			report.Failed++
			s.logger.Warn("auto escalation failed",
				zap.Int64("ticket_id", t.ID),
				zap.Error(err))
			continue
		}
		report.Escalated++
	}

	s.logger.Info("sla sweep finished",
		zap.Int("overdue", report.Overdue),
		zap.Int("breached", report.Breached),
		zap.Int("escalated", report.Escalated),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (s *SweepService) stampBreaches(ctx context.Context, now time.Time) (int, error) {
	stamped := 0
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		stamped = 0
		unstamped, err := repos.Tickets.ListOverdue(ctx, repository.OverdueFilter{
			Now:        now,
			Unbreached: true,
			Limit:      s.batchSize,
		})
		if err != nil {
			return fmt.Errorf("list overdue tickets: %w", err)
		}
		for _, candidate := range unstamped {
			ticket, err := lockTicket(ctx, repos, candidate.ID)
			if err != nil {
				return err
			}
			tr, ok := s.machine.MarkBreached(ticket)
			if !ok {
				continue
			}
			payload := payloadFor(tr)
			payload.Deadline = string(sla.BreachedDeadline(ticket, now))
			payload.DueAt = dueAtFor(ticket, now)
			if err := record(ctx, repos, ticket, tr, events.EventTicketSLABreached, payload); err != nil {
				return err
			}
			stamped++
		}
		return nil
	})
	return stamped, err
}

func dueAtFor(t *domain.Ticket, now time.Time) *time.Time {
	if sla.BreachedDeadline(t, now) == sla.DeadlineAcknowledgement {
		return domain.CloneTime(t.AcknowledgementDueAt)
	}
	return domain.CloneTime(t.ResolutionDueAt)
}
