package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sst-resolve/resolve-service/internal/domain"
	"github.com/sst-resolve/resolve-service/internal/events"
	"github.com/sst-resolve/resolve-service/internal/repository"
)

// OutboxRelay delivers recorded outbox events to publishers and marks them published.
// Rows are claimed with a row lock so several relays can share the table.
type OutboxRelay struct {
	store       repository.Transactor
	publishers  []events.Publisher
	logger      *zap.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

// RelayConfig tunes the relay loop.
type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// RelayResult counts what one pass did.
type RelayResult struct {
	Published int
	Failed    int
}

// NewOutboxRelay constructs the relay with defaults for zero config values.
func NewOutboxRelay(store repository.Transactor, publishers []events.Publisher, logger *zap.Logger, cfg RelayConfig) *OutboxRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxRelay{
		store:       store,
		publishers:  publishers,
		logger:      logger,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the relay loop until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("outbox iteration failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce publishes one batch. Each publisher that accepts an event is
// recorded, so a retry after a partial failure only reaches the ones that failed.
// A failed publish bumps the attempt counter; events at max attempts are no longer fetched.
func (r *OutboxRelay) ProcessOnce(ctx context.Context) (RelayResult, error) {
	var result RelayResult
	err := r.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		result = RelayResult{}
		records, err := repos.Outbox.FetchUnpublished(ctx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox: %w", err)
		}
		for _, record := range records {
			if err := r.publish(ctx, repos, record); err != nil {
				result.Failed++
				level := r.logger.Warn
				if record.Attempts+1 >= r.maxAttempts {
					level = r.logger.Error
				}
				level("outbox publish failed",
					zap.String("outbox_id", record.ID),
					zap.String("event_type", record.EventType),
					zap.Int64("ticket_id", record.TicketID),
					zap.Int("attempts", record.Attempts+1),
					zap.Error(err))
				if err := repos.Outbox.MarkFailed(ctx, record.ID, err.Error()); err != nil {
					return fmt.Errorf("mark outbox %s failed: %w", record.ID, err)
				}
				continue
			}
			if err := repos.Outbox.MarkPublished(ctx, record.ID, r.now()); err != nil {
				return fmt.Errorf("mark outbox %s published: %w", record.ID, err)
			}
			result.Published++
		}
		return nil
	})
	if err != nil {
		return RelayResult{}, err
	}
	if result.Published+result.Failed > 0 {
		r.logger.Info("outbox batch processed",
			zap.Int("published", result.Published),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

func (r *OutboxRelay) publish(ctx context.Context, repos repository.Repositories, record domain.OutboxEvent) error {
	event := events.FromOutbox(record)
	var errs []error
	for _, p := range r.publishers {
		if record.DeliveredVia(p.Name()) {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		if len(r.publishers) > 1 {
			if err := repos.Outbox.MarkDelivered(ctx, record.ID, p.Name()); err != nil {
				return fmt.Errorf("mark outbox %s delivered via %s: %w", record.ID, p.Name(), err)
			}
		}
	}
	return errors.Join(errs...)
}
