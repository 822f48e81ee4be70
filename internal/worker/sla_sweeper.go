package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sst-resolve/resolve-service/internal/service"
)

// Sweeper is the single-pass breach sweep.
type Sweeper interface {
	SweepOnce(ctx context.Context) (service.SweepReport, error)
}

// SLASweeper runs the breach sweep on a fixed interval.
type SLASweeper struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewSLASweeper builds the sweeper loop.
func NewSLASweeper(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *SLASweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLASweeper{sweeper: sweeper, interval: interval, logger: logger}
}

// Run sweeps immediately, then once per interval until ctx is cancelled.
func (s *SLASweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.sweeper.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sla sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
