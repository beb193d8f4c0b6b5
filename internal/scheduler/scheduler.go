package scheduler

import (
	"context"
	"log/slog"
	"time"

	"news_syncer/internal/domain"
)

// Syncer runs one synchronization pass over the active sources.
type Syncer interface {
	RunPass(ctx context.Context, typeFilter *domain.SourceType) (*domain.PassSummary, error)
}

type Scheduler struct {
	syncer      Syncer
	interval    time.Duration
	passTimeout time.Duration
	typeFilter  *domain.SourceType
	logger      *slog.Logger
}

func NewScheduler(syncer Syncer, interval, passTimeout time.Duration, typeFilter *domain.SourceType, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:      syncer,
		interval:    interval,
		passTimeout: passTimeout,
		typeFilter:  typeFilter,
		logger:      logger,
	}
}

// Start runs a pass immediately, then on every tick until the context is
// cancelled. Passes that outlive the timeout are cut off; the sync service
// stops dispatching new sources and finishes the ones in flight.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "pass_timeout", s.passTimeout)

	s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, s.passTimeout)
	defer cancel()

	if _, err := s.syncer.RunPass(passCtx, s.typeFilter); err != nil {
		s.logger.Error("sync pass failed", "error", err)
	}
}
