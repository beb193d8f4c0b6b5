package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"news_syncer/internal/domain"
)

// RunLogger guarantees exactly one RunRecord per source per pass. Start at
// the top of the per-source block, Finish in a defer so every exit path,
// including panics, still writes the record.
type RunLogger struct {
	store  RunLogStore
	logger *slog.Logger
}

func NewRunLogger(store RunLogStore, logger *slog.Logger) *RunLogger {
	return &RunLogger{store: store, logger: logger}
}

// Run is the handle for one in-progress source run.
type Run struct {
	mu       sync.Mutex
	finished bool
	record   domain.RunRecord
}

func (l *RunLogger) Start(source domain.Source) *Run {
	return &Run{
		record: domain.RunRecord{
			SourceID:   source.ID,
			SourceType: source.Type,
			StartedAt:  time.Now().UTC(),
		},
	}
}

// Finish finalizes and appends the record. Safe to call more than once; only
// the first call writes. The append uses a cancellation-free context so a
// stopped pass still gets its records.
func (l *RunLogger) Finish(ctx context.Context, run *Run, outcome *domain.SourceOutcome) {
	run.mu.Lock()
	if run.finished {
		run.mu.Unlock()
		return
	}
	run.finished = true

	run.record.FinishedAt = time.Now().UTC()
	run.record.ItemsFetched = outcome.ItemsFetched
	run.record.ItemsInserted = outcome.ItemsInserted
	run.record.ItemsFailed = outcome.ItemsFailed
	run.record.Status = outcome.Status
	if outcome.Error != "" {
		msg := outcome.Error
		run.record.ErrorMessage = &msg
	}
	record := run.record
	run.mu.Unlock()

	if err := l.store.Append(context.WithoutCancel(ctx), &record); err != nil {
		l.logger.Error("failed to append run record",
			"source_id", record.SourceID,
			"error", err,
		)
	}
}
