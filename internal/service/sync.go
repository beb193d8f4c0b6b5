package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"news_syncer/internal/config"
	"news_syncer/internal/domain"
	"news_syncer/internal/extractor"
	"news_syncer/internal/fingerprint"
	"news_syncer/internal/limiter"
)

// SyncService runs synchronization passes over the source registry. Sources
// of the same type share a bounded worker pool; a pass never aborts because
// one source failed.
type SyncService struct {
	registry   SourceRegistry
	content    ContentStore
	states     ParsingStateStore
	runLog     *RunLogger
	txManager  TransactionManager
	publisher  Publisher
	extractors *extractor.Registry
	limiter    *limiter.Limiter
	logger     *slog.Logger
	cfg        config.SyncConfig

	mu       sync.Mutex
	inFlight map[int64]bool
}

func NewSyncService(
	registry SourceRegistry,
	content ContentStore,
	states ParsingStateStore,
	runLogStore RunLogStore,
	txManager TransactionManager,
	publisher Publisher,
	extractors *extractor.Registry,
	lim *limiter.Limiter,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		registry:   registry,
		content:    content,
		states:     states,
		runLog:     NewRunLogger(runLogStore, logger),
		txManager:  txManager,
		publisher:  publisher,
		extractors: extractors,
		limiter:    lim,
		logger:     logger,
		cfg:        cfg,
		inFlight:   make(map[int64]bool),
	}
}

// RunPass synchronizes every active source, optionally restricted to one
// source type. Only a registry read failure is fatal; per-source errors end
// up in the summary and the run log. Cancellation takes effect between
// sources: in-flight pipelines finish, nothing new is dispatched.
func (s *SyncService) RunPass(ctx context.Context, typeFilter *domain.SourceType) (*domain.PassSummary, error) {
	s.limiter.Reset()

	summary := &domain.PassSummary{StartedAt: time.Now().UTC()}

	sources, err := s.registry.ListActive(ctx, typeFilter)
	if err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}

	s.logger.Info("starting sync pass", "sources", len(sources))

	byType := make(map[domain.SourceType][]domain.Source)
	for _, src := range sources {
		byType[src.Type] = append(byType[src.Type], src)
	}

	var summaryMu sync.Mutex
	record := func(o domain.SourceOutcome) {
		summaryMu.Lock()
		defer summaryMu.Unlock()
		summary.Outcomes = append(summary.Outcomes, o)
		switch o.Status {
		case domain.RunSkipped:
			summary.SourcesSkipped++
		case domain.RunFailed:
			summary.SourcesAttempted++
			summary.SourcesFailed++
		default:
			summary.SourcesAttempted++
			summary.SourcesSucceeded++
		}
		summary.ItemsInserted += o.ItemsInserted
	}

	var groups []*errgroup.Group
	for t, group := range byType {
		g := &errgroup.Group{}
		g.SetLimit(s.workersFor(t))
		for _, src := range group {
			src := src
			g.Go(func() error {
				if ctx.Err() != nil {
					record(domain.SourceOutcome{
						SourceID:   src.ID,
						SourceName: src.Name,
						SourceType: src.Type,
						Status:     domain.RunSkipped,
						Error:      "pass cancelled",
					})
					return nil
				}
				record(s.syncSource(ctx, src))
				return nil
			})
		}
		groups = append(groups, g)
	}
	for _, g := range groups {
		_ = g.Wait()
	}

	summary.FinishedAt = time.Now().UTC()

	s.logger.Info("sync pass completed",
		"attempted", summary.SourcesAttempted,
		"succeeded", summary.SourcesSucceeded,
		"failed", summary.SourcesFailed,
		"skipped", summary.SourcesSkipped,
		"items_inserted", summary.ItemsInserted,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)

	return summary, nil
}

// LastRunStatus returns the most recent run record per source, for
// dashboards and monitoring.
func (s *SyncService) LastRunStatus(ctx context.Context) ([]domain.RunRecord, error) {
	return s.runLog.store.LatestPerSource(ctx)
}

func (s *SyncService) workersFor(t domain.SourceType) int {
	var n int
	switch t {
	case domain.SourceTypeFacebook:
		n = s.cfg.FacebookWorkers
	default:
		n = s.cfg.RSSWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// acquire marks a source as having a sync in flight. Two passes never overlap
// on the same source; the later one skips it.
func (s *SyncService) acquire(sourceID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[sourceID] {
		return false
	}
	s.inFlight[sourceID] = true
	return true
}

func (s *SyncService) release(sourceID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, sourceID)
}

// syncSource runs one source through fetch → filter → persist → advance
// cursor. Every exit path produces exactly one run record.
func (s *SyncService) syncSource(ctx context.Context, source domain.Source) (outcome domain.SourceOutcome) {
	logger := s.logger.With("source", source.Name, "source_id", source.ID)
	started := time.Now()

	outcome = domain.SourceOutcome{
		SourceID:   source.ID,
		SourceName: source.Name,
		SourceType: source.Type,
		Status:     domain.RunFailed,
	}
	defer func() {
		outcome.Duration = time.Since(started)
	}()

	if !s.acquire(source.ID) {
		logger.Info("sync already in flight, skipping")
		outcome.Status = domain.RunSkipped
		outcome.Error = "sync already in flight"
		return outcome
	}
	defer s.release(source.ID)

	run := s.runLog.Start(source)
	defer func() {
		s.runLog.Finish(ctx, run, &outcome)
	}()

	// Resolve the extractor before spending network budget; an unknown
	// type is a configuration problem, not a fetch failure.
	ext, err := s.extractors.Lookup(source)
	if err != nil {
		return s.fail(ctx, logger, source, outcome, err)
	}

	state, err := s.states.Get(ctx, source.ID)
	if err != nil {
		return s.fail(ctx, logger, source, outcome, err)
	}

	cursor := state.Cursor()
	if s.cfg.ForceReprocess {
		cursor = domain.Cursor{}
	}

	var items []domain.ContentItem
	err = s.limiter.Do(ctx, source.Type, func(ctx context.Context) error {
		fetched, ferr := ext.Fetch(ctx, source, cursor)
		if ferr != nil {
			return ferr
		}
		items = fetched
		return nil
	})
	if err != nil {
		if errors.Is(err, limiter.ErrBudgetExhausted) {
			// Not the source's fault; leave its failure count alone and
			// let the next pass pick it up.
			logger.Warn("skipping source, call budget exhausted")
			outcome.Status = domain.RunSkipped
			outcome.Error = err.Error()
			return outcome
		}
		return s.fail(ctx, logger, source, outcome, err)
	}

	outcome.ItemsFetched = len(items)

	fresh, err := s.filterNew(ctx, source, cursor, items)
	if err != nil {
		return s.fail(ctx, logger, source, outcome, err)
	}

	logger.Info("fetched source",
		"fetched", len(items),
		"new", len(fresh),
	)

	inserted, failed, lastPersisted, persistErr := s.persist(ctx, source, fresh)
	outcome.ItemsInserted = inserted
	outcome.ItemsFailed = failed

	if err := s.advanceCursor(ctx, state, lastPersisted); err != nil {
		logger.Warn("failed to advance cursor", "error", err)
		if persistErr == nil {
			persistErr = err
		}
	}

	switch {
	case failed > 0 && inserted == 0:
		return s.fail(ctx, logger, source, outcome, persistErr)
	case failed > 0:
		outcome.Status = domain.RunPartial
		if persistErr != nil {
			outcome.Error = persistErr.Error()
		}
	default:
		outcome.Status = domain.RunSuccess
	}

	if err := s.registry.RecordOutcome(ctx, source.ID, true); err != nil {
		logger.Warn("failed to record source outcome", "error", err)
	}

	logger.Info("source synced",
		"status", outcome.Status,
		"inserted", inserted,
		"failed", failed,
	)
	return outcome
}

// fail converts any per-source error into a failed outcome and bumps the
// source's consecutive failure count.
func (s *SyncService) fail(ctx context.Context, logger *slog.Logger, source domain.Source, outcome domain.SourceOutcome, err error) domain.SourceOutcome {
	if err == nil {
		err = errors.New("sync failed")
	}
	logger.Error("source sync failed", "error", err)
	outcome.Status = domain.RunFailed
	outcome.Error = err.Error()
	if rerr := s.registry.RecordOutcome(ctx, source.ID, false); rerr != nil && !errors.Is(rerr, domain.ErrNotFound) {
		logger.Warn("failed to record source outcome", "error", rerr)
	}
	return outcome
}

// filterNew drops items already covered by the cursor or whose fingerprint
// was seen before, and orders the survivors oldest-first so the cursor can
// advance over a contiguous persisted prefix. The cursor check is only a
// fast path; fingerprints stay authoritative for feeds delivered out of
// order.
func (s *SyncService) filterNew(ctx context.Context, source domain.Source, cursor domain.Cursor, items []domain.ContentItem) ([]domain.ContentItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	inBatch := make(map[string]bool, len(items))
	candidates := make([]domain.ContentItem, 0, len(items))
	for _, item := range items {
		if item.Fingerprint == "" {
			item.Fingerprint = fingerprint.Compute(item.Title, item.Body, item.Link)
		}
		if inBatch[item.Fingerprint] {
			continue
		}
		inBatch[item.Fingerprint] = true

		if cursor.Contains(item.ExternalID, item.PublishedAt) {
			continue
		}
		candidates = append(candidates, item)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	fingerprints := make([]string, len(candidates))
	for i, item := range candidates {
		fingerprints[i] = item.Fingerprint
	}
	seen, err := s.content.SeenFingerprints(ctx, source.ID, fingerprints)
	if err != nil {
		return nil, err
	}

	fresh := candidates[:0]
	for _, item := range candidates {
		if seen[item.Fingerprint] {
			continue
		}
		fresh = append(fresh, item)
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		if !fresh[i].PublishedAt.Equal(fresh[j].PublishedAt) {
			return fresh[i].PublishedAt.Before(fresh[j].PublishedAt)
		}
		return fresh[i].ExternalID < fresh[j].ExternalID
	})
	return fresh, nil
}

// persist writes items oldest-first and stops at the first storage failure,
// so the cursor never advances past an item that is not durable. A duplicate
// is already durable and keeps the prefix going.
func (s *SyncService) persist(ctx context.Context, source domain.Source, items []domain.ContentItem) (inserted, failed int, lastPersisted *domain.ContentItem, firstErr error) {
	for i := range items {
		item := &items[i]
		err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			id, err := s.content.Insert(txCtx, item)
			if err != nil {
				return err
			}
			item.ID = id
			if len(item.MediaRefs) > 0 {
				return s.content.InsertMediaRefs(txCtx, id, item.MediaRefs)
			}
			return nil
		})

		switch {
		case err == nil:
			inserted++
			lastPersisted = item
			if s.publisher != nil {
				if perr := s.publisher.PublishInserted(ctx, source.Type, item); perr != nil {
					s.logger.Warn("failed to announce item for enrichment",
						"source_id", source.ID,
						"content_id", item.ID,
						"error", perr,
					)
				}
			}
		case errors.Is(err, domain.ErrDuplicate):
			// Already have this item; neither inserted nor failed.
			lastPersisted = item
		default:
			failed++
			firstErr = err
			return inserted, failed, lastPersisted, firstErr
		}
	}
	return inserted, failed, lastPersisted, nil
}

// advanceCursor moves the stored cursor to the newest durably persisted item.
// With nothing new it only refreshes the wall-clock timestamp. The
// content-side clock never moves backwards.
func (s *SyncService) advanceCursor(ctx context.Context, state *domain.ParsingState, lastPersisted *domain.ContentItem) error {
	now := time.Now().UTC()
	next := &domain.ParsingState{
		SourceID:     state.SourceID,
		LastItemID:   state.LastItemID,
		LastItemAt:   state.LastItemAt,
		LastParsedAt: now,
	}
	if lastPersisted != nil {
		next.LastItemID = lastPersisted.ExternalID
		next.LastItemAt = lastPersisted.PublishedAt
		if next.LastItemAt.Before(state.LastItemAt) {
			next.LastItemAt = state.LastItemAt
		}
	}
	return s.states.Upsert(ctx, next)
}
