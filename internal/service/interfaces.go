package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"news_syncer/internal/domain"
)

// SourceRegistry lists configured sources and tracks their health.
type SourceRegistry interface {
	ListActive(ctx context.Context, typeFilter *domain.SourceType) ([]domain.Source, error)
	RecordOutcome(ctx context.Context, sourceID int64, success bool) error
}

type ContentStore interface {
	// Insert persists one item; domain.ErrDuplicate means already seen.
	Insert(ctx context.Context, item *domain.ContentItem) (int64, error)
	InsertMediaRefs(ctx context.Context, contentID int64, refs []string) error
	SeenFingerprints(ctx context.Context, sourceID int64, fingerprints []string) (map[string]bool, error)
}

type ParsingStateStore interface {
	Get(ctx context.Context, sourceID int64) (*domain.ParsingState, error)
	Upsert(ctx context.Context, state *domain.ParsingState) error
}

type RunLogStore interface {
	Append(ctx context.Context, record *domain.RunRecord) error
	LatestPerSource(ctx context.Context) ([]domain.RunRecord, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher announces persisted items to the downstream enrichment pipeline.
type Publisher interface {
	PublishInserted(ctx context.Context, sourceType domain.SourceType, item *domain.ContentItem) error
	Close() error
}
