package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"news_syncer/internal/domain"
)

// SourceStore is the source registry backed by the sources table.
type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

// ListActive returns active sources ordered healthiest-first: descending
// priority, then ascending consecutive failure count.
func (s *SourceStore) ListActive(ctx context.Context, typeFilter *domain.SourceType) ([]domain.Source, error) {
	query := `
		SELECT id, name, url, site_key, type, active, priority,
		       consecutive_failures, last_success_at, created_at, updated_at
		FROM sources
		WHERE active`
	args := []interface{}{}
	if typeFilter != nil {
		query += ` AND type = $1`
		args = append(args, *typeFilter)
	}
	query += ` ORDER BY priority DESC, consecutive_failures ASC, id ASC`

	var sources []domain.Source
	if err := s.db.SelectContext(ctx, &sources, query, args...); err != nil {
		return nil, &domain.StorageError{Op: "list sources", Err: err}
	}
	return sources, nil
}

func (s *SourceStore) Get(ctx context.Context, id int64) (*domain.Source, error) {
	var src domain.Source
	query := `
		SELECT id, name, url, site_key, type, active, priority,
		       consecutive_failures, last_success_at, created_at, updated_at
		FROM sources
		WHERE id = $1`

	err := s.db.GetContext(ctx, &src, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get source", Err: err}
	}
	return &src, nil
}

// RecordOutcome updates failure bookkeeping after a run: success resets the
// consecutive failure count and stamps last_success_at, failure increments it.
func (s *SourceStore) RecordOutcome(ctx context.Context, id int64, success bool) error {
	var query string
	if success {
		query = `
			UPDATE sources
			SET consecutive_failures = 0, last_success_at = $2, updated_at = $2
			WHERE id = $1`
	} else {
		query = `
			UPDATE sources
			SET consecutive_failures = consecutive_failures + 1, updated_at = $2
			WHERE id = $1`
	}

	res, err := s.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return &domain.StorageError{Op: "record outcome", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
