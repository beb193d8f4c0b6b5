package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"news_syncer/internal/domain"
)

// RunLogStore is the append-only parsing log.
type RunLogStore struct {
	db *sqlx.DB
}

func NewRunLogStore(db *sqlx.DB) *RunLogStore {
	return &RunLogStore{db: db}
}

func (s *RunLogStore) Append(ctx context.Context, record *domain.RunRecord) error {
	query := `
		INSERT INTO parsing_log (
			source_id, source_type, started_at, finished_at,
			items_fetched, items_inserted, items_failed, status, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		record.SourceID,
		record.SourceType,
		record.StartedAt,
		record.FinishedAt,
		record.ItemsFetched,
		record.ItemsInserted,
		record.ItemsFailed,
		record.Status,
		record.ErrorMessage,
	).Scan(&record.ID)
	if err != nil {
		return &domain.StorageError{Op: "append run record", Err: err}
	}
	return nil
}

// LatestPerSource returns the most recent run record for every source,
// for dashboards and monitoring.
func (s *RunLogStore) LatestPerSource(ctx context.Context) ([]domain.RunRecord, error) {
	query := `
		SELECT DISTINCT ON (source_id)
			id, source_id, source_type, started_at, finished_at,
			items_fetched, items_inserted, items_failed, status, error_message
		FROM parsing_log
		ORDER BY source_id, started_at DESC`

	var records []domain.RunRecord
	if err := s.db.SelectContext(ctx, &records, query); err != nil {
		return nil, &domain.StorageError{Op: "latest run records", Err: err}
	}
	return records, nil
}
