package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"news_syncer/internal/domain"
)

type ParsingStateStore struct {
	db *sqlx.DB
}

func NewParsingStateStore(db *sqlx.DB) *ParsingStateStore {
	return &ParsingStateStore{db: db}
}

// Get returns the stored cursor for a source. A source that was never synced
// yields a zero state, not an error.
func (s *ParsingStateStore) Get(ctx context.Context, sourceID int64) (*domain.ParsingState, error) {
	var state domain.ParsingState
	query := `
		SELECT source_id, last_item_id, last_item_at, last_parsed_at
		FROM parsing_state
		WHERE source_id = $1`

	err := s.db.GetContext(ctx, &state, query, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ParsingState{SourceID: sourceID}, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get parsing state", Err: err}
	}
	return &state, nil
}

// Upsert writes the cursor. Callers must only do this after the items the
// cursor points at were durably persisted.
func (s *ParsingStateStore) Upsert(ctx context.Context, state *domain.ParsingState) error {
	query := `
		INSERT INTO parsing_state (source_id, last_item_id, last_item_at, last_parsed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id) DO UPDATE SET
			last_item_id = EXCLUDED.last_item_id,
			last_item_at = EXCLUDED.last_item_at,
			last_parsed_at = EXCLUDED.last_parsed_at`

	_, err := s.db.ExecContext(ctx, query,
		state.SourceID,
		state.LastItemID,
		state.LastItemAt,
		state.LastParsedAt,
	)
	if err != nil {
		return &domain.StorageError{Op: "upsert parsing state", Err: err}
	}
	return nil
}
