package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"news_syncer/internal/domain"
)

const uniqueViolation = "23505"

type ContentStore struct {
	db *sqlx.DB
}

func NewContentStore(db *sqlx.DB) *ContentStore {
	return &ContentStore{db: db}
}

// Insert persists one content item. A unique violation on the per-source
// fingerprint or external id maps to domain.ErrDuplicate; callers count it
// as already-seen, not as a failure.
func (s *ContentStore) Insert(ctx context.Context, item *domain.ContentItem) (int64, error) {
	query := `
		INSERT INTO content_items (
			source_id, external_id, title, body, link,
			published_at, fingerprint, enriched
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		item.SourceID,
		item.ExternalID,
		item.Title,
		item.Body,
		item.Link,
		item.PublishedAt,
		item.Fingerprint,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, domain.ErrDuplicate
		}
		return 0, &domain.StorageError{Op: "insert content item", Err: err}
	}
	return id, nil
}

// InsertMediaRefs attaches raw media references to a persisted item.
func (s *ContentStore) InsertMediaRefs(ctx context.Context, contentID int64, refs []string) error {
	if len(refs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO content_media (content_id, url) VALUES ")
	args := make([]interface{}, 0, len(refs)+1)
	args = append(args, contentID)

	for i, ref := range refs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($1, $")
		sb.WriteString(strconv.Itoa(i + 2))
		sb.WriteString(")")
		args = append(args, ref)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...); err != nil {
		return &domain.StorageError{Op: "insert media refs", Err: err}
	}
	return nil
}

// SeenFingerprints returns which of the given fingerprints already exist for
// the source. Dedup is scoped per source; the same story on two sources is
// allowed to appear twice.
func (s *ContentStore) SeenFingerprints(ctx context.Context, sourceID int64, fingerprints []string) (map[string]bool, error) {
	if len(fingerprints) == 0 {
		return make(map[string]bool), nil
	}

	query := `SELECT fingerprint FROM content_items WHERE source_id = $1 AND fingerprint = ANY($2)`

	var seen []string
	if err := s.db.SelectContext(ctx, &seen, query, sourceID, pq.Array(fingerprints)); err != nil {
		return nil, &domain.StorageError{Op: "check fingerprints", Err: err}
	}

	result := make(map[string]bool, len(seen))
	for _, fp := range seen {
		result[fp] = true
	}
	return result, nil
}

// GetByID serves the downstream enrichment stage, which looks items up by
// identifier after they were announced.
func (s *ContentStore) GetByID(ctx context.Context, id int64) (*domain.ContentItem, error) {
	var item domain.ContentItem
	query := `
		SELECT id, source_id, external_id, title, body, link,
		       published_at, fingerprint, enriched, created_at
		FROM content_items
		WHERE id = $1`

	err := s.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get content item", Err: err}
	}
	return &item, nil
}
