package domain

import "time"

// ContentItem is the normalized output of an extractor adapter. Items are
// immutable once persisted; the enrichment pipeline flips Enriched downstream.
type ContentItem struct {
	ID          int64     `db:"id"`
	SourceID    int64     `db:"source_id"`
	ExternalID  string    `db:"external_id"` // article link/GUID for RSS, post id for Facebook
	Title       string    `db:"title"`
	Body        string    `db:"body"`
	Link        string    `db:"link"`
	PublishedAt time.Time `db:"published_at"`
	Fingerprint string    `db:"fingerprint"`
	MediaRefs   []string  `db:"-"`
	Enriched    bool      `db:"enriched"`
	CreatedAt   time.Time `db:"created_at"`
}
