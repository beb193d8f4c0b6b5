package domain

import "time"

// Cursor marks how far a source has been processed. LastItemID is opaque to
// the orchestrator: a link/GUID for RSS, a post id for Facebook. LastItemAt is
// the content-side clock (publish time), distinct from wall-clock LastParsedAt.
type Cursor struct {
	LastItemID string
	LastItemAt time.Time
}

func (c Cursor) IsZero() bool {
	return c.LastItemID == "" && c.LastItemAt.IsZero()
}

// Contains reports whether the item is at or before the cursor position.
// Used only as a fast-path filter; fingerprints remain authoritative for
// feeds that deliver out of order.
func (c Cursor) Contains(externalID string, publishedAt time.Time) bool {
	if c.IsZero() {
		return false
	}
	if externalID == c.LastItemID {
		return true
	}
	return !publishedAt.IsZero() && !c.LastItemAt.IsZero() && !publishedAt.After(c.LastItemAt)
}

// ParsingState persists one source's cursor. It must only ever be advanced
// past items that were durably persisted.
type ParsingState struct {
	SourceID     int64     `db:"source_id"`
	LastItemID   string    `db:"last_item_id"`
	LastItemAt   time.Time `db:"last_item_at"`
	LastParsedAt time.Time `db:"last_parsed_at"`
}

func (s *ParsingState) Cursor() Cursor {
	return Cursor{LastItemID: s.LastItemID, LastItemAt: s.LastItemAt}
}
