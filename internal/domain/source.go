package domain

import (
	"fmt"
	"time"
)

// SourceType identifies the extraction strategy for a source.
type SourceType string

const (
	SourceTypeRSS      SourceType = "rss"
	SourceTypeFacebook SourceType = "facebook"
)

// ParseSourceType converts a config/CLI string into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceTypeRSS, SourceTypeFacebook:
		return SourceType(s), nil
	}
	return "", &ConfigError{Field: "type", Reason: fmt.Sprintf("unknown source type %q", s)}
}

// Source is a configured content source: an RSS feed URL or a Facebook page.
type Source struct {
	ID                  int64      `db:"id"`
	Name                string     `db:"name"`
	URL                 string     `db:"url"` // feed URL for RSS, page id for Facebook
	SiteKey             string     `db:"site_key"`
	Type                SourceType `db:"type"`
	Active              bool       `db:"active"`
	Priority            int        `db:"priority"`
	ConsecutiveFailures int        `db:"consecutive_failures"`
	LastSuccessAt       *time.Time `db:"last_success_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}
