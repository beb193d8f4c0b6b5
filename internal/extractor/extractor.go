// Package extractor defines the fetch contract every source adapter satisfies
// and the registry the orchestrator dispatches through.
package extractor

import (
	"context"
	"fmt"
	"sync"

	"news_syncer/internal/domain"
)

// Extractor turns one source's upstream feed/page into normalized content
// items. Implementations must not persist anything, may return items in any
// order, and must classify failures as domain.TransientError or
// domain.PermanentError so the backoff controller can decide about retries.
type Extractor interface {
	Fetch(ctx context.Context, source domain.Source, cursor domain.Cursor) ([]domain.ContentItem, error)
}

// Registry maps a source type (plus an optional site key for RSS feeds that
// need site-specific parsing) to an Extractor. Adding a site means
// registering an implementation, not touching the dispatcher.
type Registry struct {
	mu     sync.RWMutex
	byType map[domain.SourceType]Extractor
	bySite map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[domain.SourceType]Extractor),
		bySite: make(map[string]Extractor),
	}
}

// Register installs the default extractor for a source type.
func (r *Registry) Register(t domain.SourceType, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = e
}

// RegisterSite installs a site-specific extractor, keyed by Source.SiteKey.
func (r *Registry) RegisterSite(siteKey string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySite[siteKey] = e
}

// Lookup resolves the extractor for a source: site key first, then type.
func (r *Registry) Lookup(source domain.Source) (Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if source.SiteKey != "" {
		if e, ok := r.bySite[source.SiteKey]; ok {
			return e, nil
		}
	}
	if e, ok := r.byType[source.Type]; ok {
		return e, nil
	}
	return nil, &domain.ConfigError{
		Field:  "source",
		Reason: fmt.Sprintf("no extractor registered for type %q (site key %q)", source.Type, source.SiteKey),
	}
}
