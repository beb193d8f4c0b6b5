// Package rss implements the extractor contract for RSS/Atom feeds.
package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"news_syncer/internal/domain"
	"news_syncer/internal/fingerprint"
)

// ItemMapper converts one feed entry into a ContentItem. Site-specific
// extractors supply their own mapper; everything else goes through mapItem.
// Returning false drops the entry.
type ItemMapper func(source domain.Source, item *gofeed.Item) (domain.ContentItem, bool)

type Config struct {
	Timeout   time.Duration
	UserAgent string
	MaxItems  int
}

type Extractor struct {
	client    *http.Client
	userAgent string
	maxItems  int
	mapItem   ItemMapper
	logger    *slog.Logger
}

// New creates an RSS extractor with the generic item mapping.
func New(cfg Config, logger *slog.Logger) *Extractor {
	return NewWithMapper(cfg, mapItem, logger)
}

// NewWithMapper creates an RSS extractor using a site-specific item mapper.
func NewWithMapper(cfg Config, mapper ItemMapper, logger *slog.Logger) *Extractor {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "NewsSyncer/1.0"
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		TLSHandshakeTimeout:   10 * time.Second,
	}
	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}
	return &Extractor{
		client:    client,
		userAgent: cfg.UserAgent,
		maxItems:  cfg.MaxItems,
		mapItem:   mapper,
		logger:    logger.With("extractor", "rss"),
	}
}

func (e *Extractor) Fetch(ctx context.Context, source domain.Source, cursor domain.Cursor) ([]domain.ContentItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, domain.Permanent("build request", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := e.client.Do(req)
	if err != nil {
		// Timeouts and connection resets are worth retrying; a context
		// cancellation is not.
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, domain.Transient("fetch feed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, domain.Permanent("parse feed", err)
	}

	items := make([]domain.ContentItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		item, ok := e.mapItem(source, entry)
		if !ok {
			e.logger.Debug("dropped feed entry", "source", source.Name, "link", entry.Link)
			continue
		}
		items = append(items, item)
		if e.maxItems > 0 && len(items) >= e.maxItems {
			break
		}
	}

	e.logger.Debug("fetched feed",
		"source", source.Name,
		"entries", len(feed.Items),
		"items", len(items),
	)
	return items, nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return domain.Transient("fetch feed", fmt.Errorf("status %d", code))
	default:
		return domain.Permanent("fetch feed", fmt.Errorf("status %d", code))
	}
}

// mapItem is the generic entry mapping used when no site hook is registered.
func mapItem(source domain.Source, entry *gofeed.Item) (domain.ContentItem, bool) {
	link := entry.Link
	if link == "" {
		return domain.ContentItem{}, false
	}

	externalID := entry.GUID
	if externalID == "" {
		externalID = link
	}

	var publishedAt time.Time
	if entry.PublishedParsed != nil {
		publishedAt = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		publishedAt = entry.UpdatedParsed.UTC()
	}

	body := entry.Content
	if body == "" {
		body = entry.Description
	}

	var media []string
	if entry.Image != nil && entry.Image.URL != "" {
		media = append(media, entry.Image.URL)
	}
	for _, enc := range entry.Enclosures {
		if enc != nil && enc.URL != "" {
			media = append(media, enc.URL)
		}
	}

	return domain.ContentItem{
		SourceID:    source.ID,
		ExternalID:  externalID,
		Title:       entry.Title,
		Body:        body,
		Link:        link,
		PublishedAt: publishedAt,
		Fingerprint: fingerprint.Compute(entry.Title, body, link),
		MediaRefs:   media,
	}, true
}
