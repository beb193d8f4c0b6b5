// Package facebook implements the extractor contract for Facebook pages via
// the Graph API.
package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"news_syncer/internal/domain"
	"news_syncer/internal/fingerprint"
)

const postFields = "id,message,permalink_url,created_time,full_picture,attachments{media_type,url}"

// Graph API error codes that signal throttling; worth retrying after backoff.
var throttleCodes = map[int]bool{4: true, 17: true, 32: true, 613: true}

// Graph API error codes for invalid or expired tokens; retrying is pointless.
var authCodes = map[int]bool{102: true, 190: true}

type Config struct {
	GraphURL    string // e.g. https://graph.facebook.com/v19.0
	AccessToken string
	PageSize    int
	MaxPages    int
	HoursBack   int // cold-start window when a source has no cursor yet
	Timeout     time.Duration
}

type Extractor struct {
	httpClient  *http.Client
	graphURL    string
	accessToken string
	pageSize    int
	maxPages    int
	hoursBack   int
	logger      *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Extractor {
	if cfg.GraphURL == "" {
		cfg.GraphURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 25
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 4
	}
	if cfg.HoursBack == 0 {
		cfg.HoursBack = 168
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Extractor{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		graphURL:    strings.TrimRight(cfg.GraphURL, "/"),
		accessToken: cfg.AccessToken,
		pageSize:    cfg.PageSize,
		maxPages:    cfg.MaxPages,
		hoursBack:   cfg.HoursBack,
		logger:      logger.With("extractor", "facebook"),
	}
}

// Fetch pulls posts for a page, paging forward until the cap. Source.URL
// holds the page id.
func (e *Extractor) Fetch(ctx context.Context, source domain.Source, cursor domain.Cursor) ([]domain.ContentItem, error) {
	if e.accessToken == "" {
		return nil, &domain.ConfigError{Field: "facebook.access_token", Reason: "missing access token"}
	}
	if source.URL == "" {
		return nil, &domain.ConfigError{Field: "source.url", Reason: "missing facebook page id"}
	}

	since := time.Now().Add(-time.Duration(e.hoursBack) * time.Hour)
	if !cursor.LastItemAt.IsZero() {
		since = cursor.LastItemAt
	}

	var posts []post
	next := e.firstPageURL(source.URL, since)

	for page := 0; page < e.maxPages && next != ""; page++ {
		resp, err := e.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		posts = append(posts, resp.Data...)

		e.logger.Debug("fetched page",
			"source", source.Name,
			"page", page,
			"posts", len(resp.Data),
			"total", len(posts),
		)

		next = ""
		if resp.Paging != nil {
			next = resp.Paging.Next
		}
	}

	return e.transform(source, posts), nil
}

func (e *Extractor) firstPageURL(pageID string, since time.Time) string {
	q := url.Values{}
	q.Set("fields", postFields)
	q.Set("limit", strconv.Itoa(e.pageSize))
	q.Set("since", strconv.FormatInt(since.Unix(), 10))
	q.Set("access_token", e.accessToken)
	return fmt.Sprintf("%s/%s/posts?%s", e.graphURL, url.PathEscape(pageID), q.Encode())
}

func (e *Extractor) fetchPage(ctx context.Context, pageURL string) (*postsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, domain.Permanent("build request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, domain.Transient("graph request", err)
	}
	defer resp.Body.Close()

	var body postsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if resp.StatusCode >= 500 {
			return nil, domain.Transient("graph request", fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil, domain.Permanent("decode response", err)
	}

	if body.Error != nil {
		return nil, classifyAPIError(body.Error)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, domain.Transient("graph request", fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil, domain.Permanent("graph request", fmt.Errorf("status %d", resp.StatusCode))
	}

	return &body, nil
}

func classifyAPIError(apiErr *apiError) error {
	err := fmt.Errorf("graph error %d (%s): %s", apiErr.Code, apiErr.Type, apiErr.Message)
	switch {
	case throttleCodes[apiErr.Code]:
		return domain.Transient("graph request", err)
	case authCodes[apiErr.Code]:
		return domain.Permanent("graph auth", err)
	default:
		return domain.Permanent("graph request", err)
	}
}

func (e *Extractor) transform(source domain.Source, posts []post) []domain.ContentItem {
	items := make([]domain.ContentItem, 0, len(posts))
	for _, p := range posts {
		if p.ID == "" || p.Message == "" {
			continue
		}

		createdAt, err := parseCreatedTime(p.CreatedTime)
		if err != nil {
			e.logger.Warn("failed to parse created_time",
				"post_id", p.ID,
				"created_time", p.CreatedTime,
			)
			continue
		}

		link := p.PermalinkURL
		if link == "" {
			link = fmt.Sprintf("https://www.facebook.com/%s", p.ID)
		}

		var media []string
		if p.FullPicture != "" {
			media = append(media, p.FullPicture)
		}
		if p.Attachments != nil {
			for _, a := range p.Attachments.Data {
				if a.URL != "" {
					media = append(media, a.URL)
				}
			}
		}

		items = append(items, domain.ContentItem{
			SourceID:    source.ID,
			ExternalID:  p.ID,
			Title:       postTitle(p.Message),
			Body:        p.Message,
			Link:        link,
			PublishedAt: createdAt,
			Fingerprint: fingerprint.Compute(postTitle(p.Message), p.Message, link),
			MediaRefs:   media,
		})
	}
	return items
}

// parseCreatedTime handles the Graph API timestamp format, which omits the
// colon in the zone offset.
func parseCreatedTime(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02T15:04:05-0700", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
	}
	return t.UTC(), err
}

// postTitle derives a headline from the first line of the post message.
func postTitle(message string) string {
	line := message
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	const maxTitle = 120
	if len(line) > maxTitle {
		runes := []rune(line)
		if len(runes) > maxTitle {
			line = string(runes[:maxTitle]) + "…"
		}
	}
	return line
}
