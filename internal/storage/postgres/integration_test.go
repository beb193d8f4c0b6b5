//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"news_syncer/internal/domain"
	"news_syncer/internal/fingerprint"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB

	sources *SourceStore
	content *ContentStore
	states  *ParsingStateStore
	runs    *RunLogStore
	tx      *TransactionManager
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_sources.up.sql"),
			filepath.Join(migrationsPath, "002_create_content_items.up.sql"),
			filepath.Join(migrationsPath, "003_create_parsing_state.up.sql"),
			filepath.Join(migrationsPath, "004_create_parsing_log.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	s.sources = NewSourceStore(db)
	s.content = NewContentStore(db)
	s.states = NewParsingStateStore(db)
	s.runs = NewRunLogStore(db)
	s.tx = NewTransactionManager(db)
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM content_media")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM content_items")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM parsing_log")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM parsing_state")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sources")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) insertSource(name string, t domain.SourceType, priority, failures int) int64 {
	var id int64
	err := s.db.QueryRowContext(s.ctx, `
		INSERT INTO sources (name, url, type, priority, consecutive_failures)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		name, "https://"+name+".example.tn/feed", t, priority, failures,
	).Scan(&id)
	s.Require().NoError(err)
	return id
}

func (s *PostgresIntegrationSuite) TestListActive_Ordering() {
	lowPriority := s.insertSource("low", domain.SourceTypeRSS, 1, 0)
	unhealthy := s.insertSource("unhealthy", domain.SourceTypeRSS, 5, 3)
	healthy := s.insertSource("healthy", domain.SourceTypeRSS, 5, 0)
	_, err := s.db.ExecContext(s.ctx,
		`INSERT INTO sources (name, url, type, active) VALUES ('inactive', 'https://off.example.tn/feed', 'rss', false)`)
	s.Require().NoError(err)

	sources, err := s.sources.ListActive(s.ctx, nil)
	s.Require().NoError(err)
	s.Require().Len(sources, 3)
	s.Equal(healthy, sources[0].ID, "higher priority, fewer failures first")
	s.Equal(unhealthy, sources[1].ID)
	s.Equal(lowPriority, sources[2].ID)
}

func (s *PostgresIntegrationSuite) TestListActive_TypeFilter() {
	s.insertSource("rss-one", domain.SourceTypeRSS, 0, 0)
	fb := s.insertSource("fb-page", domain.SourceTypeFacebook, 0, 0)

	filter := domain.SourceTypeFacebook
	sources, err := s.sources.ListActive(s.ctx, &filter)
	s.Require().NoError(err)
	s.Require().Len(sources, 1)
	s.Equal(fb, sources[0].ID)
}

func (s *PostgresIntegrationSuite) TestRecordOutcome() {
	id := s.insertSource("src", domain.SourceTypeRSS, 0, 2)

	s.Require().NoError(s.sources.RecordOutcome(s.ctx, id, false))
	src, err := s.sources.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(3, src.ConsecutiveFailures)
	s.Nil(src.LastSuccessAt)

	s.Require().NoError(s.sources.RecordOutcome(s.ctx, id, true))
	src, err = s.sources.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(0, src.ConsecutiveFailures)
	s.NotNil(src.LastSuccessAt)
}

func (s *PostgresIntegrationSuite) TestRecordOutcome_UnknownSource() {
	err := s.sources.RecordOutcome(s.ctx, 999999, true)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestInsert_DuplicateFingerprint() {
	id := s.insertSource("src", domain.SourceTypeRSS, 0, 0)
	item := domain.ContentItem{
		SourceID:    id,
		ExternalID:  "guid-1",
		Title:       "Title",
		Body:        "Body",
		Link:        "https://src.example.tn/1",
		PublishedAt: time.Now().UTC(),
		Fingerprint: fingerprint.Compute("Title", "Body", "https://src.example.tn/1"),
	}

	_, err := s.content.Insert(s.ctx, &item)
	s.Require().NoError(err)

	dup := item
	dup.ExternalID = "guid-1-bis"
	_, err = s.content.Insert(s.ctx, &dup)
	s.ErrorIs(err, domain.ErrDuplicate)
}

func (s *PostgresIntegrationSuite) TestInsert_SameFingerprintOtherSource() {
	a := s.insertSource("src-a", domain.SourceTypeRSS, 0, 0)
	b := s.insertSource("src-b", domain.SourceTypeRSS, 0, 0)
	fp := fingerprint.Compute("Title", "Body", "https://example.tn/1")

	for _, sourceID := range []int64{a, b} {
		item := domain.ContentItem{
			SourceID:    sourceID,
			ExternalID:  "guid-1",
			Title:       "Title",
			Body:        "Body",
			Link:        "https://example.tn/1",
			PublishedAt: time.Now().UTC(),
			Fingerprint: fp,
		}
		_, err := s.content.Insert(s.ctx, &item)
		s.Require().NoError(err, "dedup is per source, cross-source copies are allowed")
	}
}

func (s *PostgresIntegrationSuite) TestInsertWithMediaInTransaction() {
	id := s.insertSource("src", domain.SourceTypeRSS, 0, 0)
	item := domain.ContentItem{
		SourceID:    id,
		ExternalID:  "guid-1",
		Title:       "Title",
		Body:        "Body",
		Link:        "https://src.example.tn/1",
		PublishedAt: time.Now().UTC(),
		Fingerprint: fingerprint.Compute("Title", "Body", "https://src.example.tn/1"),
		MediaRefs:   []string{"https://src.example.tn/img/1.jpg", "https://src.example.tn/img/2.jpg"},
	}

	err := s.tx.WithTransaction(s.ctx, func(txCtx context.Context) error {
		contentID, err := s.content.Insert(txCtx, &item)
		if err != nil {
			return err
		}
		return s.content.InsertMediaRefs(txCtx, contentID, item.MediaRefs)
	})
	s.Require().NoError(err)

	var mediaCount int
	s.Require().NoError(s.db.GetContext(s.ctx, &mediaCount, "SELECT count(*) FROM content_media"))
	s.Equal(2, mediaCount)
}

func (s *PostgresIntegrationSuite) TestSeenFingerprints() {
	id := s.insertSource("src", domain.SourceTypeRSS, 0, 0)
	fpSeen := fingerprint.Compute("Seen", "Body", "https://src.example.tn/1")
	fpNew := fingerprint.Compute("New", "Body", "https://src.example.tn/2")

	item := domain.ContentItem{
		SourceID: id, ExternalID: "guid-1", Title: "Seen", Body: "Body",
		Link: "https://src.example.tn/1", PublishedAt: time.Now().UTC(), Fingerprint: fpSeen,
	}
	_, err := s.content.Insert(s.ctx, &item)
	s.Require().NoError(err)

	seen, err := s.content.SeenFingerprints(s.ctx, id, []string{fpSeen, fpNew})
	s.Require().NoError(err)
	s.True(seen[fpSeen])
	s.False(seen[fpNew])
}

func (s *PostgresIntegrationSuite) TestParsingState_RoundTrip() {
	id := s.insertSource("src", domain.SourceTypeRSS, 0, 0)

	state, err := s.states.Get(s.ctx, id)
	s.Require().NoError(err)
	s.True(state.Cursor().IsZero(), "never-synced source yields a zero cursor")

	now := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.states.Upsert(s.ctx, &domain.ParsingState{
		SourceID:     id,
		LastItemID:   "guid-103",
		LastItemAt:   now.Add(-time.Hour),
		LastParsedAt: now,
	}))

	state, err = s.states.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("guid-103", state.LastItemID)
	s.WithinDuration(now.Add(-time.Hour), state.LastItemAt, time.Second)

	// Second upsert overwrites.
	s.Require().NoError(s.states.Upsert(s.ctx, &domain.ParsingState{
		SourceID:     id,
		LastItemID:   "guid-110",
		LastItemAt:   now,
		LastParsedAt: now,
	}))
	state, err = s.states.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("guid-110", state.LastItemID)
}

func (s *PostgresIntegrationSuite) TestRunLog_AppendAndLatest() {
	id := s.insertSource("src", domain.SourceTypeRSS, 0, 0)
	now := time.Now().UTC()

	older := domain.RunRecord{
		SourceID: id, SourceType: domain.SourceTypeRSS,
		StartedAt: now.Add(-2 * time.Hour), FinishedAt: now.Add(-2 * time.Hour).Add(time.Minute),
		ItemsFetched: 3, ItemsInserted: 3, Status: domain.RunSuccess,
	}
	s.Require().NoError(s.runs.Append(s.ctx, &older))
	s.NotZero(older.ID)

	errMsg := "fetch feed: status 404"
	latest := domain.RunRecord{
		SourceID: id, SourceType: domain.SourceTypeRSS,
		StartedAt: now.Add(-time.Hour), FinishedAt: now.Add(-time.Hour).Add(time.Minute),
		Status: domain.RunFailed, ErrorMessage: &errMsg,
	}
	s.Require().NoError(s.runs.Append(s.ctx, &latest))

	records, err := s.runs.LatestPerSource(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(domain.RunFailed, records[0].Status)
	s.Require().NotNil(records[0].ErrorMessage)
	s.Equal(errMsg, *records[0].ErrorMessage)
}
