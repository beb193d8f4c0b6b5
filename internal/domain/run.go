package domain

import "time"

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
)

// RunRecord is one append-only log entry per source per pass, written on
// every exit path including total failure.
type RunRecord struct {
	ID            int64      `db:"id"`
	SourceID      int64      `db:"source_id"`
	SourceType    SourceType `db:"source_type"`
	StartedAt     time.Time  `db:"started_at"`
	FinishedAt    time.Time  `db:"finished_at"`
	ItemsFetched  int        `db:"items_fetched"`
	ItemsInserted int        `db:"items_inserted"`
	ItemsFailed   int        `db:"items_failed"`
	Status        RunStatus  `db:"status"`
	ErrorMessage  *string    `db:"error_message"`
}

// SourceOutcome is the per-source slice of a pass summary.
type SourceOutcome struct {
	SourceID      int64
	SourceName    string
	SourceType    SourceType
	Status        RunStatus
	ItemsFetched  int
	ItemsInserted int
	ItemsFailed   int
	Error         string
	Duration      time.Duration
}

// PassSummary aggregates one orchestrator pass across sources.
type PassSummary struct {
	StartedAt        time.Time
	FinishedAt       time.Time
	SourcesAttempted int
	SourcesSucceeded int
	SourcesFailed    int
	SourcesSkipped   int
	ItemsInserted    int
	Outcomes         []SourceOutcome
}
