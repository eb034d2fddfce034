package storage

import (
	"context"

	"sms-dlr-aggregator/internal/domain"
)

// DatasetStore persists the aggregated dataset. Save must be atomic from the
// caller's point of view: a reader sees either the prior state or the fully
// written new state, never a partial write.
type DatasetStore interface {
	// Load reads the full dataset. Returns ErrNotFound when nothing has been
	// persisted yet.
	Load(ctx context.Context) (*domain.Dataset, error)

	// Save replaces the persisted dataset with ds.
	Save(ctx context.Context, ds *domain.Dataset) error
}

// RunLogStore records pipeline run summaries for auditing. Implemented by the
// SQL-backed stores; optional.
type RunLogStore interface {
	// RecordRun appends one run summary.
	RecordRun(ctx context.Context, run *RunRecord) error
}

// RunRecord is one pipeline run summary row.
type RunRecord struct {
	RunID            string // UUID
	StartedAt        int64  // Unix millis
	FinishedAt       int64  // Unix millis
	WindowsAttempted int
	WindowsSucceeded int
	WindowsEmpty     int
	WindowsSkipped   int
	RecordsFetched   int
	DatasetRows      int
}
