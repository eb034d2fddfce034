// Package pipeline ties the fetch walk, the merge, and persistence into one
// run. A run is the unit both CLIs execute: backfill runs it over the deep
// horizon, update over yesterday only.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"sms-dlr-aggregator/internal/aggregate"
	"sms-dlr-aggregator/internal/domain"
	"sms-dlr-aggregator/internal/ingestion"
	"sms-dlr-aggregator/internal/observability"
	"sms-dlr-aggregator/internal/schedule"
	"sms-dlr-aggregator/internal/storage"
)

// Runner executes one pipeline run: load the persisted dataset, walk the
// scheduler's windows, merge the combined batch, persist everywhere.
//
// The first store is the system of record: it serves the initial Load and a
// failure saving to it fails the run. Further stores are mirrors written on a
// best-effort basis.
type Runner struct {
	orchestrator *ingestion.Orchestrator
	stores       []storage.DatasetStore
	runLogs      []storage.RunLogStore
	migrateShape bool
	logger       *log.Logger
}

// Options contains configuration for creating a Runner.
type Options struct {
	Orchestrator *ingestion.Orchestrator
	// Stores receives the merged dataset. The first entry is the system of
	// record; at least one entry is required.
	Stores []storage.DatasetStore
	// RunLogs optionally record run summaries for auditing.
	RunLogs []storage.RunLogStore
	// MigrateShape allows a run to narrow the persisted dataset onto the
	// common shape when the remote schema dropped a dimension. Off by
	// default: a shape mismatch then fails the run instead of silently
	// discarding a dimension.
	MigrateShape bool
	Logger       *log.Logger
}

// New creates a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Orchestrator == nil {
		return nil, errors.New("pipeline: orchestrator is required")
	}
	if len(opts.Stores) == 0 {
		return nil, errors.New("pipeline: at least one dataset store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		orchestrator: opts.Orchestrator,
		stores:       opts.Stores,
		runLogs:      opts.RunLogs,
		migrateShape: opts.MigrateShape,
		logger:       logger,
	}, nil
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	RunID       string
	Fetch       *ingestion.Result
	DatasetRows int
	Duration    time.Duration
}

// Run executes one full pipeline run over the scheduler's windows.
func (r *Runner) Run(ctx context.Context, sched *schedule.Scheduler) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: uuid.NewString()}
	r.logger.Printf("run %s: starting, horizon %s", result.RunID, sched.Horizon().Format("2006-01-02"))

	existing, err := r.stores[0].Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.finish(result, start, "error")
			return result, fmt.Errorf("load dataset: %w", err)
		}
		existing = nil
		r.logger.Printf("run %s: no persisted dataset, starting fresh", result.RunID)
	}

	fetch, err := r.orchestrator.Run(ctx, sched)
	if err != nil {
		r.finish(result, start, "error")
		return result, fmt.Errorf("fetch walk: %w", err)
	}
	result.Fetch = fetch

	merged, err := r.merge(existing, fetch.Batch)
	if err != nil {
		r.finish(result, start, "error")
		return result, err
	}
	if merged == nil {
		// Nothing persisted yet and nothing fetched. Not an error: the next
		// run re-covers the same windows.
		r.logger.Printf("run %s: no data fetched and no prior dataset, nothing to persist", result.RunID)
		r.finish(result, start, "empty")
		return result, nil
	}
	result.DatasetRows = len(merged.Rows)
	observability.DefaultMetrics.DatasetRows.Set(float64(len(merged.Rows)))

	if err := r.save(ctx, merged); err != nil {
		r.finish(result, start, "error")
		return result, err
	}

	r.finish(result, start, "success")
	observability.DefaultMetrics.LastSuccessfulRun.SetToCurrentTime()
	r.recordRun(ctx, result, start)

	r.logger.Printf("run %s: complete, %d dataset rows in %v", result.RunID, result.DatasetRows, result.Duration)
	return result, nil
}

// merge folds the fetched batch into the existing dataset, optionally
// narrowing both onto their common shape first.
func (r *Runner) merge(existing *domain.Dataset, batch *aggregate.Batch) (*domain.Dataset, error) {
	mergeStart := time.Now()
	defer func() {
		observability.DefaultMetrics.MergeDuration.Observe(time.Since(mergeStart).Seconds())
	}()

	merged, err := aggregate.Merge(existing, batch)
	if err == nil {
		return merged, nil
	}
	if !errors.Is(err, aggregate.ErrShapeMismatch) || !r.migrateShape {
		return nil, fmt.Errorf("merge batch: %w", err)
	}

	common := aggregate.CommonShape(existing.Shape, batch.Shape)
	if len(common) == 0 {
		return nil, fmt.Errorf("merge batch: no common shape between %v and %v", existing.Shape, batch.Shape)
	}
	r.logger.Printf("shape changed from %v to %v, migrating dataset onto common shape %v",
		existing.Shape, batch.Shape, common)

	narrowed, err := aggregate.Migrate(existing, common)
	if err != nil {
		return nil, fmt.Errorf("migrate dataset: %w", err)
	}
	narrowedBatch := &aggregate.Batch{
		Shape: common,
		Rows:  aggregate.Reaggregate(batch.Rows, common),
	}
	merged, err = aggregate.Merge(narrowed, narrowedBatch)
	if err != nil {
		return nil, fmt.Errorf("merge migrated batch: %w", err)
	}
	return merged, nil
}

// save persists the dataset to every store. The first store is fatal on
// failure, mirrors only log.
func (r *Runner) save(ctx context.Context, ds *domain.Dataset) error {
	if err := r.stores[0].Save(ctx, ds); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	for _, mirror := range r.stores[1:] {
		if err := mirror.Save(ctx, ds); err != nil {
			r.logger.Printf("mirror save failed: %v", err)
		}
	}
	return nil
}

func (r *Runner) finish(result *RunResult, start time.Time, status string) {
	result.Duration = time.Since(start)
	observability.DefaultMetrics.RunsTotal.WithLabelValues(status).Inc()
	observability.DefaultMetrics.RunDuration.Observe(result.Duration.Seconds())
}

// recordRun writes the run summary to every run log. Best effort.
func (r *Runner) recordRun(ctx context.Context, result *RunResult, start time.Time) {
	if len(r.runLogs) == 0 {
		return
	}
	rec := &storage.RunRecord{
		RunID:       result.RunID,
		StartedAt:   start.UnixMilli(),
		FinishedAt:  start.Add(result.Duration).UnixMilli(),
		DatasetRows: result.DatasetRows,
	}
	if result.Fetch != nil {
		rec.WindowsAttempted = result.Fetch.WindowsAttempted
		rec.WindowsSucceeded = result.Fetch.WindowsSucceeded
		rec.WindowsEmpty = result.Fetch.WindowsEmpty
		rec.WindowsSkipped = result.Fetch.WindowsSkipped
		rec.RecordsFetched = result.Fetch.RecordsFetched
	}
	for _, rl := range r.runLogs {
		if err := rl.RecordRun(ctx, rec); err != nil {
			r.logger.Printf("record run %s: %v", result.RunID, err)
		}
	}
}
