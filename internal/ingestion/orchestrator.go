// Package ingestion walks the scheduler's date windows, fetches one report
// payload per window, and turns valid payloads into aggregate batches.
package ingestion

import (
	"context"
	"log"
	"time"

	"sms-dlr-aggregator/internal/aggregate"
	"sms-dlr-aggregator/internal/domain"
	"sms-dlr-aggregator/internal/normalize"
	"sms-dlr-aggregator/internal/observability"
	"sms-dlr-aggregator/internal/schedule"
)

// Default orchestration parameters.
const (
	DefaultFetchTimeout = 120 * time.Second
	DefaultWindowPause  = 1500 * time.Millisecond
)

// Orchestrator drives per-window fetching: download, classify, decode,
// normalize, aggregate. A failure for one window is logged and the window is
// skipped; it never aborts the run. Failed windows are not retried within a
// run: window boundaries are deterministic, so the next run re-covers them.
type Orchestrator struct {
	source       ReportSource
	decode       Decoder
	sniff        Sniffer
	normalizer   *normalize.Normalizer
	catalog      []string
	fetchTimeout time.Duration
	windowPause  time.Duration
	logger       *log.Logger
}

// Options contains configuration for creating an Orchestrator.
type Options struct {
	Source     ReportSource
	Decode     Decoder
	Sniff      Sniffer
	Normalizer *normalize.Normalizer
	// Catalog is the ordered dimension catalog. Defaults to domain.DefaultCatalog.
	Catalog []string
	// FetchTimeout bounds one window download. Defaults to 120s.
	FetchTimeout time.Duration
	// WindowPause is the delay between windows, respecting the remote
	// service's rate tolerance. Defaults to 1.5s.
	WindowPause time.Duration
	Logger      *log.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = domain.DefaultCatalog()
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	windowPause := opts.WindowPause
	if windowPause == 0 {
		windowPause = DefaultWindowPause
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Orchestrator{
		source:       opts.Source,
		decode:       opts.Decode,
		sniff:        opts.Sniff,
		normalizer:   opts.Normalizer,
		catalog:      catalog,
		fetchTimeout: fetchTimeout,
		windowPause:  windowPause,
		logger:       logger,
	}
}

// Result contains statistics and the combined aggregate batch from one walk.
type Result struct {
	WindowsAttempted int
	WindowsSucceeded int
	WindowsEmpty     int
	WindowsSkipped   int
	RecordsFetched   int
	Batch            *aggregate.Batch
	Duration         time.Duration
}

// Run walks every window the scheduler produces. Cancellation stops issuing
// new fetches promptly; windows already fully normalized and aggregated stay
// in the result, so the caller can still merge completed work.
func (o *Orchestrator) Run(ctx context.Context, sched *schedule.Scheduler) (*Result, error) {
	start := time.Now()
	result := &Result{}
	var batches []*aggregate.Batch

	first := true
	for {
		if err := ctx.Err(); err != nil {
			o.logger.Printf("cancelled after %d windows", result.WindowsAttempted)
			break
		}
		window, ok := sched.Next()
		if !ok {
			break
		}

		if !first {
			if !o.pause(ctx) {
				break
			}
		}
		first = false

		result.WindowsAttempted++
		batch, outcome := o.fetchWindow(ctx, window)
		switch outcome {
		case windowSkipped:
			result.WindowsSkipped++
		case windowEmpty:
			result.WindowsEmpty++
			observability.RecordWindowEmpty()
		case windowOK:
			result.WindowsSucceeded++
			result.RecordsFetched += len(batch.Records)
			observability.RecordWindowSucceeded()
			observability.DefaultMetrics.RecordsFetched.Add(float64(len(batch.Records)))

			normalized := o.normalizer.NormalizeBatch(ctx, batch)
			agg := aggregate.Aggregate(normalized, o.catalog, batch.Columns)
			observability.DefaultMetrics.RowsAggregated.Add(float64(len(agg.Rows)))
			batches = append(batches, agg)
		}
	}

	result.Batch = aggregate.CombineBatches(batches)
	result.Duration = time.Since(start)
	o.logger.Printf("fetch walk complete: %d attempted, %d succeeded, %d empty, %d skipped, %d records in %v",
		result.WindowsAttempted, result.WindowsSucceeded, result.WindowsEmpty,
		result.WindowsSkipped, result.RecordsFetched, result.Duration)
	return result, nil
}

type windowOutcome int

const (
	windowOK windowOutcome = iota
	windowEmpty
	windowSkipped
)

// fetchWindow downloads and decodes one window. Transport failures and
// malformed payloads are both classified as skips.
func (o *Orchestrator) fetchWindow(ctx context.Context, window domain.Window) (*domain.RecordBatch, windowOutcome) {
	observability.DefaultMetrics.WindowsAttempted.Inc()

	fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
	defer cancel()

	fetchStart := time.Now()
	payload, err := o.source.Fetch(fetchCtx, window.Start, window.End)
	observability.DefaultMetrics.FetchLatency.Observe(time.Since(fetchStart).Seconds())
	if err != nil {
		o.logger.Printf("window %s: fetch failed, skipping: %v", window, err)
		observability.RecordWindowSkipped("transport")
		return nil, windowSkipped
	}

	if len(payload) == 0 {
		o.logger.Printf("window %s: empty payload, no data", window)
		return nil, windowEmpty
	}
	if !o.sniff(payload) {
		o.logger.Printf("window %s: payload is not tabular (likely a login or error page), skipping", window)
		observability.RecordWindowSkipped("bad_payload")
		return nil, windowSkipped
	}

	batch, err := o.decode(payload)
	if err != nil {
		o.logger.Printf("window %s: decode failed, skipping: %v", window, err)
		observability.RecordWindowSkipped("decode")
		return nil, windowSkipped
	}
	if batch.Empty() {
		o.logger.Printf("window %s: no records", window)
		return nil, windowEmpty
	}

	o.logger.Printf("window %s: %d records", window, len(batch.Records))
	return batch, windowOK
}

// pause waits the inter-window delay, returning false on cancellation.
func (o *Orchestrator) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(o.windowPause):
		return true
	}
}
