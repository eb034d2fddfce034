package rates

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sms-dlr-aggregator/internal/observability"
)

// rateKey identifies one memo entry: a calendar date plus an upper-cased
// currency code.
type rateKey struct {
	date     string // YYYY-MM-DD
	currency string
}

// Resolver resolves (date, currency) pairs to conversion factors into the
// reference unit. The memo lives for one run and is owned by whoever drives
// the pipeline; it is safe for concurrent use.
//
// Fallback policy: when a source lookup fails, the configured static fallback
// (or 1 when none is configured) is returned but NOT memoized, so a later
// call for the same key retries the source within the run. A transient outage
// therefore never poisons the cache for the remainder of the run.
type Resolver struct {
	reference string
	sources   map[string]Source
	fallbacks map[string]decimal.Decimal
	logger    *log.Logger

	mu   sync.Mutex
	memo map[rateKey]decimal.Decimal

	// Stats counts lookups for run summaries and tests.
	stats ResolverStats
}

// ResolverStats reports lookup traffic for one run.
type ResolverStats struct {
	MemoHits      int
	SourceLookups int
	Fallbacks     int
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// Reference is the unit all costs are normalized into. Defaults to "USD".
	Reference string
	// Sources maps a non-reference currency code to its rate source.
	Sources map[string]Source
	// Fallbacks maps a currency code to a static factor used when its source
	// fails or no source is registered for it. A currency without a fallback
	// falls back to 1.
	Fallbacks map[string]decimal.Decimal
	Logger    *log.Logger
}

// NewResolver creates a Resolver with an empty memo.
func NewResolver(opts ResolverOptions) *Resolver {
	reference := strings.ToUpper(opts.Reference)
	if reference == "" {
		reference = "USD"
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	sources := make(map[string]Source, len(opts.Sources))
	for code, src := range opts.Sources {
		sources[strings.ToUpper(code)] = src
	}
	fallbacks := make(map[string]decimal.Decimal, len(opts.Fallbacks))
	for code, f := range opts.Fallbacks {
		fallbacks[strings.ToUpper(code)] = f
	}

	return &Resolver{
		reference: reference,
		sources:   sources,
		fallbacks: fallbacks,
		logger:    logger,
		memo:      make(map[rateKey]decimal.Decimal),
	}
}

// Reference returns the reference currency code.
func (r *Resolver) Reference() string {
	return r.reference
}

// Resolve returns the conversion factor from currency into the reference unit
// for the given date. The reference unit itself and a blank code resolve to
// exactly 1 without any lookup. A currency with no registered source resolves
// to its configured static fallback, else 1.
func (r *Resolver) Resolve(ctx context.Context, date time.Time, currency string) decimal.Decimal {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" || code == r.reference {
		return decimal.NewFromInt(1)
	}

	key := rateKey{date: date.Format("2006-01-02"), currency: code}

	r.mu.Lock()
	if factor, ok := r.memo[key]; ok {
		r.stats.MemoHits++
		r.mu.Unlock()
		return factor
	}
	src, ok := r.sources[code]
	r.mu.Unlock()

	if !ok {
		if fallback, ok := r.fallbacks[code]; ok {
			r.mu.Lock()
			r.stats.Fallbacks++
			r.mu.Unlock()
			observability.DefaultMetrics.RateFallbacks.Inc()
			return fallback
		}
		// Unrecognized currency is treated as the reference unit.
		return decimal.NewFromInt(1)
	}

	factor, err := src.Lookup(ctx, date)
	observability.DefaultMetrics.RateLookups.Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.SourceLookups++

	if err != nil {
		r.stats.Fallbacks++
		observability.DefaultMetrics.RateFallbacks.Inc()
		fallback, ok := r.fallbacks[code]
		if !ok {
			fallback = decimal.NewFromInt(1)
		}
		r.logger.Printf("rate lookup failed for %s on %s, using fallback %s: %v",
			code, key.date, fallback, err)
		// Deliberately not memoized: a later call retries the source.
		return fallback
	}

	r.memo[key] = factor
	return factor
}

// ResolveBatch resolves every distinct (date, currency) pair in pairs at most
// once each, bounding external call volume to the batch's cardinality rather
// than its row count. Resolution errors degrade to fallbacks per Resolve.
func (r *Resolver) ResolveBatch(ctx context.Context, pairs []Pair) map[Pair]decimal.Decimal {
	out := make(map[Pair]decimal.Decimal, len(pairs))
	for _, p := range pairs {
		if _, done := out[p]; done {
			continue
		}
		out[p] = r.Resolve(ctx, p.Date, p.Currency)
	}
	return out
}

// Pair is a distinct (calendar date, currency) combination present in a batch.
type Pair struct {
	Date     time.Time
	Currency string
}

// Stats returns a snapshot of lookup counters.
func (r *Resolver) Stats() ResolverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
