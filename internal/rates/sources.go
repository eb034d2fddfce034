// Package rates resolves daily conversion factors from billed currencies into
// the reference unit, memoizing lookups for the lifetime of one run.
package rates

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Source provides the daily conversion factor from one fixed currency into
// the reference unit. Each supported non-reference currency maps to exactly
// one Source. Rate granularity is daily; no intra-day resolution.
type Source interface {
	// Lookup returns the factor for the given calendar date.
	Lookup(ctx context.Context, date time.Time) (decimal.Decimal, error)
}
