// Package normalize converts raw billing records into records carrying
// reference-currency cost measures.
package normalize

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"sms-dlr-aggregator/internal/domain"
	"sms-dlr-aggregator/internal/rates"
)

// Normalizer derives reference-unit cost measures for raw records using a
// shared rate resolver.
type Normalizer struct {
	resolver *rates.Resolver
}

// New creates a Normalizer backed by resolver.
func New(resolver *rates.Resolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// NormalizeBatch normalizes every record of a batch. The distinct
// (date, currency) pairs of the batch are resolved at most once each, so
// external call volume is bounded by the batch's currency/date cardinality,
// not its row count. A record with an absent, blank, or unrecognized currency
// is converted with factor 1 rather than rejected.
func (n *Normalizer) NormalizeBatch(ctx context.Context, batch *domain.RecordBatch) []*domain.NormalizedRecord {
	if batch.Empty() {
		return nil
	}

	var pairs []rates.Pair
	seen := make(map[rates.Pair]struct{})
	for _, rec := range batch.Records {
		date := dateOf(rec.SubmitTime)
		for _, code := range []string{rec.ClientCurrency, rec.VendorCurrency} {
			p := rates.Pair{Date: date, Currency: code}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			pairs = append(pairs, p)
		}
	}
	factors := n.resolver.ResolveBatch(ctx, pairs)

	out := make([]*domain.NormalizedRecord, len(batch.Records))
	for i, rec := range batch.Records {
		date := dateOf(rec.SubmitTime)
		out[i] = &domain.NormalizedRecord{
			RawRecord:          *rec,
			ClientCostRef:      rec.ClientCost.Mul(factorFor(factors, date, rec.ClientCurrency)),
			TerminationCostRef: rec.TerminationCost.Mul(factorFor(factors, date, rec.VendorCurrency)),
		}
	}
	return out
}

func factorFor(factors map[rates.Pair]decimal.Decimal, date time.Time, currency string) decimal.Decimal {
	if f, ok := factors[rates.Pair{Date: date, Currency: currency}]; ok {
		return f
	}
	return decimal.NewFromInt(1)
}

// dateOf truncates an instant to its calendar date. Pair keys must compare
// equal for records of the same day, so the result is pinned to midnight UTC.
func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
