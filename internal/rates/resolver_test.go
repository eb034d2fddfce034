package rates

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"sms-dlr-aggregator/internal/observability"
)

// fakeSource counts lookups and can be scripted to fail.
type fakeSource struct {
	factor decimal.Decimal
	fail   bool
	calls  int
}

func (f *fakeSource) Lookup(_ context.Context, _ time.Time) (decimal.Decimal, error) {
	f.calls++
	if f.fail {
		return decimal.Zero, errors.New("source unavailable")
	}
	return f.factor, nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testDate() time.Time {
	return time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
}

func TestResolver_ReferenceUnitNeverLooksUp(t *testing.T) {
	src := &fakeSource{factor: decimal.NewFromFloat(1.08)}
	r := NewResolver(ResolverOptions{
		Reference: "USD",
		Sources:   map[string]Source{"USD": src},
		Logger:    quietLogger(),
	})

	got := r.Resolve(context.Background(), testDate(), "USD")
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Resolve(USD) = %s, want 1", got)
	}
	if src.calls != 0 {
		t.Errorf("reference unit triggered %d source calls, want 0", src.calls)
	}
}

func TestResolver_MemoizesSuccessfulLookup(t *testing.T) {
	src := &fakeSource{factor: decimal.NewFromFloat(1.08)}
	r := NewResolver(ResolverOptions{
		Sources: map[string]Source{"EUR": src},
		Logger:  quietLogger(),
	})
	ctx := context.Background()

	first := r.Resolve(ctx, testDate(), "EUR")
	second := r.Resolve(ctx, testDate(), "eur") // case-insensitive key
	if !first.Equal(second) {
		t.Errorf("memoized value differs: %s vs %s", first, second)
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}

	// A different date is a different key.
	r.Resolve(ctx, testDate().AddDate(0, 0, 1), "EUR")
	if src.calls != 2 {
		t.Errorf("source called %d times after new date, want 2", src.calls)
	}
}

func TestResolver_FallbackIsNotMemoized(t *testing.T) {
	src := &fakeSource{factor: decimal.NewFromFloat(1.08), fail: true}
	r := NewResolver(ResolverOptions{
		Sources:   map[string]Source{"EUR": src},
		Fallbacks: map[string]decimal.Decimal{"EUR": decimal.NewFromFloat(1.05)},
		Logger:    quietLogger(),
	})
	ctx := context.Background()

	got := r.Resolve(ctx, testDate(), "EUR")
	if !got.Equal(decimal.NewFromFloat(1.05)) {
		t.Errorf("fallback = %s, want 1.05", got)
	}

	// Source recovers: the same key must be retried, not served the fallback.
	src.fail = false
	got = r.Resolve(ctx, testDate(), "EUR")
	if !got.Equal(decimal.NewFromFloat(1.08)) {
		t.Errorf("after recovery = %s, want 1.08", got)
	}
	if src.calls != 2 {
		t.Errorf("source called %d times, want 2", src.calls)
	}

	// And the recovered value is memoized.
	r.Resolve(ctx, testDate(), "EUR")
	if src.calls != 2 {
		t.Errorf("source called %d times after memoization, want 2", src.calls)
	}
}

func TestResolver_MissingFallbackDefaultsToOne(t *testing.T) {
	src := &fakeSource{fail: true}
	r := NewResolver(ResolverOptions{
		Sources: map[string]Source{"GBP": src},
		Logger:  quietLogger(),
	})

	got := r.Resolve(context.Background(), testDate(), "GBP")
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("fallback without config = %s, want 1", got)
	}
}

func TestResolver_FallbackServesSourcelessCurrency(t *testing.T) {
	r := NewResolver(ResolverOptions{
		Fallbacks: map[string]decimal.Decimal{"EUR": decimal.NewFromFloat(1.05)},
		Logger:    quietLogger(),
	})

	got := r.Resolve(context.Background(), testDate(), "EUR")
	if !got.Equal(decimal.NewFromFloat(1.05)) {
		t.Errorf("Resolve(EUR, no source, fallback 1.05) = %s, want 1.05", got)
	}
	if stats := r.Stats(); stats.Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", stats.Fallbacks)
	}

	// Case-insensitive like every other resolver path.
	got = r.Resolve(context.Background(), testDate(), "eur")
	if !got.Equal(decimal.NewFromFloat(1.05)) {
		t.Errorf("Resolve(eur) = %s, want 1.05", got)
	}
}

func TestResolver_UnknownCurrencyTreatedAsReference(t *testing.T) {
	r := NewResolver(ResolverOptions{Logger: quietLogger()})

	for _, code := range []string{"", "  ", "XXX"} {
		got := r.Resolve(context.Background(), testDate(), code)
		if !got.Equal(decimal.NewFromInt(1)) {
			t.Errorf("Resolve(%q) = %s, want 1", code, got)
		}
	}
}

func TestResolver_ExportsLookupCounters(t *testing.T) {
	lookupsBefore := testutil.ToFloat64(observability.DefaultMetrics.RateLookups)
	fallbacksBefore := testutil.ToFloat64(observability.DefaultMetrics.RateFallbacks)

	src := &fakeSource{fail: true}
	r := NewResolver(ResolverOptions{
		Sources: map[string]Source{"GBP": src},
		Logger:  quietLogger(),
	})
	r.Resolve(context.Background(), testDate(), "GBP")

	if got := testutil.ToFloat64(observability.DefaultMetrics.RateLookups) - lookupsBefore; got != 1 {
		t.Errorf("lookup counter advanced by %v, want 1", got)
	}
	if got := testutil.ToFloat64(observability.DefaultMetrics.RateFallbacks) - fallbacksBefore; got != 1 {
		t.Errorf("fallback counter advanced by %v, want 1", got)
	}
}

func TestResolver_ResolveBatchDeduplicates(t *testing.T) {
	src := &fakeSource{factor: decimal.NewFromFloat(1.08)}
	r := NewResolver(ResolverOptions{
		Sources: map[string]Source{"EUR": src},
		Logger:  quietLogger(),
	})

	pairs := []Pair{
		{Date: testDate(), Currency: "EUR"},
		{Date: testDate(), Currency: "EUR"},
		{Date: testDate(), Currency: "USD"},
	}
	out := r.ResolveBatch(context.Background(), pairs)

	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
	if len(out) != 2 {
		t.Errorf("got %d resolved pairs, want 2", len(out))
	}
}
