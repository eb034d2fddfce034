package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestHTTPSource_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("from"); got != "EUR" {
			t.Errorf("from = %q, want EUR", got)
		}
		if got := r.URL.Query().Get("date"); got != "2024-01-03" {
			t.Errorf("date = %q, want 2024-01-03", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rate": "1.08"}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "EUR", "USD")
	got, err := src.Lookup(context.Background(), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !got.Equal(decimal.NewFromFloat(1.08)) {
		t.Errorf("Lookup = %s, want 1.08", got)
	}
}

func TestHTTPSource_RetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "EUR", "USD",
		WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	_, err := src.Lookup(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("server hit %d times, want 3 (initial + 2 retries)", calls)
	}
}

func TestHTTPSource_RejectsNonPositiveRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rate": 0}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL, "EUR", "USD", WithMaxRetries(0))
	if _, err := src.Lookup(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error for zero rate")
	}
}
