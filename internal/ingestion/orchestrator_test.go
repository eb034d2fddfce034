package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"sms-dlr-aggregator/internal/normalize"
	"sms-dlr-aggregator/internal/rates"
	"sms-dlr-aggregator/internal/report"
	"sms-dlr-aggregator/internal/schedule"
)

// scriptedSource serves canned payloads per window end date.
type scriptedSource struct {
	payloads map[string][]byte // keyed by end date YYYY-MM-DD
	err      error
	calls    int
}

func (s *scriptedSource) Fetch(_ context.Context, _, end time.Time) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.payloads[end.Format("2006-01-02")], nil
}

func testOrchestrator(src ReportSource) *Orchestrator {
	resolver := rates.NewResolver(rates.ResolverOptions{Logger: log.New(io.Discard, "", 0)})
	return New(Options{
		Source:      src,
		Decode:      report.Decode,
		Sniff:       report.LooksTabular,
		Normalizer:  normalize.New(resolver),
		WindowPause: time.Millisecond,
		Logger:      log.New(io.Discard, "", 0),
	})
}

func csvPayload(company string, parts int) []byte {
	return []byte(fmt.Sprintf(
		"SubmitDate,CompanyName,DLRStatus,MessageParts,ClientCost,TerminationCost\n"+
			"2024-01-03 10:00:00,%s,DELIVERED,%d,0.01,0.005\n", company, parts))
}

func TestOrchestrator_AggregatesAcrossWindows(t *testing.T) {
	ref := time.Date(2024, 1, 14, 23, 59, 59, 0, time.UTC)
	src := &scriptedSource{payloads: map[string][]byte{
		"2024-01-14": csvPayload("Acme", 2),
		"2024-01-07": csvPayload("Acme", 3),
	}}

	result, err := testOrchestrator(src).Run(context.Background(), schedule.New(ref, 7, 14))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.WindowsAttempted != 2 || result.WindowsSucceeded != 2 {
		t.Errorf("attempted/succeeded = %d/%d, want 2/2", result.WindowsAttempted, result.WindowsSucceeded)
	}
	if result.RecordsFetched != 2 {
		t.Errorf("RecordsFetched = %d, want 2", result.RecordsFetched)
	}
	if len(result.Batch.Rows) != 1 {
		t.Fatalf("got %d aggregate rows, want 1 (same key across windows)", len(result.Batch.Rows))
	}
	if result.Batch.Rows[0].MessageParts != 5 {
		t.Errorf("MessageParts = %d, want 5", result.Batch.Rows[0].MessageParts)
	}
}

func TestOrchestrator_SkipsHTMLPayload(t *testing.T) {
	ref := time.Date(2024, 1, 14, 23, 59, 59, 0, time.UTC)
	src := &scriptedSource{payloads: map[string][]byte{
		"2024-01-14": []byte("<html><body>session expired</body></html>"),
		"2024-01-07": csvPayload("Acme", 1),
	}}

	result, err := testOrchestrator(src).Run(context.Background(), schedule.New(ref, 7, 14))
	if err != nil {
		t.Fatalf("Run must not fail on a malformed payload: %v", err)
	}
	if result.WindowsSkipped != 1 {
		t.Errorf("WindowsSkipped = %d, want 1", result.WindowsSkipped)
	}
	if result.WindowsSucceeded != 1 {
		t.Errorf("WindowsSucceeded = %d, want 1", result.WindowsSucceeded)
	}
}

func TestOrchestrator_TransportFailureSkipsWindowOnly(t *testing.T) {
	ref := time.Date(2024, 1, 14, 23, 59, 59, 0, time.UTC)
	src := &scriptedSource{err: errors.New("connection reset")}

	result, err := testOrchestrator(src).Run(context.Background(), schedule.New(ref, 7, 14))
	if err != nil {
		t.Fatalf("Run must absorb transport failures: %v", err)
	}
	if result.WindowsSkipped != 2 {
		t.Errorf("WindowsSkipped = %d, want 2", result.WindowsSkipped)
	}
	if !result.Batch.Empty() {
		t.Error("expected empty combined batch")
	}
}

func TestOrchestrator_EmptyPayloadIsNotAnError(t *testing.T) {
	ref := time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC)
	src := &scriptedSource{payloads: map[string][]byte{}} // every fetch returns nil bytes

	result, err := testOrchestrator(src).Run(context.Background(), schedule.New(ref, 7, 7))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.WindowsEmpty != 1 {
		t.Errorf("WindowsEmpty = %d, want 1", result.WindowsEmpty)
	}
	if result.WindowsSkipped != 0 {
		t.Errorf("WindowsSkipped = %d, want 0", result.WindowsSkipped)
	}
}

func TestOrchestrator_CancellationStopsNewWindows(t *testing.T) {
	ref := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)
	src := &scriptedSource{payloads: map[string][]byte{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := testOrchestrator(src).Run(ctx, schedule.New(ref, 7, 365))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.WindowsAttempted != 0 {
		t.Errorf("attempted %d windows after cancellation, want 0", result.WindowsAttempted)
	}
	if src.calls != 0 {
		t.Errorf("source called %d times after cancellation, want 0", src.calls)
	}
}
