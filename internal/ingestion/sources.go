package ingestion

import (
	"context"
	"time"

	"sms-dlr-aggregator/internal/domain"
)

// ReportSource downloads one raw report payload per window from the external
// reporting service. Both bounds are inclusive, passed exactly as computed by
// the scheduler. The returned bytes may turn out to be a login or error page;
// the orchestrator classifies them before decoding.
type ReportSource interface {
	Fetch(ctx context.Context, start, end time.Time) ([]byte, error)
}

// Decoder turns a raw payload into a record batch. A valid payload with zero
// rows decodes to an empty batch, not an error.
type Decoder func(payload []byte) (*domain.RecordBatch, error)

// Sniffer cheaply classifies a payload as plausibly tabular by inspecting a
// short leading signature, without attempting a full parse.
type Sniffer func(payload []byte) bool
