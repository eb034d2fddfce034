package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Default configuration values.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPSource implements Source against a daily-rate JSON API of the form
// GET {endpoint}?from={currency}&to={reference}&date=YYYY-MM-DD
// responding {"rate": "1.08"} (string or number accepted).
type HTTPSource struct {
	endpoint    string
	currency    string
	reference   string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// SourceOption configures HTTPSource.
type SourceOption func(*HTTPSource)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) SourceOption {
	return func(s *HTTPSource) {
		s.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) SourceOption {
	return func(s *HTTPSource) {
		s.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) SourceOption {
	return func(s *HTTPSource) {
		s.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) SourceOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// NewHTTPSource creates a rate source for one currency pair.
func NewHTTPSource(endpoint, currency, reference string, opts ...SourceOption) *HTTPSource {
	s := &HTTPSource{
		endpoint:    endpoint,
		currency:    currency,
		reference:   reference,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type rateResponse struct {
	Rate json.Number `json:"rate"`
}

// Lookup fetches the daily factor, retrying transient failures with
// exponential backoff.
func (s *HTTPSource) Lookup(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("from", s.currency)
	q.Set("to", s.reference)
	q.Set("date", date.Format("2006-01-02"))
	reqURL := s.endpoint + "?" + q.Encode()

	delay := s.retryDelay
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * s.backoffMult)
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		factor, err := s.lookupOnce(ctx, reqURL)
		if err == nil {
			return factor, nil
		}
		lastErr = err
	}

	return decimal.Zero, fmt.Errorf("rate lookup %s/%s: %w", s.currency, s.reference, lastErr)
}

func (s *HTTPSource) lookupOnce(ctx context.Context, reqURL string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return decimal.Zero, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode response: %w", err)
	}

	factor, err := decimal.NewFromString(body.Rate.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", body.Rate, err)
	}
	if factor.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("non-positive rate %s", factor)
	}
	return factor, nil
}
