// Package enrich computes analytic features for finalized candles by calling
// an external feature-computation service.
//
// The contract is deliberately forgiving: every call is time-boxed per
// attempt, retried a bounded number of times, and on exhaustion returns the
// fixed default feature vector. Enrichment failure never blocks candle
// emission.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

// EnrichmentError reports that feature computation failed after all
// attempts. It is logged, never propagated.
type EnrichmentError struct {
	Symbol   string
	Attempts int
	Last     error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich %s: %d attempts failed: %v", e.Symbol, e.Attempts, e.Last)
}

func (e *EnrichmentError) Unwrap() error { return e.Last }

// DefaultFeatures returns the fixed feature vector substituted when
// computation fails. Values are neutral: centered oscillators at midpoint,
// everything else zero.
func DefaultFeatures() map[string]float64 {
	return map[string]float64{
		"rsi_14":          50,
		"macd":            0,
		"bollinger_width": 0,
		"volume_zscore":   0,
	}
}

// Client calls the feature computation service.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger

	maxAttempts    int
	attemptTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// NewClient creates a feature computation client.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:            url,
		httpClient:     &http.Client{},
		logger:         slog.Default(),
		maxAttempts:    3,
		attemptTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithAttempts sets the attempt budget.
func WithAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithAttemptTimeout sets the hard per-attempt timeout.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.attemptTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// candleRequest is the wire shape sent to the computation service.
type candleRequest struct {
	Symbol      string  `json:"symbol"`
	Timeframe   string  `json:"timeframe"`
	BucketStart int64   `json:"bucket_start"` // Unix seconds
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	TradeCount  int64   `json:"trade_count"`
}

// featureResponse is the wire shape returned by the computation service.
type featureResponse struct {
	Features map[string]float64 `json:"features"`
}

// Enrich computes features for a finalized candle snapshot. Implements
// candle.Enricher. On total failure it logs an EnrichmentError and returns
// DefaultFeatures.
func (c *Client) Enrich(ctx context.Context, cndl model.Candle) map[string]float64 {
	payload, err := json.Marshal(candleRequest{
		Symbol:      cndl.Symbol,
		Timeframe:   cndl.Timeframe,
		BucketStart: cndl.BucketStart.Unix(),
		Open:        cndl.Open,
		High:        cndl.High,
		Low:         cndl.Low,
		Close:       cndl.Close,
		Volume:      cndl.Volume,
		TradeCount:  cndl.TradeCount,
	})
	if err != nil {
		// Candle fields are plain numbers; this cannot happen in practice.
		c.logger.Error("marshal candle request", "error", err)
		return DefaultFeatures()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		features, err := c.attempt(ctx, payload)
		if err == nil {
			return features
		}
		lastErr = err

		c.logger.Warn("feature computation attempt failed",
			"symbol", cndl.Symbol,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error", err,
		)

		if ctx.Err() != nil {
			break
		}
	}

	eerr := &EnrichmentError{Symbol: cndl.Symbol, Attempts: c.maxAttempts, Last: lastErr}
	c.logger.Error("feature computation exhausted retries, using defaults",
		"symbol", cndl.Symbol,
		"timeframe", cndl.Timeframe,
		"bucket_start", cndl.BucketStart,
		"error", eerr,
	)
	return DefaultFeatures()
}

// attempt performs a single time-boxed request. A malformed response counts
// as a failure.
func (c *Client) attempt(ctx context.Context, payload []byte) (map[string]float64, error) {
	actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("feature service status %d", resp.StatusCode)
	}

	var out featureResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if out.Features == nil {
		return nil, fmt.Errorf("response missing features")
	}

	return out.Features, nil
}
