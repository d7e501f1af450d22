package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgrant/tickdata/internal/model"
)

func testCandle() model.Candle {
	return model.Candle{
		Symbol:      "BTC-USDT",
		Timeframe:   "1m",
		BucketStart: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Open:        100, High: 105, Low: 99, Close: 102,
		Volume:     12.5,
		TradeCount: 40,
	}
}

func TestClient_Success(t *testing.T) {
	var got candleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(featureResponse{
			Features: map[string]float64{"rsi_14": 61.2, "macd": 0.4},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	features := c.Enrich(context.Background(), testCandle())

	assert.Equal(t, map[string]float64{"rsi_14": 61.2, "macd": 0.4}, features)
	assert.Equal(t, "BTC-USDT", got.Symbol)
	assert.Equal(t, 102.0, got.Close)
	assert.Equal(t, int64(40), got.TradeCount)
}

func TestClient_AllAttemptsFailYieldDefaults(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "computation failed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithAttempts(3))
	features := c.Enrich(context.Background(), testCandle())

	assert.Equal(t, int64(3), calls.Load(), "must try exactly 3 attempts")
	assert.Equal(t, DefaultFeatures(), features)
}

func TestClient_MalformedResponseCountsAsFailure(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithAttempts(2))
	features := c.Enrich(context.Background(), testCandle())

	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, DefaultFeatures(), features)
}

func TestClient_RecoversOnLaterAttempt(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "transient", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(featureResponse{Features: map[string]float64{"rsi_14": 48}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithAttempts(3))
	features := c.Enrich(context.Background(), testCandle())

	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, map[string]float64{"rsi_14": 48}, features)
}

func TestClient_AttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithAttempts(2), WithAttemptTimeout(50*time.Millisecond))

	start := time.Now()
	features := c.Enrich(context.Background(), testCandle())
	elapsed := time.Since(start)

	assert.Equal(t, DefaultFeatures(), features)
	assert.Less(t, elapsed, time.Second, "per-attempt timeout must bound the call")
}

func TestClient_CancelledContextStopsRetrying(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, WithAttempts(3))
	features := c.Enrich(ctx, testCandle())

	assert.Equal(t, DefaultFeatures(), features)
	assert.LessOrEqual(t, calls.Load(), int64(1), "cancelled context must stop the retry loop")
}

func TestDefaultFeatures_Fixed(t *testing.T) {
	a := DefaultFeatures()
	b := DefaultFeatures()
	assert.Equal(t, a, b)
	assert.Equal(t, 50.0, a["rsi_14"])

	// Callers may mutate their copy without affecting later calls.
	a["rsi_14"] = 0
	assert.Equal(t, 50.0, DefaultFeatures()["rsi_14"])
}
