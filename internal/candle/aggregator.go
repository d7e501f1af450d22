package candle

import (
	"context"
	"log/slog"
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

// Enricher attaches computed analytics to a finalized candle snapshot. It
// must not fail: implementations substitute defaults after exhausting
// retries.
type Enricher interface {
	Enrich(ctx context.Context, c model.Candle) map[string]float64
}

// Sink receives finalized, enriched candles.
type Sink interface {
	EmitCandle(ctx context.Context, c model.Candle) error
}

// Config holds aggregator configuration.
type Config struct {
	Interval string

	// DiscardTolerance is the fraction of the interval a first-in-session
	// candle must have been observed for before it is worth emitting.
	DiscardTolerance float64
}

// Aggregator maintains the open candle for one (symbol, timeframe) key.
// Not safe for concurrent use: it is owned by the single consuming task.
type Aggregator struct {
	symbol      string
	timeframe   string
	intervalSec int64
	tolerance   float64

	enricher Enricher
	sink     Sink
	logger   *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	open      *model.Candle
	everClose bool // true once any candle has closed for this key
}

// NewAggregator creates an aggregator for one symbol. An unrecognized
// interval label falls back to 60s with a warning.
func NewAggregator(cfg Config, symbol string, enricher Enricher, sink Sink, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}

	sec, known := IntervalSeconds(cfg.Interval)
	if !known {
		logger.Warn("unrecognized candle interval, defaulting to 60s",
			"interval", cfg.Interval,
			"symbol", symbol,
		)
	}

	tolerance := cfg.DiscardTolerance
	if tolerance <= 0 || tolerance > 1 {
		tolerance = 0.99
	}

	return &Aggregator{
		symbol:      symbol,
		timeframe:   cfg.Interval,
		intervalSec: sec,
		tolerance:   tolerance,
		enricher:    enricher,
		sink:        sink,
		logger:      logger,
		now:         time.Now,
	}
}

// Open returns the currently open candle, or nil. Exposed for inspection;
// callers must not mutate the result.
func (a *Aggregator) Open() *model.Candle {
	return a.open
}

// Apply folds one event into the aggregator. Crossing a bucket boundary
// finalizes the open candle (which may suspend on enrichment and the sink)
// before the new bucket opens.
func (a *Aggregator) Apply(ctx context.Context, ev model.Event) error {
	bucket := BucketStart(ev.ExchangeTS, a.intervalSec)

	if a.open == nil {
		a.openCandle(bucket, ev)
		return nil
	}

	if a.open.BucketStart.Equal(bucket) {
		a.update(ev)
		return nil
	}

	if err := a.finalize(ctx, false); err != nil {
		// Emission failures are isolated; the new bucket still opens so
		// aggregation state stays consistent with the event stream.
		a.logger.Error("candle emit failed", "symbol", a.symbol, "error", err)
	}
	a.openCandle(bucket, ev)
	return nil
}

// Drain finalizes the open candle, if any, bypassing the first-candle
// discard rule: a deliberate shutdown is not a restart artifact.
func (a *Aggregator) Drain(ctx context.Context) error {
	if a.open == nil {
		return nil
	}
	return a.finalize(ctx, true)
}

func (a *Aggregator) openCandle(bucket time.Time, ev model.Event) {
	a.open = &model.Candle{
		Symbol:           a.symbol,
		Timeframe:        a.timeframe,
		BucketStart:      bucket,
		Open:             ev.Price,
		High:             ev.Price,
		Low:              ev.Price,
		Close:            ev.Price,
		Volume:           ev.Amount,
		TradeCount:       1,
		IsFirstInSession: !a.everClose,
	}
}

func (a *Aggregator) update(ev model.Event) {
	c := a.open
	if ev.Price > c.High {
		c.High = ev.Price
	}
	if ev.Price < c.Low {
		c.Low = ev.Price
	}
	c.Close = ev.Price
	c.Volume += ev.Amount
	c.TradeCount++
}

// finalize closes the open candle, enriches it, and emits it. A
// first-in-session candle observed for less than the tolerance fraction of
// the interval is discarded unless bypassDiscard is set: it is a partial
// window seen only because the stream started mid-interval.
func (a *Aggregator) finalize(ctx context.Context, bypassDiscard bool) error {
	c := a.open
	a.open = nil
	a.everClose = true

	if c.IsFirstInSession && !bypassDiscard {
		observed := a.now().Sub(c.BucketStart)
		required := time.Duration(float64(a.intervalSec) * a.tolerance * float64(time.Second))
		if observed < required {
			a.logger.Info("discarding partial first candle",
				"symbol", a.symbol,
				"timeframe", a.timeframe,
				"bucket_start", c.BucketStart,
				"observed", observed,
				"required", required,
			)
			return nil
		}
	}

	snapshot := c.Snapshot()
	snapshot.Features = a.enricher.Enrich(ctx, snapshot)
	snapshot.CompletedAt = a.now()

	return a.sink.EmitCandle(ctx, snapshot)
}
