package candle

import (
	"context"
	"log/slog"

	"github.com/kgrant/tickdata/internal/model"
)

// Table routes events to per-symbol aggregators sharing one timeframe.
// Owned by the single consuming task; no internal locking.
type Table struct {
	cfg      Config
	enricher Enricher
	sink     Sink
	logger   *slog.Logger

	aggs map[string]*Aggregator
}

// NewTable creates an empty aggregator table.
func NewTable(cfg Config, enricher Enricher, sink Sink, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		cfg:      cfg,
		enricher: enricher,
		sink:     sink,
		logger:   logger,
		aggs:     make(map[string]*Aggregator),
	}
}

// Apply folds one event into the symbol's aggregator, creating it on first
// sight of the symbol.
func (t *Table) Apply(ctx context.Context, ev model.Event) error {
	agg, ok := t.aggs[ev.Symbol]
	if !ok {
		agg = NewAggregator(t.cfg, ev.Symbol, t.enricher, t.sink, t.logger)
		t.aggs[ev.Symbol] = agg
	}
	return agg.Apply(ctx, ev)
}

// Drain finalizes every open candle in the table. Emission errors are
// logged per symbol; the drain continues.
func (t *Table) Drain(ctx context.Context) {
	for symbol, agg := range t.aggs {
		if err := agg.Drain(ctx); err != nil {
			t.logger.Error("drain: candle emit failed", "symbol", symbol, "error", err)
		}
	}
}

// OpenCount returns the number of currently open candles.
func (t *Table) OpenCount() int {
	n := 0
	for _, agg := range t.aggs {
		if agg.Open() != nil {
			n++
		}
	}
	return n
}
