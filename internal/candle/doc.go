// Package candle aggregates trade events into fixed-interval OHLCV candles.
//
// Each Aggregator owns the single open candle for one (symbol, timeframe)
// key and moves through EMPTY -> OPEN -> finalize -> EMPTY as events cross
// bucket boundaries. A Table fans events out to per-key aggregators. All
// mutation happens on the single consuming task; no internal locking.
package candle
