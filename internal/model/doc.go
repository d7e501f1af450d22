// Package model defines the shared domain types: the canonical feed event,
// the typed storage records, and the OHLCV candle.
//
// Conventions:
//   - Wall-clock fields are time.Time in memory; writers convert to integer
//     microseconds at the storage boundary.
//   - Latencies are float64 milliseconds.
//   - Prices and amounts are float64; the candle writer is responsible for
//     lossless formatting at the sink boundary.
package model
