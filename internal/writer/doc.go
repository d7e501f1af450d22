// Package writer implements the batched ingestion path: an in-memory buffer
// of typed records flushed to the durable sink on row-count, byte-size, or
// timeout triggers, plus the candle writer for the aggregation path.
//
// Delivery is at-least-once. A batch that still fails after the bounded
// retry budget is dropped with an accounted-loss log entry; there is no
// dead-letter persistence.
package writer
