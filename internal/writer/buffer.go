package writer

import (
	"encoding/json"
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

// fallbackRecordSize is charged when a record cannot be size-estimated.
const fallbackRecordSize = 256

// Buffer accumulates typed records between flushes and tracks an estimated
// serialized size. It is owned by a single Flusher task and holds no locks.
type Buffer struct {
	batchSize   int
	byteCeiling int

	pending  []model.Record
	estBytes int
}

// NewBuffer creates an empty buffer with the given thresholds.
func NewBuffer(batchSize, byteCeiling int) *Buffer {
	return &Buffer{
		batchSize:   batchSize,
		byteCeiling: byteCeiling,
		pending:     make([]model.Record, 0, batchSize),
	}
}

// Append adds a record and returns the trigger that should flush the buffer
// now, or "" when no threshold was reached. The first return reports whether
// this append filled a previously empty buffer (the caller arms its timer).
func (b *Buffer) Append(rec model.Record) (first bool, trigger FlushTrigger) {
	first = len(b.pending) == 0

	b.pending = append(b.pending, rec)
	b.estBytes += estimateSize(rec)

	switch {
	case len(b.pending) >= b.batchSize:
		return first, TriggerRows
	case b.estBytes >= b.byteCeiling:
		return first, TriggerBytes
	}
	return first, ""
}

// Take atomically empties the buffer, stamping every record with the flush
// wall-clock time and its processing latency, and returns the batch.
func (b *Buffer) Take(flushedAt time.Time) []model.Record {
	if len(b.pending) == 0 {
		return nil
	}

	batch := b.pending
	b.pending = make([]model.Record, 0, b.batchSize)
	b.estBytes = 0

	for _, rec := range batch {
		env := rec.Env()
		out := flushedAt
		env.TimestampOut = &out
		latency := float64(flushedAt.Sub(env.TimestampReceived)) / float64(time.Millisecond)
		env.ProcessingLatency = &latency
	}
	return batch
}

// Len returns the number of pending records.
func (b *Buffer) Len() int { return len(b.pending) }

// EstimatedBytes returns the running serialized-size estimate.
func (b *Buffer) EstimatedBytes() int { return b.estBytes }

// estimateSize approximates the serialized size of one record.
func estimateSize(rec model.Record) int {
	data, err := json.Marshal(rec)
	if err != nil {
		return fallbackRecordSize
	}
	return len(data)
}
