package writer

import (
	"fmt"
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

// Config contains configuration for one batch flusher.
type Config struct {
	// BatchSize is the row threshold that forces a flush.
	BatchSize int

	// FlushTimeout is the base timer interval armed on the first append to
	// an empty buffer.
	FlushTimeout time.Duration

	// MaxFlushTimeout caps the adaptive timer: after an idle timer flush
	// the interval doubles, never past this ceiling.
	MaxFlushTimeout time.Duration

	// ByteCeiling forces a flush when the estimated serialized size of the
	// pending batch reaches this many bytes, independent of classification.
	ByteCeiling int

	// WriteRetries is the attempt budget for one sink write.
	WriteRetries int

	// RetryBackoff scales the linear inter-attempt delay (attempt * backoff).
	RetryBackoff time.Duration

	// WriteTimeout is the hard per-attempt timeout on the sink write.
	WriteTimeout time.Duration
}

// DefaultConfig returns the high-frequency cadence defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:       1000,
		FlushTimeout:    60 * time.Second,
		MaxFlushTimeout: 300 * time.Second,
		ByteCeiling:     9_000_000,
		WriteRetries:    3,
		RetryBackoff:    time.Second,
		WriteTimeout:    30 * time.Second,
	}
}

// FlushTrigger identifies what caused a flush.
type FlushTrigger string

const (
	TriggerRows  FlushTrigger = "rows"
	TriggerBytes FlushTrigger = "bytes"
	TriggerTimer FlushTrigger = "timer"
	TriggerDrain FlushTrigger = "drain"
)

// SinkWriteError reports a batch write that failed after the full retry
// budget. The batch is dropped; the error is logged as accounted loss.
type SinkWriteError struct {
	DataType model.DataType
	Rows     int
	Attempts int
	Err      error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("sink write %s: %d rows dropped after %d attempts: %v",
		e.DataType, e.Rows, e.Attempts, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// Metrics holds flusher counters.
type Metrics struct {
	Flushes     int64
	RowFlushes  int64
	ByteFlushes int64
	TimerFlushes int64
	RowsWritten int64
	RowsDropped int64
	WriteErrors int64
}
