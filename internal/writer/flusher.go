package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

// RecordSink is the durable store one batch is written to.
type RecordSink interface {
	WriteBatch(ctx context.Context, dataType model.DataType, batch []model.Record) error
}

// Flusher owns one buffer and flushes it to the sink on row-count,
// byte-size, or timeout triggers. Appends and the timer are serviced by a
// single task, so at most one flush executes at a time and an append after a
// flush always targets a freshly emptied buffer.
type Flusher struct {
	cfg      Config
	dataType model.DataType
	sink     RecordSink
	logger   *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	input    chan model.Record
	flushReq chan chan struct{}

	// Owned by the run loop.
	buf        *Buffer
	timer      *time.Timer
	timerC     <-chan time.Time
	curTimeout time.Duration

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	metrics Metrics
}

// NewFlusher creates a flusher for one data type classification.
func NewFlusher(cfg Config, dataType model.DataType, sink RecordSink, logger *slog.Logger) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{
		cfg:        cfg,
		dataType:   dataType,
		sink:       sink,
		logger:     logger,
		now:        time.Now,
		input:      make(chan model.Record),
		flushReq:   make(chan chan struct{}),
		buf:        NewBuffer(cfg.BatchSize, cfg.ByteCeiling),
		curTimeout: cfg.FlushTimeout,
	}
}

// Start begins the flusher task.
func (f *Flusher) Start(ctx context.Context) error {
	f.ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go f.run()

	f.logger.Info("flusher started",
		"data_type", f.dataType,
		"batch_size", f.cfg.BatchSize,
		"flush_timeout", f.cfg.FlushTimeout,
		"max_flush_timeout", f.cfg.MaxFlushTimeout,
		"byte_ceiling", f.cfg.ByteCeiling,
	)
	return nil
}

// Stop shuts down the flusher, flushing any remaining records.
func (f *Flusher) Stop(ctx context.Context) error {
	f.logger.Info("stopping flusher", "data_type", f.dataType)

	if f.cancel != nil {
		f.cancel()
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		f.logger.Warn("flusher stop timed out", "data_type", f.dataType)
		return ctx.Err()
	}

	// The run loop has exited; the buffer is safe to touch directly.
	f.flush(ctx, TriggerDrain)
	f.logger.Info("flusher stopped", "data_type", f.dataType)
	return nil
}

// Append submits a record to the flusher task. Returns false once the
// flusher is shutting down.
func (f *Flusher) Append(rec model.Record) bool {
	select {
	case f.input <- rec:
		return true
	case <-f.ctx.Done():
		return false
	}
}

// Flush forces a flush of the pending buffer and waits for it to resolve.
func (f *Flusher) Flush() {
	ack := make(chan struct{})
	select {
	case f.flushReq <- ack:
		<-ack
	case <-f.ctx.Done():
	}
}

// Stats returns a snapshot of flusher counters.
func (f *Flusher) Stats() Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics
}

// run is the single task owning the buffer and the flush timer.
func (f *Flusher) run() {
	defer f.wg.Done()

	for {
		select {
		case <-f.ctx.Done():
			return

		case rec := <-f.input:
			first, trigger := f.buf.Append(rec)
			if first {
				f.armTimer()
			}
			if trigger != "" {
				f.flush(f.ctx, trigger)
			}

		case <-f.timerC:
			f.timerC = nil
			f.flush(f.ctx, TriggerTimer)

		case ack := <-f.flushReq:
			f.flush(f.ctx, TriggerDrain)
			close(ack)
		}
	}
}

// armTimer schedules the timeout flush for the current fill cycle.
func (f *Flusher) armTimer() {
	f.disarmTimer()
	f.timer = time.NewTimer(f.curTimeout)
	f.timerC = f.timer.C
}

func (f *Flusher) disarmTimer() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.timerC = nil
}

// flush empties the buffer and writes the batch to the sink, retrying with
// linearly increasing backoff. A batch that exhausts the retry budget is
// dropped with an accounted-loss log entry.
func (f *Flusher) flush(ctx context.Context, trigger FlushTrigger) {
	f.disarmTimer()

	batch := f.buf.Take(f.now())
	f.adjustTimeout(trigger)
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	err := f.writeWithRetry(ctx, batch)

	f.mu.Lock()
	f.metrics.Flushes++
	switch trigger {
	case TriggerRows:
		f.metrics.RowFlushes++
	case TriggerBytes:
		f.metrics.ByteFlushes++
	case TriggerTimer:
		f.metrics.TimerFlushes++
	}
	if err != nil {
		f.metrics.WriteErrors++
		f.metrics.RowsDropped += int64(len(batch))
	} else {
		f.metrics.RowsWritten += int64(len(batch))
	}
	f.mu.Unlock()

	if err != nil {
		// Accounted loss: enough context to reconstruct the gap later.
		f.logger.Error("batch dropped after exhausted retries",
			"data_type", f.dataType,
			"rows", len(batch),
			"first_symbol", batch[0].Env().Symbol,
			"trigger", trigger,
			"attempts", f.cfg.WriteRetries,
			"error", err,
		)
		return
	}

	f.logger.Debug("flushed batch",
		"data_type", f.dataType,
		"rows", len(batch),
		"trigger", trigger,
		"duration", time.Since(start),
	)
}

// adjustTimeout implements the adaptive cadence: an idle window that only
// the timer closed stretches the next window (up to the hard ceiling);
// threshold-driven flushes snap it back to the base.
func (f *Flusher) adjustTimeout(trigger FlushTrigger) {
	switch trigger {
	case TriggerTimer:
		next := f.curTimeout * 2
		if next > f.cfg.MaxFlushTimeout {
			next = f.cfg.MaxFlushTimeout
		}
		f.curTimeout = next
	case TriggerRows, TriggerBytes:
		f.curTimeout = f.cfg.FlushTimeout
	}
}

// writeWithRetry attempts the sink write up to the retry budget with a
// linearly increasing delay (attempt index times the base backoff).
func (f *Flusher) writeWithRetry(ctx context.Context, batch []model.Record) error {
	var lastErr error

	for attempt := 1; attempt <= f.cfg.WriteRetries; attempt++ {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.WriteTimeout)
		err := f.sink.WriteBatch(wctx, f.dataType, batch)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		f.logger.Warn("batch write attempt failed",
			"data_type", f.dataType,
			"rows", len(batch),
			"attempt", attempt,
			"error", err,
		)

		if attempt < f.cfg.WriteRetries {
			select {
			case <-time.After(time.Duration(attempt) * f.cfg.RetryBackoff):
			case <-ctx.Done():
				// Shutdown: in-flight attempt completed above, give up on
				// further retries.
				return &SinkWriteError{DataType: f.dataType, Rows: len(batch), Attempts: attempt, Err: lastErr}
			}
		}
	}

	return &SinkWriteError{DataType: f.dataType, Rows: len(batch), Attempts: f.cfg.WriteRetries, Err: lastErr}
}
