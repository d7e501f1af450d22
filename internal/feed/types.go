package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

// Source produces canonical events until its input is exhausted or fails.
// Run returns nil only when the context is cancelled or the source's data
// range is complete.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- model.Event) error
}

// StreamError reports that an upstream feed failed. The chain reacts by
// falling back to the next source; it never crashes the pipeline.
type StreamError struct {
	Source string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("feed source %s: %v", e.Source, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// wireEvent is the canonical message shape delivered by live and replay
// sources. Timestamps are microseconds since epoch.
type wireEvent struct {
	Type       string  `json:"type"`
	Symbol     string  `json:"symbol"`
	Exchange   string  `json:"exchange"`
	Price      float64 `json:"price"`
	Amount     float64 `json:"amount"`
	Side       string  `json:"side"`
	ExchangeTS int64   `json:"exchange_timestamp"`
	ReceiptTS  int64   `json:"receipt_timestamp"`
}

// toEvent converts a wire message to the canonical event, stamping the
// local receipt time.
func (w wireEvent) toEvent(receivedAt time.Time) model.Event {
	receipt := receivedAt
	if w.ReceiptTS > 0 {
		receipt = time.UnixMicro(w.ReceiptTS).UTC()
	}
	return model.Event{
		Type:       w.Type,
		Symbol:     w.Symbol,
		Exchange:   w.Exchange,
		Price:      w.Price,
		Amount:     w.Amount,
		Side:       w.Side,
		ExchangeTS: time.UnixMicro(w.ExchangeTS).UTC(),
		ReceiptTS:  receipt,
	}
}

// Replay pacing per frequency class: a bounded replay must not dump its
// whole range at once, and low-frequency shapes arrive far apart.
const (
	replayDelayHigh = 10 * time.Millisecond
	replayDelayLow  = 250 * time.Millisecond
)

// ReplayDelay returns the inter-message delay for a data type's frequency
// class.
func ReplayDelay(dt model.DataType) time.Duration {
	if dt.Frequency() == model.FrequencyHigh {
		return replayDelayHigh
	}
	return replayDelayLow
}
