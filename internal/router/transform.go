package router

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kgrant/tickdata/internal/model"
)

// Transformer converts canonical events into the configured typed record.
type Transformer struct {
	cfg    Config
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time

	mu          sync.Mutex
	received    int64
	transformed int64
	synthesized int64
	dropped     int64
}

// NewTransformer creates a Transformer producing records of cfg.Target.
func NewTransformer(cfg Config, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Stats returns a snapshot of transformer counters.
func (t *Transformer) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		EventsReceived: t.received,
		Transformed:    t.transformed,
		Synthesized:    t.synthesized,
		Dropped:        t.dropped,
	}
}

// Transform maps one canonical event to a typed record. A malformed event
// (missing price or amount) returns a *TransformError; the caller drops the
// record and continues.
func (t *Transformer) Transform(ev model.Event) (model.Record, error) {
	t.mu.Lock()
	t.received++
	t.mu.Unlock()

	if ev.Price <= 0 || ev.Amount <= 0 {
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
		terr := &TransformError{Symbol: ev.Symbol, Reason: "missing price or amount"}
		t.logger.Warn("dropping malformed event",
			"symbol", ev.Symbol,
			"exchange", ev.Exchange,
			"type", ev.Type,
			"error", terr,
		)
		return nil, terr
	}

	env := t.envelope(ev)

	var rec model.Record
	switch t.cfg.Target {
	case model.DataTypeTrade:
		rec = &model.TradeRecord{
			Envelope: env,
			ID:       uuid.NewString(),
			Price:    ev.Price,
			Amount:   ev.Amount,
			Side:     ev.Side,
		}

	case model.DataTypeLiquidation:
		env.Approximate = ev.Type != "liquidation"
		rec = &model.LiquidationRecord{
			Envelope:        env,
			ID:              uuid.NewString(),
			Price:           ev.Price,
			Amount:          ev.Amount,
			Side:            ev.Side,
			LiquidationType: "forced",
		}

	case model.DataTypeBookSnapshot:
		env.Approximate = true
		rec = synthesizeBook(env, ev)

	case model.DataTypeDerivativeTicker:
		env.Approximate = true
		rec = synthesizeDerivative(env, ev)

	case model.DataTypeOptionsChain:
		env.Approximate = true
		rec = synthesizeOptions(env, ev)

	default:
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
		return nil, &TransformError{Symbol: ev.Symbol, Reason: "unknown target data type"}
	}

	t.mu.Lock()
	t.transformed++
	if rec.Env().Approximate {
		t.synthesized++
	}
	t.mu.Unlock()

	return rec, nil
}

// envelope completes the shared record fields from the event.
func (t *Transformer) envelope(ev model.Event) model.Envelope {
	return model.Envelope{
		Timestamp:         ev.ExchangeTS,
		LocalTimestamp:    t.now(),
		TimestampReceived: ev.ReceiptTS,
		Symbol:            ev.Symbol,
		Exchange:          ev.Exchange,
		LatencyMS:         float64(ev.ReceiptTS.Sub(ev.ExchangeTS)) / float64(time.Millisecond),
	}
}

// synthesizeBook builds deterministic order-book levels around the trade
// price: offsets scale with the trade size, quantities decay with depth.
func synthesizeBook(env model.Envelope, ev model.Event) *model.BookSnapshotRecord {
	step := ev.Price * 0.0001 * math.Max(ev.Amount, 0.1)

	bids := make([]model.BookLevel, 0, syntheticBookDepth)
	asks := make([]model.BookLevel, 0, syntheticBookDepth)
	for i := 1; i <= syntheticBookDepth; i++ {
		qty := ev.Amount / float64(i)
		bids = append(bids, model.BookLevel{Price: ev.Price - step*float64(i), Amount: qty})
		asks = append(asks, model.BookLevel{Price: ev.Price + step*float64(i), Amount: qty})
	}

	return &model.BookSnapshotRecord{
		Envelope: env,
		Bids:     bids,
		Asks:     asks,
		BidCount: len(bids),
		AskCount: len(asks),
	}
}

// synthesizeDerivative derives ticker fields as small perturbations of the
// trade price.
func synthesizeDerivative(env model.Envelope, ev model.Event) *model.DerivativeTickerRecord {
	funding := 0.0001
	if ev.Side == model.SideSell {
		funding = -funding
	}
	return &model.DerivativeTickerRecord{
		Envelope:     env,
		MarkPrice:    ev.Price * 1.0001,
		IndexPrice:   ev.Price * 0.9999,
		FundingRate:  funding,
		OpenInterest: ev.Amount * 1000,
	}
}

// synthesizeOptions builds a single chain entry at the nearest 5% strike with
// a 30-day expiry.
func synthesizeOptions(env model.Envelope, ev model.Event) *model.OptionsChainRecord {
	strikeStep := ev.Price * 0.05
	strike := math.Round(ev.Price/strikeStep) * strikeStep

	optType := "call"
	if ev.Side == model.SideSell {
		optType = "put"
	}

	return &model.OptionsChainRecord{
		Envelope:    env,
		StrikePrice: strike,
		Expiry:      ev.ExchangeTS.Add(30 * 24 * time.Hour),
		OptionType:  optType,
		Bid:         ev.Price * 0.999,
		Ask:         ev.Price * 1.001,
		Volume:      ev.Amount,
	}
}
