package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

type scriptedSource struct {
	name   string
	events []model.Event
	err    error
	runs   int
}

func (s *scriptedSource) Name() string { return s.name }

func (s *scriptedSource) Run(ctx context.Context, out chan<- model.Event) error {
	s.runs++
	for _, ev := range s.events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
	return s.err
}

func collect(t *testing.T, run func(ctx context.Context, out chan<- model.Event) error, want int) ([]model.Event, error) {
	t.Helper()

	out := make(chan model.Event, 64)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, out) }()

	var events []model.Event
	for len(events) < want {
		select {
		case ev := <-out:
			events = append(events, ev)
		case <-ctx.Done():
			t.Fatalf("collected %d events, want %d", len(events), want)
		}
	}
	cancel()
	return events, <-errCh
}

func TestChain_FallsBackInOrder(t *testing.T) {
	live := &scriptedSource{name: "live", err: errors.New("connection refused")}
	replay := &scriptedSource{
		name: "replay",
		events: []model.Event{
			{Type: "trade", Symbol: "BTC-USDT", Price: 100, Amount: 1},
		},
	}
	synthetic := &scriptedSource{
		name: "synthetic",
		events: []model.Event{
			{Type: "trade", Symbol: "BTC-USDT", Exchange: "synthetic", Price: 101, Amount: 1},
		},
	}

	chain := NewChain(nil, live, replay, synthetic)
	events, _ := collect(t, chain.Run, 2)

	if live.runs != 1 || replay.runs != 1 || synthetic.runs != 1 {
		t.Errorf("runs = %d/%d/%d, want 1/1/1", live.runs, replay.runs, synthetic.runs)
	}
	if events[0].Price != 100 {
		t.Errorf("first event from replay, Price = %g, want 100", events[0].Price)
	}
	if events[1].Exchange != "synthetic" {
		t.Errorf("second event Exchange = %q, want synthetic", events[1].Exchange)
	}
}

func TestChain_AllSourcesFail(t *testing.T) {
	a := &scriptedSource{name: "live", err: errors.New("down")}
	b := &scriptedSource{name: "replay", err: errors.New("also down")}

	chain := NewChain(nil, a, b)
	out := make(chan model.Event, 1)
	err := chain.Run(context.Background(), out)

	var serr *StreamError
	if !errors.As(err, &serr) {
		t.Fatalf("Run() error = %v, want *StreamError", err)
	}
}

func TestReplayDelay_ByFrequencyClass(t *testing.T) {
	if d := ReplayDelay(model.DataTypeTrade); d != replayDelayHigh {
		t.Errorf("trade delay = %v, want %v", d, replayDelayHigh)
	}
	if d := ReplayDelay(model.DataTypeBookSnapshot); d != replayDelayHigh {
		t.Errorf("book delay = %v, want %v", d, replayDelayHigh)
	}
	if d := ReplayDelay(model.DataTypeLiquidation); d != replayDelayLow {
		t.Errorf("liquidation delay = %v, want %v", d, replayDelayLow)
	}
	if d := ReplayDelay(model.DataTypeOptionsChain); d != replayDelayLow {
		t.Errorf("options delay = %v, want %v", d, replayDelayLow)
	}
}

func TestReplaySource_FetchesBoundedRange(t *testing.T) {
	exchangeTS := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTC-USDT" {
			t.Errorf("symbol = %q, want BTC-USDT", got)
		}
		if r.URL.Query().Get("from") == "" || r.URL.Query().Get("to") == "" {
			t.Error("replay request missing time range")
		}
		json.NewEncoder(w).Encode([]wireEvent{
			{Type: "trade", Symbol: "BTC-USDT", Exchange: "binance", Price: 100, Amount: 1, Side: "buy", ExchangeTS: exchangeTS.UnixMicro()},
			{Type: "trade", Symbol: "BTC-USDT", Exchange: "binance", Price: 101, Amount: 2, Side: "buy", ExchangeTS: exchangeTS.Add(time.Second).UnixMicro()},
		})
	}))
	defer srv.Close()

	src := NewReplaySource(ReplayConfig{
		URL:      srv.URL,
		Symbols:  []string{"BTC-USDT"},
		Window:   time.Hour,
		DataType: model.DataTypeTrade,
	}, nil)
	src.delay = time.Millisecond

	out := make(chan model.Event, 4)
	if err := src.Run(context.Background(), out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	close(out)

	var events []model.Event
	for ev := range out {
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if !events[0].ExchangeTS.Equal(exchangeTS) {
		t.Errorf("ExchangeTS = %v, want %v", events[0].ExchangeTS, exchangeTS)
	}
	if events[1].Price != 101 {
		t.Errorf("second Price = %g, want 101", events[1].Price)
	}
}

func TestReplaySource_ServerErrorIsStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no history", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewReplaySource(ReplayConfig{
		URL:      srv.URL,
		Symbols:  []string{"BTC-USDT"},
		Window:   time.Hour,
		DataType: model.DataTypeTrade,
	}, nil)

	out := make(chan model.Event, 1)
	err := src.Run(context.Background(), out)

	var serr *StreamError
	if !errors.As(err, &serr) {
		t.Fatalf("Run() error = %v, want *StreamError", err)
	}
}

func TestSyntheticSource_SelfConsistentTrades(t *testing.T) {
	cfg := DefaultSyntheticConfig([]string{"BTC-USDT"})
	cfg.Interval = time.Millisecond
	cfg.BasePrices = map[string]float64{"BTC-USDT": 50000}
	src := NewSyntheticSource(cfg, nil)

	events, err := collect(t, src.Run, 50)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	prev := 50000.0
	for i, ev := range events {
		if ev.Exchange != "synthetic" {
			t.Fatalf("event %d Exchange = %q, want synthetic", i, ev.Exchange)
		}
		if ev.Price <= 0 {
			t.Fatalf("event %d Price = %g, want > 0", i, ev.Price)
		}
		if ev.Amount <= 0 {
			t.Fatalf("event %d Amount = %g, want > 0", i, ev.Amount)
		}
		// Side agrees with the price move direction.
		switch {
		case ev.Price > prev && ev.Side != model.SideBuy:
			t.Fatalf("event %d: price rose but side = %s", i, ev.Side)
		case ev.Price < prev && ev.Side != model.SideSell:
			t.Fatalf("event %d: price fell but side = %s", i, ev.Side)
		}
		// Random walk stays near the base: 50 steps of 0.1% cannot halve it.
		if ev.Price < 25000 || ev.Price > 100000 {
			t.Fatalf("event %d Price = %g, walked implausibly far", i, ev.Price)
		}
		prev = ev.Price
	}
}
