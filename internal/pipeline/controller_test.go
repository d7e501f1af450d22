package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

type fakeSource struct {
	events  []model.Event
	endless bool
	err     error
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Run(ctx context.Context, out chan<- model.Event) error {
	for _, ev := range s.events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return nil
		}
	}
	if s.endless {
		<-ctx.Done()
		return nil
	}
	return s.err
}

type fakeTransformer struct {
	calls int
}

func (t *fakeTransformer) Transform(ev model.Event) (model.Record, error) {
	t.calls++
	if ev.Price <= 0 {
		return nil, errors.New("malformed")
	}
	return &model.TradeRecord{ID: "t", Price: ev.Price, Amount: ev.Amount}, nil
}

type fakeTable struct {
	mu      sync.Mutex
	applied []model.Event
	drains  int
}

func (f *fakeTable) Apply(_ context.Context, ev model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, ev)
	return nil
}

func (f *fakeTable) Drain(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
}

type fakeBatch struct {
	mu       sync.Mutex
	started  bool
	stopped  int
	appended int
	flushes  int
}

func (f *fakeBatch) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeBatch) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeBatch) Append(model.Record) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended++
	return false
}

func (f *fakeBatch) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
}

func okProvision(context.Context) error { return nil }

func TestController_RoutesBothPaths(t *testing.T) {
	source := &fakeSource{events: []model.Event{
		{Type: "trade", Symbol: "BTC-USDT", Price: 100, Amount: 1, ExchangeTS: time.Now()},
		{Type: "liquidation", Symbol: "BTC-USDT", Price: 99, Amount: 2, ExchangeTS: time.Now()},
		{Type: "trade", Symbol: "BTC-USDT", Price: 101, Amount: 1, ExchangeTS: time.Now()},
	}}
	table := &fakeTable{}
	batch := &fakeBatch{}
	tf := &fakeTransformer{}

	c := New(Config{Mode: "all"}, source, tf, table, batch, okProvision, nil)
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Only trades feed the aggregator; every event reaches the batch path.
	if len(table.applied) != 2 {
		t.Errorf("candle Apply calls = %d, want 2", len(table.applied))
	}
	if batch.appended != 3 {
		t.Errorf("batch Append calls = %d, want 3", batch.appended)
	}
	if table.drains != 1 {
		t.Errorf("Drain calls = %d, want 1", table.drains)
	}
	if batch.flushes != 1 || batch.stopped != 1 {
		t.Errorf("Flush/Stop = %d/%d, want 1/1", batch.flushes, batch.stopped)
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("State() = %v, want stopped", got)
	}
}

func TestController_ModeSelectsPath(t *testing.T) {
	events := []model.Event{
		{Type: "trade", Symbol: "BTC-USDT", Price: 100, Amount: 1},
	}

	t.Run("candle", func(t *testing.T) {
		table := &fakeTable{}
		batch := &fakeBatch{}
		c := New(Config{Mode: "candle"}, &fakeSource{events: events}, &fakeTransformer{}, table, batch, okProvision, nil)
		if err := c.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(table.applied) != 1 {
			t.Errorf("Apply calls = %d, want 1", len(table.applied))
		}
		if batch.appended != 0 {
			t.Errorf("Append calls = %d, want 0", batch.appended)
		}
	})

	t.Run("batch", func(t *testing.T) {
		table := &fakeTable{}
		batch := &fakeBatch{}
		c := New(Config{Mode: "batch"}, &fakeSource{events: events}, &fakeTransformer{}, table, batch, okProvision, nil)
		if err := c.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(table.applied) != 0 {
			t.Errorf("Apply calls = %d, want 0", len(table.applied))
		}
		if batch.appended != 1 {
			t.Errorf("Append calls = %d, want 1", batch.appended)
		}
	})
}

func TestController_ProvisioningFailureIsFatal(t *testing.T) {
	table := &fakeTable{}
	batch := &fakeBatch{}
	provision := func(context.Context) error { return errors.New("connect: refused") }

	c := New(Config{Mode: "all"}, &fakeSource{}, &fakeTransformer{}, table, batch, provision, nil)
	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("Run() = nil, want provisioning error")
	}
	if batch.started {
		t.Error("batch writer started despite provisioning failure")
	}
	if table.drains != 0 || batch.flushes != 0 {
		t.Errorf("drain ran after provisioning failure: drains=%d flushes=%d", table.drains, batch.flushes)
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("State() = %v, want stopped", got)
	}
}

func TestController_RunDurationBoundsTheRun(t *testing.T) {
	source := &fakeSource{endless: true}
	table := &fakeTable{}
	batch := &fakeBatch{}

	c := New(Config{Mode: "all", RunDuration: 50 * time.Millisecond}, source, &fakeTransformer{}, table, batch, okProvision, nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after the configured duration")
	}

	if table.drains != 1 || batch.flushes != 1 {
		t.Errorf("drains/flushes = %d/%d, want 1/1", table.drains, batch.flushes)
	}
}

func TestController_DrainExactlyOnce(t *testing.T) {
	table := &fakeTable{}
	batch := &fakeBatch{}
	c := New(Config{Mode: "all"}, &fakeSource{}, &fakeTransformer{}, table, batch, okProvision, nil)
	batch.started = true

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.drain()
		}()
	}
	wg.Wait()

	if table.drains != 1 {
		t.Errorf("Drain calls = %d, want exactly 1", table.drains)
	}
	if batch.flushes != 1 || batch.stopped != 1 {
		t.Errorf("Flush/Stop calls = %d/%d, want exactly 1/1", batch.flushes, batch.stopped)
	}
}

func TestController_StreamExhaustionSurfaces(t *testing.T) {
	source := &fakeSource{err: errors.New("all sources exhausted")}
	table := &fakeTable{}
	batch := &fakeBatch{}

	c := New(Config{Mode: "all"}, source, &fakeTransformer{}, table, batch, okProvision, nil)
	err := c.Run(context.Background())
	if err == nil {
		t.Fatal("Run() = nil, want stream error")
	}
	// Pending data still drains on the way down.
	if table.drains != 1 || batch.flushes != 1 {
		t.Errorf("drains/flushes = %d/%d, want 1/1", table.drains, batch.flushes)
	}
}

type fakeComponent struct {
	starts atomic.Int32
	stops  atomic.Int32
}

func (f *fakeComponent) Start(context.Context) error { f.starts.Add(1); return nil }
func (f *fakeComponent) Stop(context.Context) error  { f.stops.Add(1); return nil }

func TestController_AuxComponentsFollowLifecycle(t *testing.T) {
	comp := &fakeComponent{}
	c := New(Config{Mode: "all"}, &fakeSource{}, &fakeTransformer{}, &fakeTable{}, &fakeBatch{}, okProvision, nil, comp)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if comp.starts.Load() != 1 || comp.stops.Load() != 1 {
		t.Errorf("component starts/stops = %d/%d, want 1/1", comp.starts.Load(), comp.stops.Load())
	}
}
