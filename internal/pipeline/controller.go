// Package pipeline wires the feed, transformer, aggregator, and batch
// writer together and owns the run lifecycle:
//
//	INIT -> RUNNING -> DRAINING -> STOPPED
//
// Provisioning failure is fatal and prevents RUNNING. The drain path runs
// exactly once no matter how many termination signals arrive.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kgrant/tickdata/internal/feed"
	"github.com/kgrant/tickdata/internal/model"
)

// State is the lifecycle state of the controller.
type State int32

const (
	StateInit State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Transformer maps canonical events to typed records.
type Transformer interface {
	Transform(ev model.Event) (model.Record, error)
}

// CandleTable is the aggregation path.
type CandleTable interface {
	Apply(ctx context.Context, ev model.Event) error
	Drain(ctx context.Context)
}

// BatchWriter is the raw-batch path.
type BatchWriter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Append(rec model.Record) bool
	Flush()
}

// Component is an auxiliary start/stop service (retention sweeper).
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Config holds controller configuration.
type Config struct {
	// Mode selects the paths to run: "candle", "batch", or "all".
	Mode string

	// RunDuration bounds the run; zero means run until cancelled.
	RunDuration time.Duration

	// DrainTimeout bounds the shutdown drain.
	DrainTimeout time.Duration
}

// Controller drives the whole pipeline through its lifecycle.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	source      feed.Source
	transformer Transformer
	candles     CandleTable
	batch       BatchWriter
	provision   func(ctx context.Context) error
	aux         []Component

	state     atomic.Int32
	drainOnce sync.Once
}

// New creates a Controller. candles and batch may each be nil when the mode
// excludes their path; provision must not be nil.
func New(
	cfg Config,
	source feed.Source,
	transformer Transformer,
	candles CandleTable,
	batch BatchWriter,
	provision func(ctx context.Context) error,
	logger *slog.Logger,
	aux ...Component,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &Controller{
		cfg:         cfg,
		logger:      logger,
		source:      source,
		transformer: transformer,
		candles:     candles,
		batch:       batch,
		provision:   provision,
		aux:         aux,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) candlePath() bool { return c.candles != nil && c.cfg.Mode != "batch" }
func (c *Controller) batchPath() bool  { return c.batch != nil && c.cfg.Mode != "candle" }

// Run provisions the sink, consumes the event stream until cancellation or
// the configured duration elapses, then drains. It returns a stream error
// if the feed chain was exhausted; provisioning errors are returned as-is
// and mean the pipeline never ran.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.provision(ctx); err != nil {
		c.state.Store(int32(StateStopped))
		return fmt.Errorf("sink provisioning: %w", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.RunDuration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.RunDuration)
		defer cancel()
	}

	if c.batchPath() {
		if err := c.batch.Start(context.WithoutCancel(runCtx)); err != nil {
			c.state.Store(int32(StateStopped))
			return fmt.Errorf("start batch writer: %w", err)
		}
	}
	for _, comp := range c.aux {
		if err := comp.Start(context.WithoutCancel(runCtx)); err != nil {
			c.state.Store(int32(StateStopped))
			return fmt.Errorf("start component: %w", err)
		}
	}

	c.state.Store(int32(StateRunning))
	c.logger.Info("pipeline running",
		"mode", c.cfg.Mode,
		"run_duration", c.cfg.RunDuration,
	)

	events := make(chan model.Event, 1024)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer close(events)
		return c.source.Run(gctx, events)
	})

	g.Go(func() error {
		return c.consume(gctx, events)
	})

	err := g.Wait()

	c.drain()

	if err != nil && runCtx.Err() == nil {
		return err
	}
	return nil
}

// consume is the single task applying transformation, aggregation, and
// buffering in arrival order.
func (c *Controller) consume(ctx context.Context, events <-chan model.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev model.Event) {
	if c.candlePath() && ev.Type == "trade" {
		if err := c.candles.Apply(ctx, ev); err != nil {
			c.logger.Error("candle aggregation failed", "symbol", ev.Symbol, "error", err)
		}
	}

	if c.batchPath() {
		rec, err := c.transformer.Transform(ev)
		if err != nil {
			// Already logged with context by the transformer; the
			// pipeline continues.
			return
		}
		c.batch.Append(rec)
	}
}

// drain finalizes open candles (bypassing the first-candle discard rule)
// and flushes pending batches, exactly once.
func (c *Controller) drain() {
	c.drainOnce.Do(func() {
		c.state.Store(int32(StateDraining))
		c.logger.Info("draining pipeline")

		dctx, cancel := context.WithTimeout(context.Background(), c.cfg.DrainTimeout)
		defer cancel()

		if c.candlePath() {
			c.candles.Drain(dctx)
		}
		if c.batchPath() {
			c.batch.Flush()
			if err := c.batch.Stop(dctx); err != nil {
				c.logger.Warn("batch writer stop", "error", err)
			}
		}
		for _, comp := range c.aux {
			if err := comp.Stop(dctx); err != nil {
				c.logger.Warn("component stop", "error", err)
			}
		}

		c.state.Store(int32(StateStopped))
		c.logger.Info("pipeline stopped")
	})
}
