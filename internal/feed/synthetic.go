package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

// SyntheticConfig configures the mock trade generator.
type SyntheticConfig struct {
	Symbols    []string
	BasePrices map[string]float64 // Starting price per symbol; 100 when absent
	Interval   time.Duration      // Mean inter-trade spacing
	Volatility float64            // Per-trade relative price step, e.g. 0.001
}

// DefaultSyntheticConfig returns a sensible simulation setup.
func DefaultSyntheticConfig(symbols []string) SyntheticConfig {
	return SyntheticConfig{
		Symbols:    symbols,
		Interval:   200 * time.Millisecond,
		Volatility: 0.001,
	}
}

// SyntheticSource generates self-consistent mock trades via a random walk.
// It is an explicit simulation mode: every event is stamped with the
// "synthetic" exchange so generated data can never pass as real.
type SyntheticSource struct {
	cfg    SyntheticConfig
	logger *slog.Logger
	rng    *rand.Rand

	prices map[string]float64
}

// NewSyntheticSource creates a mock trade generator.
func NewSyntheticSource(cfg SyntheticConfig, logger *slog.Logger) *SyntheticSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 200 * time.Millisecond
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.001
	}

	prices := make(map[string]float64, len(cfg.Symbols))
	for _, sym := range cfg.Symbols {
		p := cfg.BasePrices[sym]
		if p <= 0 {
			p = 100
		}
		prices[sym] = p
	}

	return &SyntheticSource{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		prices: prices,
	}
}

func (s *SyntheticSource) Name() string { return "synthetic" }

// Run emits mock trades until the context is cancelled.
func (s *SyntheticSource) Run(ctx context.Context, out chan<- model.Event) error {
	s.logger.Warn("generating synthetic market data; this is a simulation, not real trades",
		"symbols", s.cfg.Symbols,
		"interval", s.cfg.Interval,
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, sym := range s.cfg.Symbols {
				select {
				case out <- s.nextTrade(sym):
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// nextTrade advances the symbol's random walk by one step. The side is
// consistent with the price move so the stream looks like real taker flow.
func (s *SyntheticSource) nextTrade(symbol string) model.Event {
	step := s.prices[symbol] * s.cfg.Volatility * (2*s.rng.Float64() - 1)
	price := s.prices[symbol] + step
	if price <= 0 {
		price = s.prices[symbol]
	}
	s.prices[symbol] = price

	side := model.SideBuy
	if step < 0 {
		side = model.SideSell
	}

	now := time.Now().UTC()
	return model.Event{
		Type:       "trade",
		Symbol:     symbol,
		Exchange:   "synthetic",
		Price:      price,
		Amount:     0.01 + s.rng.Float64(),
		Side:       side,
		ExchangeTS: now,
		ReceiptTS:  now,
	}
}
