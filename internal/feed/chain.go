package feed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kgrant/tickdata/internal/model"
)

// Chain runs sources in priority order, falling back to the next when one
// fails. Every fallback decision is logged. The chain errors only when all
// configured sources are exhausted.
type Chain struct {
	sources []Source
	logger  *slog.Logger
}

// NewChain creates a fallback chain over the given sources, first preferred.
func NewChain(logger *slog.Logger, sources ...Source) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{sources: sources, logger: logger}
}

func (c *Chain) Name() string { return "chain" }

// Run drives the fallback chain until the context is cancelled, a source
// completes cleanly, or every source has failed.
func (c *Chain) Run(ctx context.Context, out chan<- model.Event) error {
	var lastErr error

	for i, src := range c.sources {
		if ctx.Err() != nil {
			return nil
		}

		if i > 0 {
			c.logger.Warn("falling back to next feed source",
				"source", src.Name(),
				"previous_error", lastErr,
			)
		}

		err := src.Run(ctx, out)
		if err == nil {
			// Cancelled, or a bounded source (replay) ran its range dry.
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Info("feed source completed", "source", src.Name())
			continue
		}

		lastErr = err
		c.logger.Error("feed source failed", "source", src.Name(), "error", err)
	}

	if lastErr == nil {
		lastErr = errors.New("no feed source produced events")
	}
	return &StreamError{Source: c.Name(), Err: lastErr}
}
