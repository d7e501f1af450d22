package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SweeperConfig holds retention sweep configuration.
type SweeperConfig struct {
	MaxAge   time.Duration // Rows older than this are deleted (default 30 days)
	Interval time.Duration // Sweep cadence
}

// DefaultSweeperConfig returns sensible defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		MaxAge:   30 * 24 * time.Hour,
		Interval: time.Hour,
	}
}

// Sweeper periodically deletes rows past the retention window.
type Sweeper struct {
	cfg    SweeperConfig
	db     *pgxpool.Pool
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a retention sweeper.
func NewSweeper(cfg SweeperConfig, db *pgxpool.Pool, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{cfg: cfg, db: db, logger: logger}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("retention sweeper started",
		"max_age", s.cfg.MaxAge,
		"interval", s.cfg.Interval,
	)
	return nil
}

// Stop shuts down the sweeper.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("retention sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Sweep immediately on start.
	s.sweep()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep deletes expired rows from every time-series table. Failures are
// logged per table; the sweep continues.
func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.cfg.MaxAge).UnixMicro()
	start := time.Now()
	var deleted int64

	for _, table := range recordTables {
		tag, err := s.db.Exec(s.ctx, fmt.Sprintf(`DELETE FROM %s WHERE ts < $1`, table), cutoff)
		if err != nil {
			s.logger.Warn("retention sweep failed", "table", table, "error", err)
			continue
		}
		deleted += tag.RowsAffected()
	}

	tag, err := s.db.Exec(s.ctx, `DELETE FROM candles WHERE bucket_start < $1`, cutoff)
	if err != nil {
		s.logger.Warn("retention sweep failed", "table", "candles", "error", err)
	} else {
		deleted += tag.RowsAffected()
	}

	s.logger.Info("retention sweep complete",
		"deleted", deleted,
		"cutoff", time.UnixMicro(cutoff),
		"duration", time.Since(start),
	)
}
