package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kgrant/tickdata/internal/candle"
	"github.com/kgrant/tickdata/internal/config"
	"github.com/kgrant/tickdata/internal/database"
	"github.com/kgrant/tickdata/internal/enrich"
	"github.com/kgrant/tickdata/internal/feed"
	"github.com/kgrant/tickdata/internal/pipeline"
	"github.com/kgrant/tickdata/internal/router"
	"github.com/kgrant/tickdata/internal/version"
	"github.com/kgrant/tickdata/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.local.yaml", "path to config file")
	flag.Parse()

	// Optional .env for local runs; config values expand from the environment.
	_ = godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"mode", cfg.Mode,
		"symbols", cfg.Feed.Symbols,
		"data_type", cfg.Feed.DataType,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals. A repeated signal is harmless: the drain
	// path runs exactly once.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range sigCh {
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		}
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("database connected")

	// Feed fallback chain: live, then bounded replay, then (opt-in) synthetic.
	var sources []feed.Source
	if cfg.Feed.WSURL != "" {
		sources = append(sources, feed.NewLiveSource(feed.LiveConfig{
			URL:                cfg.Feed.WSURL,
			Symbols:            cfg.Feed.Symbols,
			MaxReconnects:      cfg.Feed.MaxReconnects,
			ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay,
			ReconnectMaxDelay:  cfg.Feed.ReconnectMaxDelay,
		}, logger))
	}
	if cfg.Feed.HistoryURL != "" {
		sources = append(sources, feed.NewReplaySource(feed.ReplayConfig{
			URL:      cfg.Feed.HistoryURL,
			Symbols:  cfg.Feed.Symbols,
			Window:   cfg.Feed.ReplayWindow,
			DataType: cfg.Feed.DataType,
		}, logger))
	}
	if cfg.Feed.AllowSynthetic {
		sources = append(sources, feed.NewSyntheticSource(feed.DefaultSyntheticConfig(cfg.Feed.Symbols), logger))
	}
	if len(sources) == 0 {
		logger.Error("no feed sources configured")
		os.Exit(1)
	}
	chain := feed.NewChain(logger, sources...)

	// Candle path: aggregator table, enrichment client, candle sink.
	var table *candle.Table
	if cfg.Mode != "batch" {
		enricher := enrich.NewClient(cfg.Enrich.URL,
			enrich.WithAttempts(cfg.Enrich.MaxAttempts),
			enrich.WithAttemptTimeout(cfg.Enrich.AttemptTimeout),
			enrich.WithLogger(logger),
		)
		table = candle.NewTable(candle.Config{
			Interval:         cfg.Candle.Interval,
			DiscardTolerance: cfg.Candle.DiscardTolerance,
		}, enricher, writer.NewCandleWriter(db, logger), logger)
	}

	// Batch path: one transformer and one flusher for the configured shape.
	var flusher *writer.Flusher
	transformer := router.NewTransformer(router.Config{Target: cfg.Feed.DataType}, logger)
	if cfg.Mode != "candle" {
		cadence := cfg.Writers.ForClass(cfg.Feed.DataType.Frequency())
		flusher = writer.NewFlusher(writer.Config{
			BatchSize:       cadence.BatchSize,
			FlushTimeout:    cadence.FlushTimeout,
			MaxFlushTimeout: cadence.MaxFlushTimeout,
			ByteCeiling:     cfg.Writers.ByteCeiling,
			WriteRetries:    cfg.Writers.WriteRetries,
			RetryBackoff:    cfg.Writers.RetryBackoff,
			WriteTimeout:    writer.DefaultConfig().WriteTimeout,
		}, cfg.Feed.DataType, writer.NewPGSink(db, logger), logger)
	}

	sweeper := database.NewSweeper(database.SweeperConfig{
		MaxAge:   cfg.Retention.MaxAge,
		Interval: cfg.Retention.SweepInterval,
	}, db, logger)

	ctl := pipeline.New(pipeline.Config{
		Mode:        cfg.Mode,
		RunDuration: cfg.Run.Duration,
	}, chain, transformer,
		tableOrNil(table), flusherOrNil(flusher),
		func(ctx context.Context) error { return database.EnsureSchema(ctx, db, logger) },
		logger, sweeper)

	// Health server runs for the whole process lifetime.
	healthPort := 8080
	if cfg.Metrics.Port > 0 {
		healthPort = cfg.Metrics.Port
	}
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: createHealthHandler(db, ctl, transformer, flusher, logger),
	}
	go func() {
		logger.Info("starting health server", "port", healthPort)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("gatherer running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", healthPort),
	)

	runErr := ctl.Run(ctx)

	// Graceful shutdown of health server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	if runErr != nil {
		logger.Error("gatherer stopped with error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("gatherer stopped")
}

// tableOrNil avoids handing the controller a typed nil interface.
func tableOrNil(t *candle.Table) pipeline.CandleTable {
	if t == nil {
		return nil
	}
	return t
}

func flusherOrNil(f *writer.Flusher) pipeline.BatchWriter {
	if f == nil {
		return nil
	}
	return f
}

type pinger interface {
	Ping(ctx context.Context) error
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(db pinger, ctl *pipeline.Controller, transformer *router.Transformer, flusher *writer.Flusher, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		// Pipeline state
		state := ctl.State()
		health.Components["pipeline"] = state.String()
		if state == pipeline.StateStopped {
			health.Status = "degraded"
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := map[string]interface{}{
			"transformer": transformer.Stats(),
		}
		if flusher != nil {
			stats["flusher"] = flusher.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})

	return mux
}
