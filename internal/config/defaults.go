package config

import (
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultMode             = "candle"
	DefaultExchange         = "binance"
	DefaultDataType         = model.DataTypeTrade
	DefaultReplayWindow     = time.Hour
	DefaultMaxReconnects    = 5
	DefaultReconnectBase    = 1 * time.Second
	DefaultReconnectMax     = 60 * time.Second
	DefaultInterval         = "1m"
	DefaultDiscardTolerance = 0.99
	DefaultEnrichTimeout    = 2 * time.Second
	DefaultEnrichAttempts   = 3
	DefaultBatchSize        = 1000
	DefaultHighFlushTimeout = 60 * time.Second
	DefaultHighFlushCeiling = 300 * time.Second
	DefaultLowFlushTimeout  = 900 * time.Second
	DefaultLowFlushCeiling  = 1800 * time.Second
	DefaultByteCeiling      = 9_000_000
	DefaultWriteRetries     = 3
	DefaultRetryBackoff     = 1 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultRetentionMaxAge  = 30 * 24 * time.Hour
	DefaultSweepInterval    = time.Hour
	DefaultMetricsPort      = 8080
)

func (c *GathererConfig) applyDefaults() {
	if c.Mode == "" {
		c.Mode = DefaultMode
	}

	// Feed defaults
	if c.Feed.Exchange == "" {
		c.Feed.Exchange = DefaultExchange
	}
	if c.Feed.DataType == "" {
		c.Feed.DataType = DefaultDataType
	}
	if c.Feed.ReplayWindow == 0 {
		c.Feed.ReplayWindow = DefaultReplayWindow
	}
	if c.Feed.MaxReconnects == 0 {
		c.Feed.MaxReconnects = DefaultMaxReconnects
	}
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBase
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMax
	}

	// Candle defaults
	if c.Candle.Interval == "" {
		c.Candle.Interval = DefaultInterval
	}
	if c.Candle.DiscardTolerance == 0 {
		c.Candle.DiscardTolerance = DefaultDiscardTolerance
	}

	// Enrichment defaults
	if c.Enrich.AttemptTimeout == 0 {
		c.Enrich.AttemptTimeout = DefaultEnrichTimeout
	}
	if c.Enrich.MaxAttempts == 0 {
		c.Enrich.MaxAttempts = DefaultEnrichAttempts
	}

	// Writer defaults
	applyFlushDefaults(&c.Writers.HighFrequency, DefaultHighFlushTimeout, DefaultHighFlushCeiling)
	applyFlushDefaults(&c.Writers.LowFrequency, DefaultLowFlushTimeout, DefaultLowFlushCeiling)
	if c.Writers.ByteCeiling == 0 {
		c.Writers.ByteCeiling = DefaultByteCeiling
	}
	if c.Writers.WriteRetries == 0 {
		c.Writers.WriteRetries = DefaultWriteRetries
	}
	if c.Writers.RetryBackoff == 0 {
		c.Writers.RetryBackoff = DefaultRetryBackoff
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Retention defaults
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = DefaultRetentionMaxAge
	}
	if c.Retention.SweepInterval == 0 {
		c.Retention.SweepInterval = DefaultSweepInterval
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
}

func applyFlushDefaults(f *FlushConfig, timeout, ceiling time.Duration) {
	if f.BatchSize == 0 {
		f.BatchSize = DefaultBatchSize
	}
	if f.FlushTimeout == 0 {
		f.FlushTimeout = timeout
	}
	if f.MaxFlushTimeout == 0 {
		f.MaxFlushTimeout = ceiling
	}
}
