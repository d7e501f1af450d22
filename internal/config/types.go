package config

import (
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

// GathererConfig is the top-level configuration for a gatherer instance.
type GathererConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Mode      string          `yaml:"mode"` // "candle", "batch", or "all"
	Feed      FeedConfig      `yaml:"feed"`
	Candle    CandleConfig    `yaml:"candle"`
	Enrich    EnrichConfig    `yaml:"enrich"`
	Writers   WritersConfig   `yaml:"writers"`
	Database  DBConfig        `yaml:"database"`
	Retention RetentionConfig `yaml:"retention"`
	Run       RunConfig       `yaml:"run"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this gatherer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig configures the event sources and the fallback chain.
type FeedConfig struct {
	WSURL      string   `yaml:"ws_url"`
	HistoryURL string   `yaml:"history_url"`
	Symbols    []string `yaml:"symbols"`
	Exchange   string   `yaml:"exchange"`

	// DataType is the target record shape for the batch path.
	DataType model.DataType `yaml:"data_type"`

	// ReplayWindow bounds the historical replay fallback.
	ReplayWindow time.Duration `yaml:"replay_window"`

	// AllowSynthetic enables the synthetic-generation fallback. Off by
	// default: generated data must be opted into, never silent.
	AllowSynthetic bool `yaml:"allow_synthetic"`

	// Reconnect budget for the live source.
	MaxReconnects      int           `yaml:"max_reconnects"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
}

// CandleConfig configures the aggregator.
type CandleConfig struct {
	Interval string `yaml:"interval"` // "15s", "1m", "5m", "15m", "4h", "24h"

	// DiscardTolerance is the fraction of the interval a first-in-session
	// candle must have been observed for to be emitted (default 0.99).
	DiscardTolerance float64 `yaml:"discard_tolerance"`
}

// EnrichConfig configures the feature computation client.
type EnrichConfig struct {
	URL            string        `yaml:"url"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

// FlushConfig is the flush cadence for one frequency classification.
type FlushConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	FlushTimeout    time.Duration `yaml:"flush_timeout"`
	MaxFlushTimeout time.Duration `yaml:"max_flush_timeout"`
}

// WritersConfig configures the batch buffers and the sink writer.
type WritersConfig struct {
	HighFrequency FlushConfig `yaml:"high_frequency"`
	LowFrequency  FlushConfig `yaml:"low_frequency"`

	// ByteCeiling forces a flush when the estimated serialized batch size
	// reaches this many bytes, regardless of classification.
	ByteCeiling int `yaml:"byte_ceiling"`

	WriteRetries int           `yaml:"write_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// ForClass returns the flush cadence for a frequency class.
func (w WritersConfig) ForClass(class model.FrequencyClass) FlushConfig {
	if class == model.FrequencyHigh {
		return w.HighFrequency
	}
	return w.LowFrequency
}

// DBConfig holds connection parameters for the durable sink.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RetentionConfig configures the periodic retention sweep.
type RetentionConfig struct {
	MaxAge        time.Duration `yaml:"max_age"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RunConfig bounds the run.
type RunConfig struct {
	// Duration after which the pipeline drains and stops. Zero means run
	// until cancelled.
	Duration time.Duration `yaml:"duration"`
}

// MetricsConfig configures the health endpoint.
type MetricsConfig struct {
	Port int `yaml:"port"`
}
