package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kgrant/tickdata/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatherer.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
instance:
  id: test-gatherer
feed:
  symbols: ["BTC-USDT"]
database:
  host: localhost
  name: tickdata
  user: ingest
  password: secret
`

func TestLoadAndValidate_AppliesDefaults(t *testing.T) {
	cfg, err := LoadAndValidate(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}

	if cfg.Mode != "candle" {
		t.Errorf("Mode = %q, want candle", cfg.Mode)
	}
	if cfg.Feed.DataType != model.DataTypeTrade {
		t.Errorf("Feed.DataType = %q, want trades", cfg.Feed.DataType)
	}
	if cfg.Candle.Interval != "1m" {
		t.Errorf("Candle.Interval = %q, want 1m", cfg.Candle.Interval)
	}
	if cfg.Candle.DiscardTolerance != 0.99 {
		t.Errorf("DiscardTolerance = %g, want 0.99", cfg.Candle.DiscardTolerance)
	}
	if cfg.Enrich.MaxAttempts != 3 || cfg.Enrich.AttemptTimeout != 2*time.Second {
		t.Errorf("Enrich = %d attempts / %v, want 3 / 2s", cfg.Enrich.MaxAttempts, cfg.Enrich.AttemptTimeout)
	}

	hi := cfg.Writers.HighFrequency
	if hi.BatchSize != 1000 || hi.FlushTimeout != 60*time.Second || hi.MaxFlushTimeout != 300*time.Second {
		t.Errorf("HighFrequency = %+v, want 1000/60s/300s", hi)
	}
	lo := cfg.Writers.LowFrequency
	if lo.BatchSize != 1000 || lo.FlushTimeout != 900*time.Second || lo.MaxFlushTimeout != 1800*time.Second {
		t.Errorf("LowFrequency = %+v, want 1000/900s/1800s", lo)
	}
	if cfg.Writers.ByteCeiling != 9_000_000 {
		t.Errorf("ByteCeiling = %d, want 9000000", cfg.Writers.ByteCeiling)
	}
	if cfg.Writers.WriteRetries != 3 || cfg.Writers.RetryBackoff != time.Second {
		t.Errorf("retries/backoff = %d/%v, want 3/1s", cfg.Writers.WriteRetries, cfg.Writers.RetryBackoff)
	}

	if cfg.Database.Port != 5432 || cfg.Database.SSLMode != "prefer" {
		t.Errorf("Database port/sslmode = %d/%q, want 5432/prefer", cfg.Database.Port, cfg.Database.SSLMode)
	}
	if cfg.Retention.MaxAge != 30*24*time.Hour || cfg.Retention.SweepInterval != time.Hour {
		t.Errorf("Retention = %v/%v, want 720h/1h", cfg.Retention.MaxAge, cfg.Retention.SweepInterval)
	}
	if cfg.Metrics.Port != 8080 {
		t.Errorf("Metrics.Port = %d, want 8080", cfg.Metrics.Port)
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "from-env")

	cfg, err := Load(writeConfig(t, strings.Replace(minimalConfig, "password: secret", "password: ${TEST_DB_PASSWORD}", 1)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Password != "from-env" {
		t.Errorf("Password = %q, want from-env", cfg.Database.Password)
	}
}

func TestValidate_RejectsBadConfigs(t *testing.T) {
	base := func() *GathererConfig {
		cfg, err := LoadWithDefaults(writeConfig(t, minimalConfig))
		if err != nil {
			t.Fatalf("LoadWithDefaults() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*GathererConfig)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *GathererConfig) { c.Instance.ID = "" },
			wantErr: "instance.id",
		},
		{
			name:    "unknown mode",
			mutate:  func(c *GathererConfig) { c.Mode = "firehose" },
			wantErr: "mode",
		},
		{
			name:    "no symbols",
			mutate:  func(c *GathererConfig) { c.Feed.Symbols = nil },
			wantErr: "feed.symbols",
		},
		{
			name:    "unknown data type",
			mutate:  func(c *GathererConfig) { c.Feed.DataType = "candles" },
			wantErr: "feed.data_type",
		},
		{
			name:    "tolerance out of range",
			mutate:  func(c *GathererConfig) { c.Candle.DiscardTolerance = 1.5 },
			wantErr: "discard_tolerance",
		},
		{
			name:    "ceiling below base timeout",
			mutate:  func(c *GathererConfig) { c.Writers.HighFrequency.MaxFlushTimeout = time.Second },
			wantErr: "max_flush_timeout",
		},
		{
			name:    "missing db password",
			mutate:  func(c *GathererConfig) { c.Database.Password = "" },
			wantErr: "database.password",
		},
		{
			name:    "min conns above max",
			mutate:  func(c *GathererConfig) { c.Database.MinConns = 50 },
			wantErr: "min_conns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestWritersConfig_ForClass(t *testing.T) {
	w := WritersConfig{
		HighFrequency: FlushConfig{BatchSize: 1000, FlushTimeout: 60 * time.Second, MaxFlushTimeout: 300 * time.Second},
		LowFrequency:  FlushConfig{BatchSize: 1000, FlushTimeout: 900 * time.Second, MaxFlushTimeout: 1800 * time.Second},
	}

	if got := w.ForClass(model.DataTypeTrade.Frequency()); got.FlushTimeout != 60*time.Second {
		t.Errorf("trades cadence = %v, want 60s", got.FlushTimeout)
	}
	if got := w.ForClass(model.DataTypeOptionsChain.Frequency()); got.FlushTimeout != 900*time.Second {
		t.Errorf("options cadence = %v, want 900s", got.FlushTimeout)
	}
}
