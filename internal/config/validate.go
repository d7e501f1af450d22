package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *GathererConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	switch c.Mode {
	case "candle", "batch", "all":
	default:
		return fmt.Errorf("mode must be one of candle, batch, all; got %q", c.Mode)
	}

	if len(c.Feed.Symbols) == 0 {
		return errors.New("feed.symbols must list at least one symbol")
	}
	if !c.Feed.DataType.Valid() {
		return fmt.Errorf("feed.data_type %q is not a known data type", c.Feed.DataType)
	}

	if c.Candle.DiscardTolerance < 0 || c.Candle.DiscardTolerance > 1 {
		return fmt.Errorf("candle.discard_tolerance must be in [0, 1], got %g", c.Candle.DiscardTolerance)
	}

	if c.Enrich.MaxAttempts < 1 {
		return errors.New("enrich.max_attempts must be >= 1")
	}

	if err := c.Writers.HighFrequency.validate("writers.high_frequency"); err != nil {
		return err
	}
	if err := c.Writers.LowFrequency.validate("writers.low_frequency"); err != nil {
		return err
	}
	if c.Writers.ByteCeiling < 1 {
		return errors.New("writers.byte_ceiling must be >= 1")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (f FlushConfig) validate(prefix string) error {
	if f.BatchSize < 1 {
		return fmt.Errorf("%s.batch_size must be >= 1", prefix)
	}
	if f.FlushTimeout <= 0 {
		return fmt.Errorf("%s.flush_timeout must be positive", prefix)
	}
	if f.MaxFlushTimeout < f.FlushTimeout {
		return fmt.Errorf("%s.max_flush_timeout (%s) cannot be below flush_timeout (%s)",
			prefix, f.MaxFlushTimeout, f.FlushTimeout)
	}
	return nil
}

func (db DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
