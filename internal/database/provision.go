package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProvisioningError reports a failed sink setup at startup. It is fatal:
// the pipeline never starts accepting events.
type ProvisioningError struct {
	Table string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provision %s: %v", e.Table, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// envelopeColumns are shared by every record table. Timestamps are integer
// microseconds since epoch.
const envelopeColumns = `
	ts BIGINT NOT NULL,
	local_ts BIGINT NOT NULL,
	received_ts BIGINT NOT NULL,
	out_ts BIGINT,
	symbol TEXT NOT NULL,
	exchange TEXT NOT NULL,
	latency_ms DOUBLE PRECISION NOT NULL,
	processing_latency_ms DOUBLE PRECISION,
	synthetic BOOLEAN NOT NULL DEFAULT FALSE`

// tableDDL maps every table to its creation statement.
var tableDDL = map[string]string{
	"trades": `CREATE TABLE IF NOT EXISTS trades (` + envelopeColumns + `,
		trade_id TEXT PRIMARY KEY,
		price DOUBLE PRECISION NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		side TEXT NOT NULL)`,

	"liquidations": `CREATE TABLE IF NOT EXISTS liquidations (` + envelopeColumns + `,
		liquidation_id TEXT PRIMARY KEY,
		price DOUBLE PRECISION NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		side TEXT NOT NULL,
		liquidation_type TEXT NOT NULL)`,

	"book_snapshots": `CREATE TABLE IF NOT EXISTS book_snapshots (` + envelopeColumns + `,
		bids JSONB NOT NULL,
		asks JSONB NOT NULL,
		bid_count INT NOT NULL,
		ask_count INT NOT NULL)`,

	"derivative_ticker": `CREATE TABLE IF NOT EXISTS derivative_ticker (` + envelopeColumns + `,
		mark_price DOUBLE PRECISION NOT NULL,
		index_price DOUBLE PRECISION NOT NULL,
		funding_rate DOUBLE PRECISION NOT NULL,
		open_interest DOUBLE PRECISION NOT NULL)`,

	"options_chain": `CREATE TABLE IF NOT EXISTS options_chain (` + envelopeColumns + `,
		strike_price DOUBLE PRECISION NOT NULL,
		expiry BIGINT NOT NULL,
		option_type TEXT NOT NULL,
		bid DOUBLE PRECISION NOT NULL,
		ask DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL)`,

	"candles": `CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		bucket_start BIGINT NOT NULL,
		open NUMERIC NOT NULL,
		high NUMERIC NOT NULL,
		low NUMERIC NOT NULL,
		close NUMERIC NOT NULL,
		volume NUMERIC NOT NULL,
		trade_count BIGINT NOT NULL,
		features JSONB,
		first_in_session BOOLEAN NOT NULL DEFAULT FALSE,
		completed_at BIGINT NOT NULL,
		PRIMARY KEY (symbol, timeframe, bucket_start))`,
}

// recordTables lists the time-series tables the hour/symbol indexes and the
// retention sweep apply to.
var recordTables = []string{
	"trades", "liquidations", "book_snapshots", "derivative_ticker", "options_chain",
}

// EnsureSchema provisions every table and index the gatherer writes to.
// Any failure wraps into a ProvisioningError; the caller treats it as fatal.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for table, ddl := range tableDDL {
		if _, err := db.Exec(ctx, ddl); err != nil {
			return &ProvisioningError{Table: table, Err: err}
		}
	}

	// Hour bucketing over the event timestamp plus (symbol, exchange)
	// clustering, mirroring the original hourly partition layout.
	for _, table := range recordTables {
		idx := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_%s_hour ON %s ((ts / 3600000000), symbol, exchange)`,
			table, table,
		)
		if _, err := db.Exec(ctx, idx); err != nil {
			return &ProvisioningError{Table: table, Err: err}
		}
	}

	logger.Info("schema provisioned", "tables", len(tableDDL))
	return nil
}
