package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kgrant/tickdata/internal/model"
)

// PGSink writes record batches to Postgres using pgx batched inserts.
// Inserts are append-only with ON CONFLICT DO NOTHING where a natural key
// exists, so an at-least-once upstream cannot duplicate trades.
type PGSink struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPGSink creates a Postgres record sink.
func NewPGSink(db *pgxpool.Pool, logger *slog.Logger) *PGSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGSink{db: db, logger: logger}
}

// WriteBatch writes one batch of same-typed records. The batch is submitted
// as a single pgx batch round trip; any statement error fails the whole
// batch so the caller can retry it atomically.
func (s *PGSink) WriteBatch(ctx context.Context, dataType model.DataType, batch []model.Record) error {
	if len(batch) == 0 {
		return nil
	}

	pgb := &pgx.Batch{}
	for _, rec := range batch {
		if err := queueInsert(pgb, dataType, rec); err != nil {
			return err
		}
	}

	results := s.db.SendBatch(ctx, pgb)
	defer results.Close()

	for range batch {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert %s: %w", dataType, err)
		}
	}
	return nil
}

// envelopeArgs returns the column values shared by every record table, in
// schema order: ts, local_ts, received_ts, out_ts, symbol, exchange,
// latency_ms, processing_latency_ms, synthetic.
func envelopeArgs(env *model.Envelope) []any {
	var outTS any
	if env.TimestampOut != nil {
		outTS = env.TimestampOut.UnixMicro()
	}
	var procLatency any
	if env.ProcessingLatency != nil {
		procLatency = *env.ProcessingLatency
	}
	return []any{
		env.Timestamp.UnixMicro(),
		env.LocalTimestamp.UnixMicro(),
		env.TimestampReceived.UnixMicro(),
		outTS,
		env.Symbol,
		env.Exchange,
		env.LatencyMS,
		procLatency,
		env.Approximate,
	}
}

func queueInsert(pgb *pgx.Batch, dataType model.DataType, rec model.Record) error {
	switch r := rec.(type) {
	case *model.TradeRecord:
		args := append(envelopeArgs(r.Env()), r.ID, r.Price, r.Amount, r.Side)
		pgb.Queue(`
			INSERT INTO trades (ts, local_ts, received_ts, out_ts, symbol, exchange, latency_ms, processing_latency_ms, synthetic, trade_id, price, amount, side)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (trade_id) DO NOTHING
		`, args...)

	case *model.LiquidationRecord:
		args := append(envelopeArgs(r.Env()), r.ID, r.Price, r.Amount, r.Side, r.LiquidationType)
		pgb.Queue(`
			INSERT INTO liquidations (ts, local_ts, received_ts, out_ts, symbol, exchange, latency_ms, processing_latency_ms, synthetic, liquidation_id, price, amount, side, liquidation_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (liquidation_id) DO NOTHING
		`, args...)

	case *model.BookSnapshotRecord:
		bids, err := json.Marshal(r.Bids)
		if err != nil {
			return fmt.Errorf("marshal bids: %w", err)
		}
		asks, err := json.Marshal(r.Asks)
		if err != nil {
			return fmt.Errorf("marshal asks: %w", err)
		}
		args := append(envelopeArgs(r.Env()), bids, asks, r.BidCount, r.AskCount)
		pgb.Queue(`
			INSERT INTO book_snapshots (ts, local_ts, received_ts, out_ts, symbol, exchange, latency_ms, processing_latency_ms, synthetic, bids, asks, bid_count, ask_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, args...)

	case *model.DerivativeTickerRecord:
		args := append(envelopeArgs(r.Env()), r.MarkPrice, r.IndexPrice, r.FundingRate, r.OpenInterest)
		pgb.Queue(`
			INSERT INTO derivative_ticker (ts, local_ts, received_ts, out_ts, symbol, exchange, latency_ms, processing_latency_ms, synthetic, mark_price, index_price, funding_rate, open_interest)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, args...)

	case *model.OptionsChainRecord:
		args := append(envelopeArgs(r.Env()), r.StrikePrice, r.Expiry.UnixMicro(), r.OptionType, r.Bid, r.Ask, r.Volume)
		pgb.Queue(`
			INSERT INTO options_chain (ts, local_ts, received_ts, out_ts, symbol, exchange, latency_ms, processing_latency_ms, synthetic, strike_price, expiry, option_type, bid, ask, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, args...)

	default:
		return fmt.Errorf("unknown record type %T for data type %s", rec, dataType)
	}
	return nil
}

// CandleWriter persists finalized, enriched candles. Implements candle.Sink.
type CandleWriter struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewCandleWriter creates a Postgres candle writer.
func NewCandleWriter(db *pgxpool.Pool, logger *slog.Logger) *CandleWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CandleWriter{db: db, logger: logger}
}

// EmitCandle writes one finalized candle. Prices and volume go through
// lossless float formatting into NUMERIC columns so the sink preserves the
// exact in-memory values.
func (w *CandleWriter) EmitCandle(ctx context.Context, c model.Candle) error {
	features, err := json.Marshal(c.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	_, err = w.db.Exec(ctx, `
		INSERT INTO candles (symbol, timeframe, bucket_start, open, high, low, close, volume, trade_count, features, first_in_session, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (symbol, timeframe, bucket_start) DO NOTHING
	`,
		c.Symbol,
		c.Timeframe,
		c.BucketStart.UnixMicro(),
		numeric(c.Open),
		numeric(c.High),
		numeric(c.Low),
		numeric(c.Close),
		numeric(c.Volume),
		c.TradeCount,
		features,
		c.IsFirstInSession,
		c.CompletedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("insert candle: %w", err)
	}

	w.logger.Debug("candle written",
		"symbol", c.Symbol,
		"timeframe", c.Timeframe,
		"bucket_start", c.BucketStart,
		"trade_count", c.TradeCount,
	)
	return nil
}

// numeric formats a float for a NUMERIC column without precision loss.
func numeric(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
