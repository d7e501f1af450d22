package model

import (
	"time"
)

// -----------------------------------------------------------------------------
// Canonical Event
// -----------------------------------------------------------------------------

// Side of the aggressing order.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Event is the canonical feed event every source normalizes to.
// Immutable after construction.
type Event struct {
	Type       string    // Native shape: "trade", "liquidation", ...
	Symbol     string    // e.g. "BTC-USDT"
	Exchange   string    // Venue identifier, "synthetic" for generated data
	Price      float64   // Trade price
	Amount     float64   // Base quantity
	Side       string    // "buy" or "sell"
	ExchangeTS time.Time // Venue-assigned timestamp
	ReceiptTS  time.Time // Local receive timestamp
}

// -----------------------------------------------------------------------------
// Data Types & Frequency Classes
// -----------------------------------------------------------------------------

// DataType identifies one of the five storage record shapes.
type DataType string

const (
	DataTypeTrade            DataType = "trades"
	DataTypeLiquidation      DataType = "liquidations"
	DataTypeBookSnapshot     DataType = "book_snapshots"
	DataTypeDerivativeTicker DataType = "derivative_ticker"
	DataTypeOptionsChain     DataType = "options_chain"
)

// FrequencyClass groups data types by expected message rate. It drives the
// batch flush cadence.
type FrequencyClass string

const (
	FrequencyHigh FrequencyClass = "high"
	FrequencyLow  FrequencyClass = "low"
)

// Frequency returns the frequency class for the data type. Trade-like and
// order-book streams are high frequency; everything else is low.
func (d DataType) Frequency() FrequencyClass {
	switch d {
	case DataTypeTrade, DataTypeBookSnapshot:
		return FrequencyHigh
	default:
		return FrequencyLow
	}
}

// Valid reports whether d is one of the five known data types.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeTrade, DataTypeLiquidation, DataTypeBookSnapshot,
		DataTypeDerivativeTicker, DataTypeOptionsChain:
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// Typed Records
// -----------------------------------------------------------------------------

// Envelope carries the fields shared by every typed record. TimestampOut and
// ProcessingLatencyMS stay nil until the record's batch is flushed.
type Envelope struct {
	Timestamp         time.Time  // Venue event time
	LocalTimestamp    time.Time  // Local pipeline time at transform
	TimestampReceived time.Time  // Feed receipt time
	TimestampOut      *time.Time // Stamped at flush
	Symbol            string
	Exchange          string
	LatencyMS         float64  // receipt - exchange, milliseconds
	ProcessingLatency *float64 // flush - receipt, milliseconds; stamped at flush
	Approximate       bool     // True when synthesized from a trade, not venue-sourced
}

// Record is one of the five typed record shapes destined for the batch sink.
type Record interface {
	DataType() DataType
	Env() *Envelope
}

// TradeRecord is an executed trade.
type TradeRecord struct {
	Envelope
	ID     string
	Price  float64
	Amount float64
	Side   string
}

func (r *TradeRecord) DataType() DataType { return DataTypeTrade }
func (r *TradeRecord) Env() *Envelope     { return &r.Envelope }

// LiquidationRecord is a forced position closure.
type LiquidationRecord struct {
	Envelope
	ID              string
	Price           float64
	Amount          float64
	Side            string
	LiquidationType string
}

func (r *LiquidationRecord) DataType() DataType { return DataTypeLiquidation }
func (r *LiquidationRecord) Env() *Envelope     { return &r.Envelope }

// BookLevel is a single price level of an order book snapshot.
type BookLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// BookSnapshotRecord is a point-in-time order book state.
type BookSnapshotRecord struct {
	Envelope
	Bids     []BookLevel
	Asks     []BookLevel
	BidCount int
	AskCount int
}

func (r *BookSnapshotRecord) DataType() DataType { return DataTypeBookSnapshot }
func (r *BookSnapshotRecord) Env() *Envelope     { return &r.Envelope }

// DerivativeTickerRecord is a derivative instrument state update.
type DerivativeTickerRecord struct {
	Envelope
	MarkPrice    float64
	IndexPrice   float64
	FundingRate  float64
	OpenInterest float64
}

func (r *DerivativeTickerRecord) DataType() DataType { return DataTypeDerivativeTicker }
func (r *DerivativeTickerRecord) Env() *Envelope     { return &r.Envelope }

// OptionsChainRecord is a single options chain entry.
type OptionsChainRecord struct {
	Envelope
	StrikePrice float64
	Expiry      time.Time
	OptionType  string // "call" or "put"
	Bid         float64
	Ask         float64
	Volume      float64
}

func (r *OptionsChainRecord) DataType() DataType { return DataTypeOptionsChain }
func (r *OptionsChainRecord) Env() *Envelope     { return &r.Envelope }

// -----------------------------------------------------------------------------
// Candle
// -----------------------------------------------------------------------------

// Candle is a fixed-interval OHLCV aggregate. Mutable while open; treated as
// an immutable snapshot once finalized.
type Candle struct {
	Symbol           string
	Timeframe        string    // Configured interval label, e.g. "1m"
	BucketStart      time.Time // Inclusive start of the half-open bucket
	Open             float64
	High             float64
	Low              float64
	Close            float64
	Volume           float64
	TradeCount       int64
	Features         map[string]float64 // nil until enrichment
	IsFirstInSession bool
	CompletedAt      time.Time // Stamped after enrichment resolves
}

// Snapshot returns an immutable copy of the candle, detached from the
// aggregator's mutable state. The features map is copied.
func (c *Candle) Snapshot() Candle {
	out := *c
	if c.Features != nil {
		out.Features = make(map[string]float64, len(c.Features))
		for k, v := range c.Features {
			out.Features[k] = v
		}
	}
	return out
}
