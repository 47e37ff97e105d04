package domain

import "github.com/shopspring/decimal"

// Side is the direction of a trade from the trader's point of view.
type Side string

// Trade sides.
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is an executed trade. Immutable once appended to the ledger.
type Trade struct {
	TradeID    string // deterministic hash
	Instrument string
	Seq        uint64 // per-instrument sequence, starts at 1
	Side       Side
	Phase      Phase // phase the trade was priced in
	Wallet     string

	InputAmount  uint64          // lamports for buys, token base units for sells
	OutputAmount uint64          // token base units for buys, net lamports for sells
	QuoteVolume  uint64          // gross lamports moved by the trade
	CreatorFee   uint64          // lamports
	PlatformFee  uint64          // lamports
	Price        decimal.Decimal // average execution price, SOL per whole token
	Timestamp    int64           // Unix timestamp (ms)

	// State after the trade.
	SolRaisedAfter    uint64
	TokenReserveAfter uint64 // zero before graduation
	SolReserveAfter   uint64 // zero before graduation
	Graduated         bool   // this trade triggered graduation
}

// Candle is an OHLCV bar. Derived from trades, never stored authoritatively.
type Candle struct {
	Time       int64           // bucket start, Unix seconds
	Open       decimal.Decimal // SOL per whole token
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal // SOL
	TradeCount int
}
