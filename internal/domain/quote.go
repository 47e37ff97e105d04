package domain

import "github.com/shopspring/decimal"

// FeeBreakdown is the split of a gross lamport amount.
type FeeBreakdown struct {
	CreatorFee  uint64
	PlatformFee uint64
	Net         uint64
}

// Total returns the combined fee.
func (f FeeBreakdown) Total() uint64 {
	return f.CreatorFee + f.PlatformFee
}

// TradeRequest asks the engine to execute a trade.
type TradeRequest struct {
	Instrument     string
	Wallet         string // already authenticated by the caller
	Amount         uint64 // lamports for buys, token base units for sells
	MinOut         uint64 // minimum acceptable output
	MaxSlippageBps uint32 // optional; zero disables the check
}

// TradePreview is the engine's answer to "what would I get".
type TradePreview struct {
	Instrument      string
	Side            Side
	Phase           Phase
	InputAmount     uint64
	OutputAmount    uint64
	MinimumReceived uint64
	Fees            FeeBreakdown
	PriceImpact     decimal.Decimal // percent
	ExecutionPrice  decimal.Decimal // SOL per whole token
	WouldGraduate   bool
}

// TradeResult is the authoritative outcome of an executed trade.
type TradeResult struct {
	Trade          *Trade
	OutputAmount   uint64
	ExecutionPrice decimal.Decimal
	Fees           FeeBreakdown
	State          *InstrumentState
	Graduated      bool
}

// Metrics summarizes one instrument for callers.
type Metrics struct {
	Instrument         string
	CurrentPrice       decimal.Decimal // SOL per whole token
	MarketCap          decimal.Decimal // SOL
	Volume24h          decimal.Decimal // SOL
	PriceChange24h     decimal.Decimal // percent
	GraduationProgress decimal.Decimal // percent, 100 once graduated
	IsGraduated        bool
	HolderCount        int
	TradeCount         uint64
}
