package storage

import (
	"context"

	"token-curve-engine/internal/domain"
)

// Store is the authoritative persistence of instrument state and trade history.
type Store interface {
	// LoadState retrieves the state of an instrument. Returns ErrNotFound if not exists.
	LoadState(ctx context.Context, instrument string) (*domain.InstrumentState, error)

	// CreateState stores a fresh instrument. Returns ErrDuplicateKey if it exists.
	CreateState(ctx context.Context, state *domain.InstrumentState) error

	// CommitTrade atomically replaces the instrument state and appends the trade.
	// Returns ErrConflict if the stored TradeCount is not prevSeq, ErrNotFound if the
	// instrument does not exist and ErrDuplicateKey if trade_id exists.
	CommitTrade(ctx context.Context, prevSeq uint64, state *domain.InstrumentState, trade *domain.Trade) error

	// LoadTrades retrieves all trades of an instrument, ordered by seq ASC.
	LoadTrades(ctx context.Context, instrument string) ([]*domain.Trade, error)

	// ListInstruments returns every stored instrument id, ordered ASC.
	ListInstruments(ctx context.Context) ([]string, error)
}

// TradeArchive is a non-authoritative analytics copy of executed trades.
type TradeArchive interface {
	// ArchiveTrades appends trades. Trades already archived are skipped.
	ArchiveTrades(ctx context.Context, trades []*domain.Trade) error

	// GetByTimeRange retrieves trades for an instrument within [start, end] (inclusive),
	// ordered by seq ASC.
	GetByTimeRange(ctx context.Context, instrument string, start, end int64) ([]*domain.Trade, error)
}
