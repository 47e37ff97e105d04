package memory

import (
	"context"
	"sort"
	"sync"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/storage"
)

// TradeArchive is an in-memory implementation of storage.TradeArchive.
type TradeArchive struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by trade_id
}

// NewTradeArchive creates a new in-memory trade archive.
func NewTradeArchive() *TradeArchive {
	return &TradeArchive{
		data: make(map[string]*domain.Trade),
	}
}

// Compile-time interface check.
var _ storage.TradeArchive = (*TradeArchive)(nil)

// ArchiveTrades appends trades. Trades already archived are skipped.
func (a *TradeArchive) ArchiveTrades(_ context.Context, trades []*domain.Trade) error {
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, t := range trades {
		if _, exists := a.data[t.TradeID]; exists {
			continue
		}
		c := *t
		a.data[t.TradeID] = &c
	}
	return nil
}

// GetByTimeRange retrieves trades for an instrument within [start, end] (inclusive).
func (a *TradeArchive) GetByTimeRange(_ context.Context, instrument string, start, end int64) ([]*domain.Trade, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var result []*domain.Trade
	for _, t := range a.data {
		if t.Instrument == instrument && t.Timestamp >= start && t.Timestamp <= end {
			c := *t
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})

	return result, nil
}
