package memory

import (
	"context"
	"sort"
	"sync"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu       sync.RWMutex
	states   map[string]*domain.InstrumentState // keyed by instrument
	trades   map[string][]*domain.Trade         // keyed by instrument, seq order
	tradeIDs map[string]struct{}
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		states:   make(map[string]*domain.InstrumentState),
		trades:   make(map[string][]*domain.Trade),
		tradeIDs: make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// LoadState retrieves the state of an instrument. Returns ErrNotFound if not exists.
func (s *Store) LoadState(_ context.Context, instrument string) (*domain.InstrumentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[instrument]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return st.Clone(), nil
}

// CreateState stores a fresh instrument. Returns ErrDuplicateKey if it exists.
func (s *Store) CreateState(_ context.Context, state *domain.InstrumentState) error {
	if state == nil || state.Instrument == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[state.Instrument]; exists {
		return storage.ErrDuplicateKey
	}
	s.states[state.Instrument] = state.Clone()
	return nil
}

// CommitTrade atomically replaces the instrument state and appends the trade.
func (s *Store) CommitTrade(_ context.Context, prevSeq uint64, state *domain.InstrumentState, trade *domain.Trade) error {
	if state == nil || trade == nil || trade.TradeID == "" || trade.Instrument != state.Instrument {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.states[state.Instrument]
	if !ok {
		return storage.ErrNotFound
	}
	if cur.TradeCount != prevSeq {
		return storage.ErrConflict
	}
	if _, exists := s.tradeIDs[trade.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	t := *trade
	s.states[state.Instrument] = state.Clone()
	s.trades[state.Instrument] = append(s.trades[state.Instrument], &t)
	s.tradeIDs[trade.TradeID] = struct{}{}
	return nil
}

// LoadTrades retrieves all trades of an instrument, ordered by seq ASC.
func (s *Store) LoadTrades(_ context.Context, instrument string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.trades[instrument]
	result := make([]*domain.Trade, 0, len(stored))
	for _, t := range stored {
		c := *t
		result = append(result, &c)
	}
	return result, nil
}

// ListInstruments returns every stored instrument id, ordered ASC.
func (s *Store) ListInstruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0, len(s.states))
	for id := range s.states {
		result = append(result, id)
	}
	sort.Strings(result)
	return result, nil
}
