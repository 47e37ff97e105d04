// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/storage"
)

// NewState returns a fresh pre-graduation state.
func NewState(instrument string) *domain.InstrumentState {
	return &domain.InstrumentState{
		Instrument: instrument,
		Creator:    "creator-" + instrument,
		Phase:      domain.PhasePreGraduation,
		CreatedAt:  1_700_000_000_000,
		UpdatedAt:  1_700_000_000_000,
	}
}

// NextTrade returns a buy trade following state and the state it produces.
func NextTrade(state *domain.InstrumentState, lamports uint64) (*domain.InstrumentState, *domain.Trade) {
	next := state.Clone()
	next.TradeCount++
	next.Curve.SolRaised += lamports
	next.CreatorFees += lamports / 200
	next.PlatformFees += lamports / 200
	next.UpdatedAt += 1_000

	trade := &domain.Trade{
		TradeID:        fmt.Sprintf("%s-%d", state.Instrument, next.TradeCount),
		Instrument:     state.Instrument,
		Seq:            next.TradeCount,
		Side:           domain.SideBuy,
		Phase:          domain.PhasePreGraduation,
		Wallet:         "wallet",
		InputAmount:    lamports,
		OutputAmount:   lamports * 35,
		QuoteVolume:    lamports,
		CreatorFee:     lamports / 200,
		PlatformFee:    lamports / 200,
		Price:          decimal.RequireFromString("0.000000027958993849"),
		Timestamp:      next.UpdatedAt,
		SolRaisedAfter: next.Curve.SolRaised,
	}
	return next, trade
}

// Run exercises a storage.Store. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("LoadState_NotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadState(context.Background(), "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("CreateState_RoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		st := NewState("mint-a")
		require.NoError(t, s.CreateState(ctx, st))

		got, err := s.LoadState(ctx, "mint-a")
		require.NoError(t, err)
		assert.Equal(t, st, got)

		assert.ErrorIs(t, s.CreateState(ctx, st), storage.ErrDuplicateKey)
	})

	t.Run("CommitTrade", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		st := NewState("mint-b")
		require.NoError(t, s.CreateState(ctx, st))

		next, trade := NextTrade(st, 1_000_000_000)
		require.NoError(t, s.CommitTrade(ctx, 0, next, trade))

		got, err := s.LoadState(ctx, "mint-b")
		require.NoError(t, err)
		assert.Equal(t, next, got)

		trades, err := s.LoadTrades(ctx, "mint-b")
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.Equal(t, trade.TradeID, trades[0].TradeID)
		assert.Equal(t, trade.InputAmount, trades[0].InputAmount)
		assert.True(t, trade.Price.Equal(trades[0].Price))
		assert.Equal(t, trade.Timestamp, trades[0].Timestamp)
	})

	t.Run("CommitTrade_StaleSequence", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		st := NewState("mint-c")
		require.NoError(t, s.CreateState(ctx, st))
		next, trade := NextTrade(st, 1_000)
		require.NoError(t, s.CommitTrade(ctx, 0, next, trade))

		// A second writer planned against the old state.
		stale, staleTrade := NextTrade(st, 2_000)
		staleTrade.TradeID = "other"
		assert.ErrorIs(t, s.CommitTrade(ctx, 0, stale, staleTrade), storage.ErrConflict)

		got, err := s.LoadState(ctx, "mint-c")
		require.NoError(t, err)
		assert.Equal(t, next, got, "conflicting commit must not change state")

		trades, err := s.LoadTrades(ctx, "mint-c")
		require.NoError(t, err)
		assert.Len(t, trades, 1)
	})

	t.Run("CommitTrade_UnknownInstrument", func(t *testing.T) {
		s := newStore(t)
		next, trade := NextTrade(NewState("ghost"), 1_000)
		assert.ErrorIs(t, s.CommitTrade(context.Background(), 0, next, trade), storage.ErrNotFound)
	})

	t.Run("CommitTrade_GraduatedState", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		st := NewState("mint-d")
		require.NoError(t, s.CreateState(ctx, st))

		next, trade := NextTrade(st, 85_000_000_000)
		next.Phase = domain.PhaseGraduated
		next.Curve.Graduated = true
		next.Pool = &domain.PoolState{
			Address:        "pool-d",
			TokenReserve:   206_892_286_355_387,
			SolReserve:     84_999_999_999,
			ResidualTokens: 20_615_948_961,
			ResidualSol:    1,
			GraduatedAt:    next.UpdatedAt,
		}
		trade.Graduated = true
		trade.TokenReserveAfter = next.Pool.TokenReserve
		trade.SolReserveAfter = next.Pool.SolReserve
		require.NoError(t, s.CommitTrade(ctx, 0, next, trade))

		got, err := s.LoadState(ctx, "mint-d")
		require.NoError(t, err)
		assert.Equal(t, next, got)

		trades, err := s.LoadTrades(ctx, "mint-d")
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.True(t, trades[0].Graduated)
		assert.Equal(t, next.Pool.TokenReserve, trades[0].TokenReserveAfter)
	})

	t.Run("LoadTrades_Ordered", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		st := NewState("mint-e")
		require.NoError(t, s.CreateState(ctx, st))
		for i := 0; i < 5; i++ {
			next, trade := NextTrade(st, uint64(i+1)*1_000)
			require.NoError(t, s.CommitTrade(ctx, st.TradeCount, next, trade))
			st = next
		}

		trades, err := s.LoadTrades(ctx, "mint-e")
		require.NoError(t, err)
		require.Len(t, trades, 5)
		for i, tr := range trades {
			assert.Equal(t, uint64(i+1), tr.Seq)
		}

		empty, err := s.LoadTrades(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("ListInstruments", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, id := range []string{"mint-z", "mint-x", "mint-y"} {
			require.NoError(t, s.CreateState(ctx, NewState(id)))
		}
		ids, err := s.ListInstruments(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"mint-x", "mint-y", "mint-z"}, ids)
	})
}

// RunArchive exercises a storage.TradeArchive. newArchive must return an empty archive.
func RunArchive(t *testing.T, newArchive func(t *testing.T) storage.TradeArchive) {
	t.Run("ArchiveAndQuery", func(t *testing.T) {
		a := newArchive(t)
		ctx := context.Background()

		st := NewState("mint-arch")
		var trades []*domain.Trade
		for i := 0; i < 4; i++ {
			next, trade := NextTrade(st, uint64(i+1)*1_000)
			trades = append(trades, trade)
			st = next
		}
		require.NoError(t, a.ArchiveTrades(ctx, trades))
		// archiving again is a no-op
		require.NoError(t, a.ArchiveTrades(ctx, trades[:2]))

		all, err := a.GetByTimeRange(ctx, "mint-arch", 0, trades[3].Timestamp)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, uint64(1), all[0].Seq)
		assert.True(t, trades[2].Price.Equal(all[2].Price))

		mid, err := a.GetByTimeRange(ctx, "mint-arch", trades[1].Timestamp, trades[2].Timestamp)
		require.NoError(t, err)
		require.Len(t, mid, 2)
		assert.Equal(t, trades[1].TradeID, mid[0].TradeID)

		none, err := a.GetByTimeRange(ctx, "other", 0, trades[3].Timestamp)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
