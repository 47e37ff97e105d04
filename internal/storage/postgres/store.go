package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/storage"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

const stateColumns = `
	instrument, creator, phase, sol_raised, curve_graduated,
	pool_address, pool_token_reserve, pool_sol_reserve, pool_residual_tokens, pool_residual_sol, pool_graduated_at,
	creator_fees, platform_fees, trade_count, created_at, updated_at
`

const tradeColumns = `
	trade_id, instrument, seq, side, phase, wallet,
	input_amount, output_amount, quote_volume, creator_fee, platform_fee,
	price, timestamp_ms,
	sol_raised_after, token_reserve_after, sol_reserve_after, graduated
`

// LoadState retrieves the state of an instrument. Returns ErrNotFound if not exists.
func (s *Store) LoadState(ctx context.Context, instrument string) (*domain.InstrumentState, error) {
	query := `SELECT ` + stateColumns + ` FROM instrument_states WHERE instrument = $1`

	st, err := scanState(s.pool.QueryRow(ctx, query, instrument))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load instrument state: %w", err)
	}
	return st, nil
}

// CreateState stores a fresh instrument. Returns ErrDuplicateKey if it exists.
func (s *Store) CreateState(ctx context.Context, st *domain.InstrumentState) error {
	if st == nil || st.Instrument == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO instrument_states (` + stateColumns + `) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)
	`

	_, err := s.pool.Exec(ctx, query, stateArgs(st)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert instrument state: %w", err)
	}
	return nil
}

// CommitTrade atomically replaces the instrument state and appends the trade.
func (s *Store) CommitTrade(ctx context.Context, prevSeq uint64, st *domain.InstrumentState, t *domain.Trade) error {
	if st == nil || t == nil || t.TradeID == "" || t.Instrument != st.Instrument {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	update := `
		UPDATE instrument_states SET
			creator = $2, phase = $3, sol_raised = $4, curve_graduated = $5,
			pool_address = $6, pool_token_reserve = $7, pool_sol_reserve = $8,
			pool_residual_tokens = $9, pool_residual_sol = $10, pool_graduated_at = $11,
			creator_fees = $12, platform_fees = $13, trade_count = $14,
			created_at = $15, updated_at = $16
		WHERE instrument = $1 AND trade_count = $17
	`

	args := append(stateArgs(st), int64(prevSeq))
	tag, err := tx.Exec(ctx, update, args...)
	if err != nil {
		return fmt.Errorf("update instrument state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM instrument_states WHERE instrument = $1)`, st.Instrument).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check instrument exists: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}

	insert := `
		INSERT INTO trades (` + tradeColumns + `) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13,
			$14, $15, $16, $17
		)
	`
	if _, err := tx.Exec(ctx, insert, tradeArgs(t)...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadTrades retrieves all trades of an instrument, ordered by seq ASC.
func (s *Store) LoadTrades(ctx context.Context, instrument string) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE instrument = $1 ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query, instrument)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ListInstruments returns every stored instrument id, ordered ASC.
func (s *Store) ListInstruments(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT instrument FROM instrument_states ORDER BY instrument ASC`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan instrument rows: %w", err)
	}
	return ids, nil
}

func stateArgs(st *domain.InstrumentState) []any {
	var poolAddress *string
	var tokenReserve, solReserve, resTokens, resSol, graduatedAt *int64
	if p := st.Pool; p != nil {
		poolAddress = &p.Address
		tokenReserve = i64(p.TokenReserve)
		solReserve = i64(p.SolReserve)
		resTokens = i64(p.ResidualTokens)
		resSol = i64(p.ResidualSol)
		graduatedAt = &p.GraduatedAt
	}
	return []any{
		st.Instrument, st.Creator, string(st.Phase), int64(st.Curve.SolRaised), st.Curve.Graduated,
		poolAddress, tokenReserve, solReserve, resTokens, resSol, graduatedAt,
		int64(st.CreatorFees), int64(st.PlatformFees), int64(st.TradeCount), st.CreatedAt, st.UpdatedAt,
	}
}

func tradeArgs(t *domain.Trade) []any {
	return []any{
		t.TradeID, t.Instrument, int64(t.Seq), string(t.Side), string(t.Phase), t.Wallet,
		int64(t.InputAmount), int64(t.OutputAmount), int64(t.QuoteVolume), int64(t.CreatorFee), int64(t.PlatformFee),
		t.Price.String(), t.Timestamp,
		int64(t.SolRaisedAfter), int64(t.TokenReserveAfter), int64(t.SolReserveAfter), t.Graduated,
	}
}

func i64(v uint64) *int64 {
	x := int64(v)
	return &x
}

// scanState scans a single row into an InstrumentState.
func scanState(row pgx.Row) (*domain.InstrumentState, error) {
	var st domain.InstrumentState
	var phase string
	var solRaised, creatorFees, platformFees, tradeCount int64
	var poolAddress *string
	var tokenReserve, solReserve, resTokens, resSol, gradAt *int64

	err := row.Scan(
		&st.Instrument, &st.Creator, &phase, &solRaised, &st.Curve.Graduated,
		&poolAddress, &tokenReserve, &solReserve, &resTokens, &resSol, &gradAt,
		&creatorFees, &platformFees, &tradeCount, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	st.Phase = domain.Phase(phase)
	st.Curve.SolRaised = uint64(solRaised)
	st.CreatorFees = uint64(creatorFees)
	st.PlatformFees = uint64(platformFees)
	st.TradeCount = uint64(tradeCount)
	if tokenReserve != nil {
		st.Pool = &domain.PoolState{
			Address:        deref(poolAddress),
			TokenReserve:   uint64(*tokenReserve),
			SolReserve:     uint64(derefInt(solReserve)),
			ResidualTokens: uint64(derefInt(resTokens)),
			ResidualSol:    uint64(derefInt(resSol)),
			GraduatedAt:    derefInt(gradAt),
		}
	}
	return &st, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	trades := []*domain.Trade{}

	for rows.Next() {
		var t domain.Trade
		var side, phase, price string
		var seq, in, out, volume, creatorFee, platformFee int64
		var solRaisedAfter, tokenReserveAfter, solReserveAfter int64

		err := rows.Scan(
			&t.TradeID, &t.Instrument, &seq, &side, &phase, &t.Wallet,
			&in, &out, &volume, &creatorFee, &platformFee,
			&price, &t.Timestamp,
			&solRaisedAfter, &tokenReserveAfter, &solReserveAfter, &t.Graduated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		t.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse trade price %q: %w", price, err)
		}
		t.Seq = uint64(seq)
		t.Side = domain.Side(side)
		t.Phase = domain.Phase(phase)
		t.InputAmount = uint64(in)
		t.OutputAmount = uint64(out)
		t.QuoteVolume = uint64(volume)
		t.CreatorFee = uint64(creatorFee)
		t.PlatformFee = uint64(platformFee)
		t.SolRaisedAfter = uint64(solRaisedAfter)
		t.TokenReserveAfter = uint64(tokenReserveAfter)
		t.SolReserveAfter = uint64(solReserveAfter)

		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
