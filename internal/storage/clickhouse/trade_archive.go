package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/storage"
)

// TradeArchive implements storage.TradeArchive using ClickHouse.
type TradeArchive struct {
	conn *Conn
}

// NewTradeArchive creates a new TradeArchive.
func NewTradeArchive(conn *Conn) *TradeArchive {
	return &TradeArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeArchive = (*TradeArchive)(nil)

// chRows is the subset of driver.Rows the scanners need.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// ArchiveTrades appends trades. Trades already archived are skipped.
func (a *TradeArchive) ArchiveTrades(ctx context.Context, trades []*domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	// Skip intra-batch duplicates and rows already archived
	seen := make(map[string]struct{}, len(trades))
	var pending []*domain.Trade
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[t.TradeID]; dup {
			continue
		}
		seen[t.TradeID] = struct{}{}

		exists, err := a.exists(ctx, t.TradeID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if !exists {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO trades (
			trade_id, instrument, seq, side, phase, wallet,
			input_amount, output_amount, quote_volume, creator_fee, platform_fee,
			price, timestamp_ms,
			sol_raised_after, token_reserve_after, sol_reserve_after, graduated
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range pending {
		var graduated uint8
		if t.Graduated {
			graduated = 1
		}
		err = batch.Append(
			t.TradeID, t.Instrument, t.Seq, string(t.Side), string(t.Phase), t.Wallet,
			t.InputAmount, t.OutputAmount, t.QuoteVolume, t.CreatorFee, t.PlatformFee,
			t.Price.String(), uint64(t.Timestamp),
			t.SolRaisedAfter, t.TokenReserveAfter, t.SolReserveAfter, graduated,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves trades for an instrument within [start, end] (inclusive).
func (a *TradeArchive) GetByTimeRange(ctx context.Context, instrument string, start, end int64) ([]*domain.Trade, error) {
	query := `
		SELECT
			trade_id, instrument, seq, side, phase, wallet,
			input_amount, output_amount, quote_volume, creator_fee, platform_fee,
			price, timestamp_ms,
			sol_raised_after, token_reserve_after, sol_reserve_after, graduated
		FROM trades FINAL
		WHERE instrument = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY seq ASC
	`

	rows, err := a.conn.Query(ctx, query, instrument, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// exists checks if a trade with the given id was archived.
func (a *TradeArchive) exists(ctx context.Context, tradeID string) (bool, error) {
	query := `SELECT count(*) FROM trades WHERE trade_id = ?`

	var count uint64
	err := a.conn.QueryRow(ctx, query, tradeID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanTrades scans multiple rows.
func scanTrades(rows chRows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var t domain.Trade
		var side, phase, price string
		var timestampMs uint64
		var graduated uint8

		err := rows.Scan(
			&t.TradeID, &t.Instrument, &t.Seq, &side, &phase, &t.Wallet,
			&t.InputAmount, &t.OutputAmount, &t.QuoteVolume, &t.CreatorFee, &t.PlatformFee,
			&price, &timestampMs,
			&t.SolRaisedAfter, &t.TokenReserveAfter, &t.SolReserveAfter, &graduated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		t.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse trade price %q: %w", price, err)
		}
		t.Side = domain.Side(side)
		t.Phase = domain.Phase(phase)
		t.Timestamp = int64(timestampMs)
		t.Graduated = graduated == 1
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
