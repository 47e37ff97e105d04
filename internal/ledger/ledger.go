// Package ledger keeps the append-only trade history of every instrument.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/fixedpoint"
	"token-curve-engine/internal/lookup"
)

// Window is the length of the rolling statistics window, in milliseconds.
const Window int64 = 24 * 60 * 60 * 1000

// ErrMalformedTrade is returned by Append for trades that cannot be recorded.
var ErrMalformedTrade = errors.New("malformed trade")

type history struct {
	mu      sync.RWMutex
	trades  []*domain.Trade
	wallets map[string]struct{}
	version uint64
}

// Ledger is safe for concurrent use. Readers never block on other instruments.
type Ledger struct {
	mu          sync.RWMutex
	instruments map[string]*history
	solDecimals int32
}

// New creates an empty ledger. solDecimals converts lamport volumes to SOL.
func New(solDecimals int32) *Ledger {
	return &Ledger{
		instruments: make(map[string]*history),
		solDecimals: solDecimals,
	}
}

func (l *Ledger) get(instrument string) *history {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.instruments[instrument]
}

func (l *Ledger) getOrCreate(instrument string) *history {
	if h := l.get(instrument); h != nil {
		return h
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.instruments[instrument]
	if !ok {
		h = &history{wallets: make(map[string]struct{})}
		l.instruments[instrument] = h
	}
	return h
}

// Append records a trade. Seq must be exactly one past the last recorded trade and
// timestamps must not go backwards.
func (l *Ledger) Append(trade *domain.Trade) error {
	if trade == nil {
		return fmt.Errorf("%w: nil", ErrMalformedTrade)
	}
	if trade.TradeID == "" || trade.Instrument == "" {
		return fmt.Errorf("%w: missing id or instrument", ErrMalformedTrade)
	}
	h := l.getOrCreate(trade.Instrument)

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appendLocked(trade)
}

func (h *history) appendLocked(trade *domain.Trade) error {
	var lastSeq uint64
	if n := len(h.trades); n > 0 {
		last := h.trades[n-1]
		lastSeq = last.Seq
		if trade.Timestamp < last.Timestamp {
			return fmt.Errorf("%w: timestamp %d before %d", ErrMalformedTrade, trade.Timestamp, last.Timestamp)
		}
	}
	if trade.Seq != lastSeq+1 {
		return fmt.Errorf("%w: seq %d does not follow %d", ErrMalformedTrade, trade.Seq, lastSeq)
	}
	h.trades = append(h.trades, trade)
	if trade.Wallet != "" {
		h.wallets[trade.Wallet] = struct{}{}
	}
	h.version++
	return nil
}

// Restore replaces an instrument's history with trades loaded from storage.
func (l *Ledger) Restore(instrument string, trades []*domain.Trade) error {
	fresh := &history{wallets: make(map[string]struct{})}
	for _, t := range trades {
		if t == nil || t.Instrument != instrument {
			return fmt.Errorf("%w: trade does not belong to %s", ErrMalformedTrade, instrument)
		}
		if err := fresh.appendLocked(t); err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.instruments[instrument]; ok {
		fresh.version = old.version + 1
	}
	l.instruments[instrument] = fresh
	return nil
}

// Snapshot returns an immutable prefix of the history and its version.
// The returned slice must not be modified.
func (l *Ledger) Snapshot(instrument string) ([]*domain.Trade, uint64) {
	h := l.get(instrument)
	if h == nil {
		return nil, 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.trades)
	return h.trades[:n:n], h.version
}

// All returns every trade of the instrument in insertion order.
// The returned slice must not be modified.
func (l *Ledger) All(instrument string) []*domain.Trade {
	trades, _ := l.Snapshot(instrument)
	return trades
}

// Trades returns trades with from <= Timestamp <= to, in insertion order.
// A zero bound is open.
func (l *Ledger) Trades(instrument string, from, to int64) []*domain.Trade {
	trades, _ := l.Snapshot(instrument)
	start := 0
	if from > 0 {
		start = lookup.IndexAfter(from, trades)
	}
	end := len(trades)
	if to > 0 {
		end = lookup.IndexAfter(to+1, trades)
	}
	if start >= end {
		return nil
	}
	out := make([]*domain.Trade, end-start)
	copy(out, trades[start:end])
	return out
}

// Last returns the most recent trade, or nil.
func (l *Ledger) Last(instrument string) *domain.Trade {
	trades, _ := l.Snapshot(instrument)
	if len(trades) == 0 {
		return nil
	}
	return trades[len(trades)-1]
}

// Len returns the number of recorded trades.
func (l *Ledger) Len(instrument string) int {
	trades, _ := l.Snapshot(instrument)
	return len(trades)
}

// Version changes on every append or restore of the instrument.
func (l *Ledger) Version(instrument string) uint64 {
	_, v := l.Snapshot(instrument)
	return v
}

// Volume24h returns the SOL volume of trades in (now-24h, now].
func (l *Ledger) Volume24h(instrument string, now int64) decimal.Decimal {
	trades, _ := l.Snapshot(instrument)
	var lamports uint64
	for i := lookup.IndexAfter(now-Window+1, trades); i < len(trades); i++ {
		if trades[i].Timestamp > now {
			break
		}
		lamports += trades[i].QuoteVolume
	}
	return fixedpoint.ToDecimal(lamports, l.solDecimals)
}

// PriceChange24h returns the percent change from the reference price to currentPrice.
// The reference is the last trade at or before now-24h, falling back to the oldest
// trade; with no trades the change is zero.
func (l *Ledger) PriceChange24h(instrument string, now int64, currentPrice decimal.Decimal) decimal.Decimal {
	trades, _ := l.Snapshot(instrument)
	ref, err := lookup.PriceAt(now-Window, trades)
	if err != nil {
		return decimal.Zero
	}
	return fixedpoint.Percent(currentPrice, ref)
}

// HolderCount returns the number of distinct wallets that ever traded the instrument.
// Wallets that sold out are still counted.
func (l *Ledger) HolderCount(instrument string) int {
	h := l.get(instrument)
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.wallets)
}

// Instruments returns the instruments with recorded history.
func (l *Ledger) Instruments() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.instruments))
	for id := range l.instruments {
		out = append(out, id)
	}
	return out
}
