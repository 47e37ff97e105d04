package lookup

import (
	"errors"

	"github.com/shopspring/decimal"

	"token-curve-engine/internal/domain"
)

// ErrNoPriceData is returned when there are no trades to read a price from.
var ErrNoPriceData = errors.New("no price data available")

// PriceAt returns the price of the last trade at or before target (ms).
// If no trade precedes target, returns the first trade's price.
// Trades must be in ledger order. Returns ErrNoPriceData if the slice is empty.
func PriceAt(target int64, trades []*domain.Trade) (decimal.Decimal, error) {
	if len(trades) == 0 {
		return decimal.Zero, ErrNoPriceData
	}

	// Find closest trade at or before target
	for i := len(trades) - 1; i >= 0; i-- {
		if trades[i].Timestamp <= target {
			return trades[i].Price, nil
		}
	}

	// If no trade before target, use first available
	return trades[0].Price, nil
}

// IndexAfter returns the index of the first trade with Timestamp >= from.
// It returns len(trades) when every trade is older.
func IndexAfter(from int64, trades []*domain.Trade) int {
	lo, hi := 0, len(trades)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if trades[mid].Timestamp < from {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
