// Package candles derives OHLCV bars from executed trades.
package candles

import (
	"github.com/shopspring/decimal"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/fixedpoint"
)

// GenerateOHLCV aggregates trades into candles of intervalSeconds.
// Trades must be in ledger order.
//
// Interval alignment: floor(timestamp_s / interval) * interval
// Aggregation per bucket:
//   - open = close of the previous bucket (first bucket: first trade price)
//   - high / low = extremes of open and every trade price
//   - close = LAST(price)
//   - volume = SUM(quote_volume) in SOL
//
// Only buckets containing trades are emitted. With no trades a single zero-volume
// candle at spot is returned for the bucket containing nowMs. limit > 0 keeps the
// most recent limit candles.
func GenerateOHLCV(
	trades []*domain.Trade,
	intervalSeconds int64,
	limit int,
	spot decimal.Decimal,
	nowMs int64,
	solDecimals int32,
) []domain.Candle {
	if intervalSeconds <= 0 {
		return nil
	}

	if len(trades) == 0 {
		return []domain.Candle{{
			Time:   bucketStart(nowMs, intervalSeconds),
			Open:   spot,
			High:   spot,
			Low:    spot,
			Close:  spot,
			Volume: decimal.Zero,
		}}
	}

	var result []domain.Candle
	var current *domain.Candle
	var lamports uint64

	flush := func() {
		if current != nil {
			current.Volume = fixedpoint.ToDecimal(lamports, solDecimals)
			result = append(result, *current)
		}
	}

	for _, t := range trades {
		start := bucketStart(t.Timestamp, intervalSeconds)
		if current == nil || current.Time != start {
			open := t.Price
			if current != nil {
				open = current.Close
			}
			flush()
			current = &domain.Candle{
				Time: start,
				Open: open,
				High: open,
				Low:  open,
			}
			lamports = 0
		}

		if t.Price.GreaterThan(current.High) {
			current.High = t.Price
		}
		if t.Price.LessThan(current.Low) {
			current.Low = t.Price
		}
		current.Close = t.Price // LAST(price)
		lamports += t.QuoteVolume
		current.TradeCount++
	}

	// Don't forget last bucket
	flush()

	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result
}

func bucketStart(timestampMs, intervalSeconds int64) int64 {
	sec := timestampMs / 1000
	return (sec / intervalSeconds) * intervalSeconds
}
