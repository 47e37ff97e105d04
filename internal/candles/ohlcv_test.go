package candles

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-curve-engine/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tr(seq uint64, tsMs int64, price string, lamports uint64) *domain.Trade {
	return &domain.Trade{
		TradeID:     "t",
		Instrument:  "mint",
		Seq:         seq,
		Price:       d(price),
		QuoteVolume: lamports,
		Timestamp:   tsMs,
	}
}

func assertCandle(t *testing.T, c domain.Candle, time int64, o, h, l, cl, vol string, n int) {
	t.Helper()
	assert.Equal(t, time, c.Time)
	assert.True(t, c.Open.Equal(d(o)), "open %s want %s", c.Open, o)
	assert.True(t, c.High.Equal(d(h)), "high %s want %s", c.High, h)
	assert.True(t, c.Low.Equal(d(l)), "low %s want %s", c.Low, l)
	assert.True(t, c.Close.Equal(d(cl)), "close %s want %s", c.Close, cl)
	assert.True(t, c.Volume.Equal(d(vol)), "volume %s want %s", c.Volume, vol)
	assert.Equal(t, n, c.TradeCount)
}

func TestGenerateOHLCV_Buckets(t *testing.T) {
	trades := []*domain.Trade{
		tr(1, 60_000, "1.0", 1_000_000_000),
		tr(2, 75_000, "1.5", 2_000_000_000),
		tr(3, 119_999, "1.2", 500_000_000),
		tr(4, 125_000, "1.1", 1_000_000_000),
		// 180-239s bucket is empty: no candle for it.
		tr(5, 245_000, "2.0", 3_000_000_000),
	}

	candles := GenerateOHLCV(trades, 60, 0, decimal.Zero, 0, 9)
	require.Len(t, candles, 3)

	assertCandle(t, candles[0], 60, "1.0", "1.5", "1.0", "1.2", "3.5", 3)
	// open carries the previous close, low includes it
	assertCandle(t, candles[1], 120, "1.2", "1.2", "1.1", "1.1", "1", 1)
	assertCandle(t, candles[2], 240, "1.1", "2.0", "1.1", "2.0", "3", 1)
}

func TestGenerateOHLCV_Empty(t *testing.T) {
	spot := d("0.000028")
	candles := GenerateOHLCV(nil, 300, 10, spot, 1_000_123_000, 9)

	require.Len(t, candles, 1)
	assertCandle(t, candles[0], 999_900, "0.000028", "0.000028", "0.000028", "0.000028", "0", 0)
}

func TestGenerateOHLCV_Limit(t *testing.T) {
	var trades []*domain.Trade
	for i := int64(0); i < 10; i++ {
		trades = append(trades, tr(uint64(i+1), i*60_000, "1", 1))
	}

	candles := GenerateOHLCV(trades, 60, 3, decimal.Zero, 0, 9)
	require.Len(t, candles, 3)
	assert.Equal(t, int64(420), candles[0].Time)
	assert.Equal(t, int64(540), candles[2].Time)

	assert.Len(t, GenerateOHLCV(trades, 60, 0, decimal.Zero, 0, 9), 10)
	assert.Len(t, GenerateOHLCV(trades, 60, 50, decimal.Zero, 0, 9), 10)
}

func TestGenerateOHLCV_InvalidInterval(t *testing.T) {
	assert.Nil(t, GenerateOHLCV([]*domain.Trade{tr(1, 0, "1", 1)}, 0, 0, decimal.Zero, 0, 9))
}

func TestGenerateOHLCV_Deterministic(t *testing.T) {
	trades := []*domain.Trade{
		tr(1, 1_000, "0.1", 10),
		tr(2, 61_000, "0.3", 20),
		tr(3, 62_000, "0.2", 30),
	}

	first := GenerateOHLCV(trades, 60, 0, decimal.Zero, 0, 9)
	second := GenerateOHLCV(trades, 60, 0, decimal.Zero, 0, 9)
	assert.Equal(t, first, second)
}
