package candles

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"token-curve-engine/internal/domain"
)

// Source is the trade history candles are read from.
type Source interface {
	Snapshot(instrument string) ([]*domain.Trade, uint64)
}

type cacheKey struct {
	instrument string
	interval   int64
	limit      int
}

type cacheEntry struct {
	version uint64
	candles []domain.Candle
}

// Aggregator is a read-through candle cache over a Source.
// An entry is valid while the instrument's ledger version is unchanged.
type Aggregator struct {
	source      Source
	solDecimals int32

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
	group singleflight.Group

	// OnLookup, when set, is told whether each Get was served from cache.
	OnLookup func(hit bool)
}

// NewAggregator creates an aggregator reading from source.
func NewAggregator(source Source, solDecimals int32) *Aggregator {
	return &Aggregator{
		source:      source,
		solDecimals: solDecimals,
		cache:       make(map[cacheKey]cacheEntry),
	}
}

// Get returns candles for the instrument. spot and nowMs are only used when the
// instrument has no trades, in which case nothing is cached.
func (a *Aggregator) Get(instrument string, intervalSeconds int64, limit int, spot decimal.Decimal, nowMs int64) []domain.Candle {
	trades, version := a.source.Snapshot(instrument)
	if len(trades) == 0 {
		a.observe(false)
		return GenerateOHLCV(nil, intervalSeconds, limit, spot, nowMs, a.solDecimals)
	}

	key := cacheKey{instrument: instrument, interval: intervalSeconds, limit: limit}
	a.mu.RLock()
	entry, ok := a.cache[key]
	a.mu.RUnlock()
	if ok && entry.version == version {
		a.observe(true)
		return clone(entry.candles)
	}
	a.observe(false)

	sfKey := fmt.Sprintf("%s|%d|%d|%d", instrument, intervalSeconds, limit, version)
	v, _, _ := a.group.Do(sfKey, func() (interface{}, error) {
		candles := GenerateOHLCV(trades, intervalSeconds, limit, spot, nowMs, a.solDecimals)
		a.mu.Lock()
		if cur, ok := a.cache[key]; !ok || cur.version <= version {
			a.cache[key] = cacheEntry{version: version, candles: candles}
		}
		a.mu.Unlock()
		return candles, nil
	})
	return clone(v.([]domain.Candle))
}

// Invalidate drops every cached entry of the instrument.
func (a *Aggregator) Invalidate(instrument string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.cache {
		if k.instrument == instrument {
			delete(a.cache, k)
		}
	}
}

// Len returns the number of cached entries.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}

func (a *Aggregator) observe(hit bool) {
	if a.OnLookup != nil {
		a.OnLookup(hit)
	}
}

func clone(c []domain.Candle) []domain.Candle {
	out := make([]domain.Candle, len(c))
	copy(out, c)
	return out
}
