package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-curve-engine/internal/domain"
	"token-curve-engine/internal/engine"
	"token-curve-engine/internal/fees"
	"token-curve-engine/internal/idhash"
	"token-curve-engine/internal/observability"
	"token-curve-engine/internal/storage/memory"
)

func TestSummary(t *testing.T) {
	clock := newVirtualClock()
	ctrl, err := engine.New(engine.Options{
		Store:   memory.NewStore(),
		Fees:    fees.DefaultPolicy(),
		Metrics: observability.NewMetrics("test", prometheus.NewRegistry()),
		Now:     clock.Now,
	})
	require.NoError(t, err)
	ctx := context.Background()

	mint := idhash.DeriveMint("simulate", "a")
	_, err = ctrl.InitInstrument(ctx, mint, idhash.DeriveWallet("dev"))
	require.NoError(t, err)
	_, err = ctrl.ExecuteBuy(ctx, domain.TradeRequest{Instrument: mint, Wallet: idhash.DeriveWallet("w"), Amount: 1_000_000_000})
	require.NoError(t, err)

	sum, err := summarize(ctx, ctrl, nil, 60, 5)
	require.NoError(t, err)
	require.Len(t, sum.Instruments, 1)
	assert.Len(t, sum.Instruments[0].Candles, 1)

	var text bytes.Buffer
	require.NoError(t, printSummary(&text, sum, false))
	assert.Contains(t, text.String(), mint)
	assert.Contains(t, text.String(), "pre_graduation")

	var raw bytes.Buffer
	require.NoError(t, printSummary(&raw, sum, true))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw.Bytes(), &decoded))
	assert.Contains(t, decoded, "instruments")
}

func TestVirtualClock(t *testing.T) {
	c := newVirtualClock()
	before := c.Now()
	c.Advance(24 * time.Hour)
	assert.GreaterOrEqual(t, c.Now().Sub(before), 24*time.Hour)
}

func TestMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("simulate", reg)
	metrics.Graduations.Inc()
	mux := newMux(reg)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "simulate_trades_graduations_total")
}
