package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordTrade("buy", "pre_graduation", false, 10*time.Millisecond)
	m.RecordTrade("buy", "pre_graduation", true, 10*time.Millisecond)
	m.RecordTradeError("sell", "SlippageExceeded")
	m.RecordCommit(time.Millisecond, errors.New("down"))
	m.RecordCandleLookup(true)
	m.RecordCandleLookup(false)
	m.RecordCandleLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesExecuted.WithLabelValues("buy", "pre_graduation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Graduations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradeErrors.WithLabelValues("sell", "SlippageExceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistenceFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CandleCacheLookups.WithLabelValues("miss")))
}

func TestMetrics_SetInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.SetInstrument("mint", 0.00003, 30, 12.5, 4)
	assert.Equal(t, 12.5, testutil.ToFloat64(m.GraduationProgress.WithLabelValues("mint")))

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_instrument_market_cap_sol{instrument="mint"} 30`))
}
