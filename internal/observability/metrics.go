// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Trade metrics
	TradesExecuted *prometheus.CounterVec
	TradeErrors    *prometheus.CounterVec
	Graduations    prometheus.Counter
	Previews       *prometheus.CounterVec

	// Latency metrics
	ExecutionLatency   *prometheus.HistogramVec
	PersistenceLatency prometheus.Histogram

	// Persistence metrics
	PersistenceFailures prometheus.Counter
	ArchiveFailures     prometheus.Counter

	// Candle cache metrics
	CandleCacheLookups *prometheus.CounterVec

	// Instrument gauges, refreshed by the snapshot job
	SpotPrice          *prometheus.GaugeVec
	MarketCap          *prometheus.GaugeVec
	GraduationProgress *prometheus.GaugeVec
	Volume24h          *prometheus.GaugeVec
	Instruments        prometheus.Gauge

	// Health metrics
	LastSnapshot prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "curve_engine"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Trade metrics
		TradesExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "executed_total",
			Help:      "Total number of executed trades by side and pricing phase",
		}, []string{"side", "phase"}),
		TradeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "errors_total",
			Help:      "Total number of rejected or failed trades by error kind",
		}, []string{"side", "kind"}),
		Graduations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "graduations_total",
			Help:      "Total number of instruments graduated to a pool",
		}),
		Previews: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "previews_total",
			Help:      "Total number of trade previews by side",
		}, []string{"side"}),

		// Latency metrics
		ExecutionLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "execution_latency_seconds",
			Help:      "Trade execution latency in seconds, lock wait included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"side"}),
		PersistenceLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "commit_latency_seconds",
			Help:      "Latency of committing a trade to the store in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Persistence metrics
		PersistenceFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "commit_failures_total",
			Help:      "Total number of trades that could not be persisted",
		}),
		ArchiveFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "archive_failures_total",
			Help:      "Total number of trades that could not be archived",
		}),

		// Candle cache metrics
		CandleCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "cache_lookups_total",
			Help:      "Total number of candle cache lookups by result",
		}, []string{"result"}),

		// Instrument gauges
		SpotPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "instrument",
			Name:      "spot_price_sol",
			Help:      "Spot price in SOL per whole token",
		}, []string{"instrument"}),
		MarketCap: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "instrument",
			Name:      "market_cap_sol",
			Help:      "Market capitalization in SOL",
		}, []string{"instrument"}),
		GraduationProgress: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "instrument",
			Name:      "graduation_progress_percent",
			Help:      "Raised SOL as a percent of the graduation threshold",
		}, []string{"instrument"}),
		Volume24h: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "instrument",
			Name:      "volume_24h_sol",
			Help:      "Traded SOL volume over the last 24 hours",
		}, []string{"instrument"}),
		Instruments: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "instrument",
			Name:      "loaded",
			Help:      "Number of instruments loaded in the engine",
		}),

		// Health metrics
		LastSnapshot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_snapshot_timestamp",
			Help:      "Unix timestamp of the last metrics snapshot",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler serving the metrics of gatherer.
func HandlerFor(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordTrade records an executed trade.
func (m *Metrics) RecordTrade(side, phase string, graduated bool, elapsed time.Duration) {
	m.TradesExecuted.WithLabelValues(side, phase).Inc()
	m.ExecutionLatency.WithLabelValues(side).Observe(elapsed.Seconds())
	if graduated {
		m.Graduations.Inc()
	}
}

// RecordTradeError records a rejected or failed trade.
func (m *Metrics) RecordTradeError(side, kind string) {
	m.TradeErrors.WithLabelValues(side, kind).Inc()
}

// RecordCommit records a store commit.
func (m *Metrics) RecordCommit(elapsed time.Duration, err error) {
	m.PersistenceLatency.Observe(elapsed.Seconds())
	if err != nil {
		m.PersistenceFailures.Inc()
	}
}

// RecordCandleLookup records a candle cache hit or miss.
func (m *Metrics) RecordCandleLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CandleCacheLookups.WithLabelValues(result).Inc()
}

// SetInstrument updates the gauges of one instrument.
func (m *Metrics) SetInstrument(instrument string, spot, marketCap, progress, volume24h float64) {
	m.SpotPrice.WithLabelValues(instrument).Set(spot)
	m.MarketCap.WithLabelValues(instrument).Set(marketCap)
	m.GraduationProgress.WithLabelValues(instrument).Set(progress)
	m.Volume24h.WithLabelValues(instrument).Set(volume24h)
}
