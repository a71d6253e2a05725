// Package metrics holds the Prometheus collectors of the trading loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scalper"

var (
	// Cycles counts decision cycles by outcome (ok, feed_error, persistence_error).
	Cycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Decision cycles run per pair",
	}, []string{"pair", "outcome"})

	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one decision cycle",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"pair"})

	// Orders counts gateway submissions by side and result status.
	Orders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_total",
		Help:      "Orders submitted through the execution gateway",
	}, []string{"pair", "side", "status"})

	StoplossExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stoploss_retries_exhausted_total",
		Help:      "Stoploss exits that failed after every retry",
	}, []string{"pair"})

	OpenPositions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_positions",
		Help:      "Open positions per pair as last read from the ledger",
	}, []string{"pair"})

	// Indicator is the last computed value per pair and indicator (rsi, ema, atr).
	Indicator = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "indicator_value",
		Help:      "Last computed indicator value",
	}, []string{"pair", "indicator"})

	StreamDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_updates_dropped_total",
		Help:      "Ticker updates dropped because the pair worker was busy",
	}, []string{"pair"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
