// Package metrics exposes engine counters on the prometheus registry
// served by the operator API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_scanner_ticks_total",
		Help: "Completed scanner evaluation ticks.",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_scanner_tick_duration_seconds",
		Help:    "Wall-clock duration of one scanner tick.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_signals_total",
		Help: "Entry signals generated, by strategy.",
	}, []string{"strategy"})

	BlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_risk_blocks_total",
		Help: "Signals blocked by the risk pipeline, by guard.",
	}, []string{"guard"})

	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_trades_total",
		Help: "Fully closed trades, by exit kind.",
	}, []string{"exit"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_open_positions",
		Help: "Currently open positions.",
	})

	FeedConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_feed_connected",
		Help: "1 while the market data feed is connected.",
	})

	BreakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_breaker_trips_total",
		Help: "Circuit breaker pause or disable transitions.",
	})

	StrategyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_strategy_errors_total",
		Help: "Strategy evaluation errors and panics, by strategy.",
	}, []string{"strategy"})
)
