// Package telemetry exposes Prometheus metrics for the trading pipeline.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	// TicksTotal counts ticks accepted from the market data feed.
	TicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trading_ticks_total",
		Help: "Total number of market ticks received",
	})

	// MalformedFramesTotal counts feed frames that failed to parse.
	MalformedFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trading_malformed_frames_total",
		Help: "Total number of malformed feed frames dropped",
	})

	// CandlesTotal counts candles finalized by the aggregator.
	CandlesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trading_candles_total",
		Help: "Total number of candles finalized",
	})

	// SignalsTotal counts emitted strategy signals by strategy and type.
	SignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_signals_total",
		Help: "Total number of strategy signals emitted",
	}, []string{"strategy", "signal"})

	// TradesApprovedTotal counts risk approvals that reached the executor.
	TradesApprovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trading_trades_approved_total",
		Help: "Total number of trades approved by the risk manager",
	})

	// TradesRejectedTotal counts risk rejections by reason code.
	TradesRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_trades_rejected_total",
		Help: "Total number of trades rejected by the risk manager",
	}, []string{"reason"})

	// OrdersPlacedTotal counts broker orders that returned an order id.
	OrdersPlacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_orders_placed_total",
		Help: "Total number of orders placed with the broker",
	}, []string{"side"})

	// OrdersFailedTotal counts order placements that did not fill.
	OrdersFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trading_orders_failed_total",
		Help: "Total number of failed order placements",
	}, []string{"reason"})

	// FeedReconnectsTotal counts reconnect attempts after an unexpected close.
	FeedReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trading_feed_reconnects_total",
		Help: "Total number of feed reconnect attempts",
	})

	// FeedState publishes the connection state machine as a numeric gauge.
	// 0 disconnected, 1 connecting, 2 connected, 3 reconnecting.
	FeedState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trading_feed_state",
		Help: "Current feed connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting)",
	})

	// DailyLoss publishes the realized daily loss tracked by the risk manager.
	DailyLoss = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trading_daily_loss",
		Help: "Realized loss accumulated against the daily circuit breaker",
	})
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		MalformedFramesTotal,
		CandlesTotal,
		SignalsTotal,
		TradesApprovedTotal,
		TradesRejectedTotal,
		OrdersPlacedTotal,
		OrdersFailedTotal,
		FeedReconnectsTotal,
		FeedState,
		DailyLoss,
	)
}
