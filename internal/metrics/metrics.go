// Package metrics registers the Prometheus collectors exported by both bridge ends.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bridge_snapshots_total", Help: "Market snapshots relayed over the bridge"},
		[]string{"role", "symbol"},
	)
	InstructionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bridge_instructions_total", Help: "Trade instructions relayed over the bridge"},
		[]string{"role", "action"},
	)
	InstructionsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bridge_instructions_dropped_total", Help: "Instructions discarded on queue overflow or duplicate id"},
	)
	FramesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bridge_frames_rejected_total", Help: "Frames that failed to decode"},
		[]string{"reason"},
	)
	Reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bridge_reconnects_total", Help: "Connector redial attempts"},
	)
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "bridge_sessions_active", Help: "Controller sessions currently attached"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_bars_total", Help: "Bars emitted by replay feeds"},
		[]string{"source", "symbol"},
	)
	TradingHalted = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "trading_halted", Help: "1 when the risk manager has halted trading"},
	)
)

func init() {
	prometheus.MustRegister(
		SnapshotsTotal, InstructionsTotal, InstructionsDropped, FramesRejected,
		Reconnects, SessionsActive, OrdersTotal, BarsTotal, TradingHalted,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
