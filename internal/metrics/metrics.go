// Package metrics exposes the bot's Prometheus metrics.
//
//   - grid_bot_orders_placed_total{side,mode}   orders submitted (mode: live|dry_run|backtest)
//   - grid_bot_fills_total{side}                orders observed as filled
//   - grid_bot_order_resolutions_total{status}  final statuses other than FILLED, plus NEW orders never placed
//   - grid_bot_skipped_intents_total{reason}    intents not submitted (below_minimums)
//   - grid_bot_tick_errors_total{kind}          tick failures by error kind
//   - grid_bot_realized_pnl                     cumulative realized PnL in quote currency
//   - grid_bot_last_filled_index                grid index of the most recent fill
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the bot's metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	ordersPlaced    *prometheus.CounterVec
	fills           *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	skippedIntents  *prometheus.CounterVec
	tickErrors      *prometheus.CounterVec
	realizedPnL     prometheus.Gauge
	lastFilledIndex prometheus.Gauge
}

// NewRecorder creates and registers all metrics.
func NewRecorder() *Recorder {
	r := &Recorder{
		ordersPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_bot_orders_placed_total",
				Help: "Limit orders submitted",
			},
			[]string{"side", "mode"},
		),
		fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_bot_fills_total",
				Help: "Orders observed as filled",
			},
			[]string{"side"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_bot_order_resolutions_total",
				Help: "Active orders cleared without a fill",
			},
			[]string{"status"},
		),
		skippedIntents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_bot_skipped_intents_total",
				Help: "Order intents that were not submitted",
			},
			[]string{"reason"},
		),
		tickErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grid_bot_tick_errors_total",
				Help: "Failed ticks by error kind",
			},
			[]string{"kind"},
		),
		realizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grid_bot_realized_pnl",
			Help: "Cumulative realized PnL in quote currency",
		}),
		lastFilledIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grid_bot_last_filled_index",
			Help: "Grid index of the most recent fill, -1 before the first fill",
		}),
	}
	r.lastFilledIndex.Set(-1)

	r.registry = prometheus.NewRegistry()
	r.registry.MustRegister(
		r.ordersPlaced,
		r.fills,
		r.resolutions,
		r.skippedIntents,
		r.tickErrors,
		r.realizedPnL,
		r.lastFilledIndex,
	)
	return r
}

func (r *Recorder) OrderPlaced(side, mode string) {
	if r == nil {
		return
	}
	r.ordersPlaced.WithLabelValues(side, mode).Inc()
}

func (r *Recorder) Fill(side string) {
	if r == nil {
		return
	}
	r.fills.WithLabelValues(side).Inc()
}

func (r *Recorder) OrderResolved(status string) {
	if r == nil {
		return
	}
	r.resolutions.WithLabelValues(status).Inc()
}

func (r *Recorder) IntentSkipped(reason string) {
	if r == nil {
		return
	}
	r.skippedIntents.WithLabelValues(reason).Inc()
}

func (r *Recorder) TickError(kind string) {
	if r == nil {
		return
	}
	r.tickErrors.WithLabelValues(kind).Inc()
}

// SetPosition records the cumulative PnL and the last filled index (nil before the first fill).
func (r *Recorder) SetPosition(realizedPnL float64, lastFilledIndex *int) {
	if r == nil {
		return
	}
	r.realizedPnL.Set(realizedPnL)
	if lastFilledIndex != nil {
		r.lastFilledIndex.Set(float64(*lastFilledIndex))
	} else {
		r.lastFilledIndex.Set(-1)
	}
}

// Handler serves /metrics and /healthz.
func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	return mux
}
