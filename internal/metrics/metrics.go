// Package metrics holds the Prometheus instruments for the trading agent.
// One Metrics value is shared by the loop, the swap pipeline, and the API
// server; the /metrics endpoint serves its registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Outcome labels shared by cycle and provider counters.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics bundles every instrument the agent exports.
type Metrics struct {
	// Trading loop
	Cycles        *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec

	// Decision pipeline
	Signals    *prometheus.CounterVec
	Rejections *prometheus.CounterVec

	// Execution
	Trades       *prometheus.CounterVec
	SwapFailures *prometheus.CounterVec
	Exits        *prometheus.CounterVec

	// State gauges
	OpenPositions prometheus.Gauge
	WalletBalance prometheus.Gauge

	// Upstream providers
	ProviderRequests *prometheus.CounterVec

	registry *prometheus.Registry
}

// New builds and registers all agent metrics on a private registry, so
// independent instances (one per engine) never collide.
func New() *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solrun_cycles_total",
				Help: "Total number of trading cycles by result",
			},
			[]string{"result"},
		),

		CycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solrun_cycle_duration_seconds",
				Help:    "Duration of a full trading cycle in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"result"},
		),

		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solrun_signals_total",
				Help: "Total number of trade signals generated by action",
			},
			[]string{"action"},
		),

		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solrun_gate_rejections_total",
				Help: "Total number of signals rejected by the risk gate, by reason",
			},
			[]string{"reason"},
		),

		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solrun_trades_total",
				Help: "Total number of confirmed trades by type and origin",
			},
			[]string{"type", "mode"},
		),

		SwapFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solrun_swap_failures_total",
				Help: "Total number of swap pipeline failures by stage and reason",
			},
			[]string{"stage", "reason"},
		),

		Exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solrun_position_exits_total",
				Help: "Total number of position exits by trigger",
			},
			[]string{"trigger"},
		),

		OpenPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "solrun_open_positions",
				Help: "Number of currently open positions",
			},
		),

		WalletBalance: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "solrun_wallet_balance_sol",
				Help: "Last observed wallet balance in SOL",
			},
		),

		ProviderRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solrun_provider_requests_total",
				Help: "Total number of upstream provider requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.Cycles,
		m.CycleDuration,
		m.Signals,
		m.Rejections,
		m.Trades,
		m.SwapFailures,
		m.Exits,
		m.OpenPositions,
		m.WalletBalance,
		m.ProviderRequests,
	)

	return m
}

// CycleTimer tracks the wall time of one trading cycle.
type CycleTimer struct {
	metrics *Metrics
	start   time.Time
}

// StartCycle begins timing a trading cycle.
func (m *Metrics) StartCycle() *CycleTimer {
	return &CycleTimer{metrics: m, start: time.Now()}
}

// Stop records the cycle duration and outcome.
func (ct *CycleTimer) Stop(result string) {
	elapsed := time.Since(ct.start)
	ct.metrics.CycleDuration.WithLabelValues(result).Observe(elapsed.Seconds())
	ct.metrics.Cycles.WithLabelValues(result).Inc()

	log.Debug().
		Str("result", result).
		Dur("duration", elapsed).
		Msg("Trading cycle completed")
}

// RecordSignal counts a generated signal by action (BUY or SELL).
func (m *Metrics) RecordSignal(action string) {
	m.Signals.WithLabelValues(action).Inc()
}

// RecordRejection counts a risk-gate rejection by verdict reason.
func (m *Metrics) RecordRejection(reason string) {
	m.Rejections.WithLabelValues(reason).Inc()
}

// RecordTrade counts a confirmed trade. Mode is "signal" for loop trades
// and "manual" for API-initiated swaps.
func (m *Metrics) RecordTrade(kind, mode string) {
	m.Trades.WithLabelValues(kind, mode).Inc()
}

// RecordSwapFailure counts an aborted swap pipeline run.
func (m *Metrics) RecordSwapFailure(stage, reason string) {
	m.SwapFailures.WithLabelValues(stage, reason).Inc()

	log.Warn().
		Str("stage", stage).
		Str("reason", reason).
		Msg("Swap failure recorded")
}

// RecordExit counts a position exit by trigger (stop-loss or take-profit).
func (m *Metrics) RecordExit(trigger string) {
	m.Exits.WithLabelValues(trigger).Inc()
}

// RecordProviderRequest counts one upstream request and its outcome.
func (m *Metrics) RecordProviderRequest(provider, outcome string) {
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
}

// SetOpenPositions updates the open-position gauge after each cycle.
func (m *Metrics) SetOpenPositions(count int) {
	m.OpenPositions.Set(float64(count))
}

// SetWalletBalance updates the wallet balance gauge in SOL.
func (m *Metrics) SetWalletBalance(sol float64) {
	m.WalletBalance.Set(sol)
}

// Handler serves this registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot sums every counter family on the registry, keyed by metric
// name. The health endpoint embeds it so a dashboard poll sees activity
// totals without scraping.
func (m *Metrics) Snapshot() map[string]float64 {
	totals := make(map[string]float64)

	families, err := m.registry.Gather()
	if err != nil {
		log.Warn().Err(err).Msg("Metrics gather failed")
		return totals
	}

	for _, family := range families {
		if family.GetType() != io_prometheus_client.MetricType_COUNTER {
			continue
		}
		sum := 0.0
		for _, sample := range family.GetMetric() {
			sum += sample.GetCounter().GetValue()
		}
		totals[family.GetName()] = sum
	}

	return totals
}

// CounterValue reads one labeled counter without an HTTP scrape.
func CounterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}

	sample := &io_prometheus_client.Metric{}
	if err := counter.Write(sample); err != nil {
		return 0
	}
	return sample.GetCounter().GetValue()
}
