package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "serverwitch"

// Metrics holds the Prometheus metrics of one agent process. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	negotiationsTotal  *prometheus.CounterVec
	actionsTotal       *prometheus.CounterVec
	protocolErrors     prometheus.Counter
	decisionsTotal     *prometheus.CounterVec
	resultsTotal       *prometheus.CounterVec
	sendErrorsTotal    prometheus.Counter
	executionDuration  *prometheus.HistogramVec
	executionsInFlight prometheus.Gauge
	pendingActions     prometheus.Gauge
}

// NewMetrics creates and registers all metrics on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		negotiationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_negotiations_total",
				Help:      "Session negotiations by outcome.",
			},
			[]string{"status"},
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_received_total",
				Help:      "Well-formed actions received from the relay by kind.",
			},
			[]string{"kind"},
		),
		protocolErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "protocol_errors_total",
				Help:      "Inbound messages skipped as malformed.",
			},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Confirmation outcomes: approve, deny or discard.",
			},
			[]string{"decision"},
		),
		resultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_total",
				Help:      "Results sent to the relay by status.",
			},
			[]string{"status"},
		),
		sendErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_send_errors_total",
				Help:      "Results that could not be written to the channel.",
			},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of approved action executions by kind.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		executionsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "executions_in_flight",
				Help:      "Approved actions currently executing.",
			},
		),
		pendingActions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_confirmations",
				Help:      "Actions received or awaiting confirmation.",
			},
		),
	}

	registry.MustRegister(
		m.negotiationsTotal,
		m.actionsTotal,
		m.protocolErrors,
		m.decisionsTotal,
		m.resultsTotal,
		m.sendErrorsTotal,
		m.executionDuration,
		m.executionsInFlight,
		m.pendingActions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serve exposes /metrics on addr until ctx is done. It returns once the
// listener is bound so bind errors are reported to the caller.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint listening")
	return ln.Addr(), nil
}

func (m *Metrics) RecordNegotiation(success bool) {
	if m == nil {
		return
	}
	m.negotiationsTotal.WithLabelValues(statusLabel(success)).Inc()
}

func (m *Metrics) RecordAction(kind string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

// RecordDecision counts approve, deny and discard outcomes.
func (m *Metrics) RecordDecision(decision string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) RecordResult(status string, sent bool) {
	if m == nil {
		return
	}
	if !sent {
		m.sendErrorsTotal.Inc()
		return
	}
	m.resultsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ExecutionStarted() {
	if m == nil {
		return
	}
	m.executionsInFlight.Inc()
}

func (m *Metrics) ExecutionFinished(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.executionsInFlight.Dec()
	m.executionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingActions.Set(float64(n))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
