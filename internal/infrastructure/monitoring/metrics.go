package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge.
// Each instance owns its registry so tests can build many of them.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Token metrics
	TokenRequests *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec
	Envelopes      *prometheus.CounterVec

	// Tool metrics
	ToolRuns     *prometheus.CounterVec
	ToolLines    prometheus.Counter
	ToolDuration prometheus.Histogram

	// Update metrics
	UpdateState      *prometheus.GaugeVec
	UpdateDownloaded prometheus.Gauge
	UpdateAttempts   *prometheus.CounterVec

	startTime time.Time
}

// NewMetrics creates a new metrics collector on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_http_requests_total",
				Help: "Total number of HTTP requests, including tunnelled invokes",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30, 120},
			},
			[]string{"method", "path"},
		),

		TokenRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_token_requests_total",
				Help: "Token requests by outcome",
			},
			[]string{"outcome"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_sessions_active",
				Help: "Number of open multiplexed sessions",
			},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_session_upgrades_total",
				Help: "Channel upgrade attempts by outcome",
			},
			[]string{"outcome"},
		),
		Envelopes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_envelopes_total",
				Help: "Envelopes by direction and action",
			},
			[]string{"direction", "action"},
		),

		ToolRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_tool_runs_total",
				Help: "External tool runs by outcome",
			},
			[]string{"outcome"},
		),
		ToolLines: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_tool_output_lines_total",
				Help: "Output lines read from external tool runs",
			},
		),
		ToolDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bridge_tool_run_duration_seconds",
				Help:    "External tool run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
		),

		UpdateState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bridge_update_state",
				Help: "1 for the current update state, 0 otherwise",
			},
			[]string{"state"},
		),
		UpdateDownloaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_update_downloaded_bytes",
				Help: "Bytes downloaded by the in-flight update",
			},
		),
		UpdateAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_update_attempts_total",
				Help: "Update attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "bridge_uptime_seconds",
			Help: "Bridge uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler exposes the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordToken records a token request outcome ("issued", "denied")
func (m *Metrics) RecordToken(outcome string) {
	m.TokenRequests.WithLabelValues(outcome).Inc()
}

// RecordUpgrade records a channel upgrade outcome ("accepted", "unauthorized", "failed")
func (m *Metrics) RecordUpgrade(outcome string) {
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}

// SessionOpened increments the open session gauge
func (m *Metrics) SessionOpened() {
	m.SessionsActive.Inc()
}

// SessionClosed decrements the open session gauge
func (m *Metrics) SessionClosed() {
	m.SessionsActive.Dec()
}

// RecordEnvelope records an inbound or outbound envelope
func (m *Metrics) RecordEnvelope(direction, action string) {
	m.Envelopes.WithLabelValues(direction, action).Inc()
}

// RecordToolLine counts one output line
func (m *Metrics) RecordToolLine() {
	m.ToolLines.Inc()
}

// RecordToolRun records a finished run
func (m *Metrics) RecordToolRun(outcome string, duration time.Duration) {
	m.ToolRuns.WithLabelValues(outcome).Inc()
	if duration > 0 {
		m.ToolDuration.Observe(duration.Seconds())
	}
}

// SetUpdateState marks state as current among all known states
func (m *Metrics) SetUpdateState(state string, known []string) {
	for _, s := range known {
		v := 0.0
		if s == state {
			v = 1
		}
		m.UpdateState.WithLabelValues(s).Set(v)
	}
}

// SetUpdateDownloaded sets the downloaded byte gauge
func (m *Metrics) SetUpdateDownloaded(n int64) {
	m.UpdateDownloaded.Set(float64(n))
}

// RecordUpdateAttempt records the outcome of one update attempt
func (m *Metrics) RecordUpdateAttempt(outcome string) {
	m.UpdateAttempts.WithLabelValues(outcome).Inc()
}
