package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector holds all Prometheus metrics for guildpanel.
type Collector struct {
	// Registry is the registry every metric is registered with; /metrics serves it.
	Registry *prometheus.Registry

	backendRequests  *prometheus.CounterVec
	backendDuration  *prometheus.HistogramVec
	notifications    *prometheus.CounterVec
	renders          *prometheus.CounterVec
	rendersDiscarded *prometheus.CounterVec
	pollTicks        *prometheus.CounterVec
	pollHealthy      *prometheus.GaugeVec
	actions          *prometheus.CounterVec
	wsClients        prometheus.Gauge
}

// New creates all metrics and registers them with a fresh registry.
func New() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		backendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildpanel_backend_requests_total",
				Help: "Backend API calls by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guildpanel_backend_request_duration_seconds",
				Help:    "Duration of backend API calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"endpoint"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildpanel_notifications_total",
				Help: "Toast notifications emitted by severity",
			},
			[]string{"severity"},
		),
		renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildpanel_renders_total",
				Help: "Panel renders by panel and outcome",
			},
			[]string{"panel", "outcome"},
		),
		rendersDiscarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildpanel_renders_superseded_total",
				Help: "Renders whose result was dropped because a newer render was issued",
			},
			[]string{"panel"},
		),
		pollTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildpanel_poll_ticks_total",
				Help: "Scheduler ticks per poll",
			},
			[]string{"poll"},
		),
		pollHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "guildpanel_poll_healthy",
				Help: "Whether a poll's recent ticks succeeded (1=healthy, 0=unhealthy)",
			},
			[]string{"poll"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildpanel_actions_total",
				Help: "User actions by name and outcome",
			},
			[]string{"action", "outcome"},
		),
		wsClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "guildpanel_websocket_clients",
				Help: "Number of connected dashboard websocket clients",
			},
		),
	}

	c.Registry.MustRegister(
		c.backendRequests,
		c.backendDuration,
		c.notifications,
		c.renders,
		c.rendersDiscarded,
		c.pollTicks,
		c.pollHealthy,
		c.actions,
		c.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// BackendRequest records one backend call. A zero status means transport failure.
func (c *Collector) BackendRequest(endpoint string, status int, d time.Duration) {
	outcome := "ok"
	switch {
	case status == 0:
		outcome = "transport_error"
	case status >= 400:
		outcome = "http_error"
	}
	c.backendRequests.WithLabelValues(endpoint, outcome).Inc()
	c.backendDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// Notification increments the toast counter for a severity.
func (c *Collector) Notification(severity string) {
	c.notifications.WithLabelValues(severity).Inc()
}

// Render records the outcome of a panel render.
func (c *Collector) Render(panel string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.renders.WithLabelValues(panel, outcome).Inc()
}

// RenderSuperseded counts a render result dropped in favour of a newer one.
func (c *Collector) RenderSuperseded(panel string) {
	c.rendersDiscarded.WithLabelValues(panel).Inc()
}

// PollTick counts a scheduler tick.
func (c *Collector) PollTick(poll string) {
	c.pollTicks.WithLabelValues(poll).Inc()
}

// SetPollHealth sets the health gauge of a poll.
func (c *Collector) SetPollHealth(poll string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	c.pollHealthy.WithLabelValues(poll).Set(v)
}

// Action records the outcome of a user action.
func (c *Collector) Action(action, outcome string) {
	c.actions.WithLabelValues(action, outcome).Inc()
}

// ClientConnected increments the websocket client gauge.
func (c *Collector) ClientConnected() {
	c.wsClients.Inc()
}

// ClientDisconnected decrements the websocket client gauge.
func (c *Collector) ClientDisconnected() {
	c.wsClients.Dec()
}
