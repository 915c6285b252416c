package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestBackendRequestOutcomes(t *testing.T) {
	c := New()

	c.BackendRequest("/api/guilds", 200, 10*time.Millisecond)
	c.BackendRequest("/api/guilds", 200, 20*time.Millisecond)
	c.BackendRequest("/api/guilds", 404, time.Millisecond)
	c.BackendRequest("/api/guilds", 0, time.Millisecond)

	if v := getCounterValue(c.backendRequests.WithLabelValues("/api/guilds", "ok")); v != 2 {
		t.Errorf("expected ok=2, got %v", v)
	}
	if v := getCounterValue(c.backendRequests.WithLabelValues("/api/guilds", "http_error")); v != 1 {
		t.Errorf("expected http_error=1, got %v", v)
	}
	if v := getCounterValue(c.backendRequests.WithLabelValues("/api/guilds", "transport_error")); v != 1 {
		t.Errorf("expected transport_error=1, got %v", v)
	}

	m := &dto.Metric{}
	c.backendDuration.WithLabelValues("/api/guilds").(prometheus.Histogram).Write(m)
	if m.GetHistogram().GetSampleCount() != 4 {
		t.Errorf("expected 4 duration samples, got %d", m.GetHistogram().GetSampleCount())
	}
}

func TestRenderAndSuperseded(t *testing.T) {
	c := New()

	c.Render("logs", true)
	c.Render("logs", false)
	c.RenderSuperseded("logs")
	c.RenderSuperseded("logs")

	if v := getCounterValue(c.renders.WithLabelValues("logs", "ok")); v != 1 {
		t.Errorf("expected ok=1, got %v", v)
	}
	if v := getCounterValue(c.renders.WithLabelValues("logs", "error")); v != 1 {
		t.Errorf("expected error=1, got %v", v)
	}
	if v := getCounterValue(c.rendersDiscarded.WithLabelValues("logs")); v != 2 {
		t.Errorf("expected superseded=2, got %v", v)
	}
}

func TestClientGauge(t *testing.T) {
	c := New()

	c.ClientConnected()
	c.ClientConnected()
	c.ClientDisconnected()

	if v := getGaugeValue(c.wsClients); v != 1 {
		t.Errorf("expected 1 client, got %v", v)
	}
}

func TestCountersByLabel(t *testing.T) {
	c := New()

	c.Notification("error")
	c.Notification("error")
	c.PollTick("status")
	c.Action("restart", "ok")

	if v := getCounterValue(c.notifications.WithLabelValues("error")); v != 2 {
		t.Errorf("expected error notifications=2, got %v", v)
	}
	if v := getCounterValue(c.pollTicks.WithLabelValues("status")); v != 1 {
		t.Errorf("expected status ticks=1, got %v", v)
	}
	if v := getCounterValue(c.actions.WithLabelValues("restart", "ok")); v != 1 {
		t.Errorf("expected restart ok=1, got %v", v)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Each collector owns its registry, so creating two must not panic.
	a := New()
	b := New()
	if a.Registry == b.Registry {
		t.Error("expected distinct registries")
	}
	if _, err := a.Registry.Gather(); err != nil {
		t.Errorf("gather failed: %v", err)
	}
}

func TestSetPollHealth(t *testing.T) {
	c := New()

	c.SetPollHealth("status", true)
	if v := getGaugeValue(c.pollHealthy.WithLabelValues("status")); v != 1 {
		t.Errorf("expected 1, got %v", v)
	}
	c.SetPollHealth("status", false)
	if v := getGaugeValue(c.pollHealthy.WithLabelValues("status")); v != 0 {
		t.Errorf("expected 0, got %v", v)
	}
}
