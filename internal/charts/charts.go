// Package charts owns the dashboard's two chart instances. At most one
// instance of each chart is live at a time.
package charts

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/guildpanel/guildpanel/internal/backend"
	"github.com/guildpanel/guildpanel/internal/jsonx"
)

// Canvas slot ids.
const (
	ActivityCanvas = "activityChart"
	UsageCanvas    = "usageChart"
)

// ErrDisposed is returned when updating a chart that was already disposed.
var ErrDisposed = errors.New("chart disposed")

var weekdays = []string{"Seg", "Ter", "Qua", "Qui", "Sex", "Sáb", "Dom"}

// Dataset is one data series in Chart.js terms.
type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor []string  `json:"backgroundColor"`
	BorderColor     []string  `json:"borderColor"`
	BorderWidth     int       `json:"borderWidth"`
	Tension         float64   `json:"tension,omitempty"`
}

// Spec is the serializable definition of a chart.
type Spec struct {
	ID       string    `json:"id"`
	Canvas   string    `json:"canvas"`
	Type     string    `json:"type"`
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
	Unit     string    `json:"unit,omitempty"`
	Version  int       `json:"version"`
}

// JSON encodes the spec for the browser.
func (s Spec) JSON() string {
	data, err := jsonx.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Chart is a live chart handle.
type Chart struct {
	mu       sync.Mutex
	spec     Spec
	disposed bool
}

// Spec returns a copy of the chart's current definition.
func (c *Chart) Spec() Spec {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.spec
	s.Labels = append([]string(nil), c.spec.Labels...)
	s.Datasets = make([]Dataset, len(c.spec.Datasets))
	for i, d := range c.spec.Datasets {
		d.Data = append([]float64(nil), d.Data...)
		s.Datasets[i] = d
	}
	return s
}

// Disposed reports whether Dispose was called.
func (c *Chart) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Dispose releases the chart. It is idempotent.
func (c *Chart) Dispose() {
	c.mu.Lock()
	c.disposed = true
	c.mu.Unlock()
}

func (c *Chart) setData(data []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	c.spec.Datasets[0].Data = data
	c.spec.Version++
	return nil
}

// Registry owns the activity and usage chart handles.
type Registry struct {
	mu       sync.Mutex
	activity *Chart
	usage    *Chart
	live     map[string]*Chart
}

// NewRegistry creates an empty registry; call Init before Update.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]*Chart)}
}

// Init disposes any existing charts and creates fresh ones.
func (r *Registry) Init() (activity, usage Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disposeLocked()

	r.activity = &Chart{spec: activitySpec()}
	r.usage = &Chart{spec: usageSpec()}
	r.live[r.activity.spec.ID] = r.activity
	r.live[r.usage.spec.ID] = r.usage
	return r.activity.Spec(), r.usage.Spec()
}

// disposeLocked must be called with mu held.
func (r *Registry) disposeLocked() {
	for id, c := range r.live {
		c.Dispose()
		delete(r.live, id)
	}
	r.activity = nil
	r.usage = nil
}

// Dispose releases both charts.
func (r *Registry) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposeLocked()
}

// Update applies fresh activity stats. When either chart is missing both
// are re-initialised and reinit is true; the stats are then not applied.
// The usage chart only changes when the backend reports at least one user.
func (r *Registry) Update(stats *backend.ActivityStats) (activity, usage Spec, reinit bool) {
	r.mu.Lock()
	a, u := r.activity, r.usage
	r.mu.Unlock()

	if a == nil || u == nil || a.Disposed() || u.Disposed() {
		activity, usage = r.Init()
		return activity, usage, true
	}

	if stats != nil {
		a.setData(weeklySeries(stats.WeeklyVoiceMinutes))
		if stats.TotalUsers > 0 {
			u.setData([]float64{
				float64(stats.ActiveUsers),
				float64(stats.InactiveUsers),
				float64(stats.WarnedUsers),
			})
		}
	}
	return a.Spec(), u.Spec(), false
}

// Live returns how many chart instances are currently alive.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// weeklySeries pads or truncates to exactly seven points.
func weeklySeries(in []float64) []float64 {
	out := make([]float64, len(weekdays))
	copy(out, in)
	return out
}

func activitySpec() Spec {
	return Spec{
		ID:     uuid.NewString(),
		Canvas: ActivityCanvas,
		Type:   "line",
		Labels: append([]string(nil), weekdays...),
		Datasets: []Dataset{{
			Label:           "Atividade de Voz (minutos)",
			Data:            make([]float64, len(weekdays)),
			BackgroundColor: []string{"rgba(54, 162, 235, 0.2)"},
			BorderColor:     []string{"rgba(54, 162, 235, 1)"},
			BorderWidth:     1,
			Tension:         0.1,
		}},
		Unit: "minutos",
	}
}

func usageSpec() Spec {
	return Spec{
		ID:     uuid.NewString(),
		Canvas: UsageCanvas,
		Type:   "bar",
		Labels: []string{"Usuários Ativos", "Usuários Inativos", "Usuários Avisados"},
		Datasets: []Dataset{{
			Label: "Status de Usuários",
			Data:  make([]float64, 3),
			BackgroundColor: []string{
				"rgba(75, 192, 192, 0.2)",
				"rgba(255, 206, 86, 0.2)",
				"rgba(255, 99, 132, 0.2)",
			},
			BorderColor: []string{
				"rgba(75, 192, 192, 1)",
				"rgba(255, 206, 86, 1)",
				"rgba(255, 99, 132, 1)",
			},
			BorderWidth: 1,
		}},
	}
}
