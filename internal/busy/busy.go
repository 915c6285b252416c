// Package busy tracks the loading state of dashboard controls.
package busy

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// ErrNoControl is returned when a control id was never declared.
var ErrNoControl = errors.New("control not found")

// Control is the visible state of one button.
type Control struct {
	ID             string `json:"id"`
	Busy           bool   `json:"busy"`
	SpinnerVisible bool   `json:"spinner_visible"`
	IconVisible    bool   `json:"icon_visible"`
	Disabled       bool   `json:"disabled"`
}

func idle(id string) *Control {
	return &Control{ID: id, IconVisible: true}
}

// Registry holds every declared control.
type Registry struct {
	mu       sync.RWMutex
	controls map[string]*Control
	onChange func(Control)
}

// NewRegistry creates a registry with the given controls declared and idle.
func NewRegistry(ids ...string) *Registry {
	r := &Registry{controls: make(map[string]*Control, len(ids))}
	r.Declare(ids...)
	return r
}

// Declare adds controls. Already declared controls keep their state.
func (r *Registry) Declare(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if _, ok := r.controls[id]; !ok {
			r.controls[id] = idle(id)
		}
	}
}

// OnChange registers a callback run after every state change.
func (r *Registry) OnChange(fn func(Control)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// SetBusy shows the spinner, hides the icon and disables the control when
// busy is true, and does the inverse otherwise. Unknown ids are logged and
// left alone.
func (r *Registry) SetBusy(id string, busy bool) error {
	r.mu.Lock()
	c, ok := r.controls[id]
	if !ok {
		r.mu.Unlock()
		slog.Error("control not found", "control", id)
		return ErrNoControl
	}
	apply(c, busy)
	snapshot, fn := *c, r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return nil
}

// Acquire marks the control busy only if it is currently idle. The returned
// release func clears the busy state; callers should defer it.
func (r *Registry) Acquire(id string) (release func(), ok bool) {
	r.mu.Lock()
	c, found := r.controls[id]
	if !found {
		r.mu.Unlock()
		slog.Error("control not found", "control", id)
		// Unknown controls never block the action itself.
		return func() {}, true
	}
	if c.Busy {
		r.mu.Unlock()
		return nil, false
	}
	apply(c, true)
	snapshot, fn := *c, r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	var once sync.Once
	return func() {
		once.Do(func() { r.SetBusy(id, false) })
	}, true
}

func apply(c *Control, busy bool) {
	c.Busy = busy
	c.SpinnerVisible = busy
	c.IconVisible = !busy
	c.Disabled = busy
}

// Get returns the state of a control.
func (r *Registry) Get(id string) (Control, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controls[id]
	if !ok {
		return Control{}, false
	}
	return *c, true
}

// All returns every control sorted by id.
func (r *Registry) All() []Control {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Control, 0, len(r.controls))
	for _, c := range r.controls {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
