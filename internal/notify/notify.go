// Package notify implements the dashboard's toast surface: short-lived,
// independently dismissing messages pushed to every connected browser.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guildpanel/guildpanel/internal/config"
	"github.com/guildpanel/guildpanel/internal/metrics"
)

// Severity selects the toast styling.
type Severity string

const (
	Success Severity = "success"
	Error   Severity = "error"
	Warning Severity = "warning"
	Info    Severity = "info"
)

// ParseSeverity maps a string to a Severity, falling back to Info.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case Success, Error, Warning, Info:
		return Severity(s)
	default:
		return Info
	}
}

// Class returns the CSS classes used to style a toast of this severity.
func (s Severity) Class() string {
	switch s {
	case Success:
		return "bg-success text-white"
	case Error:
		return "bg-danger text-white"
	case Warning:
		return "bg-warning text-dark"
	default:
		return "bg-info text-white"
	}
}

// Toast is one notification.
type Toast struct {
	ID       string    `json:"id"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	Class    string    `json:"class"`
	Created  time.Time `json:"created"`
	Fading   bool      `json:"fading"`
}

// EventType is the lifecycle step a subscriber is told about.
type EventType string

const (
	EventShown   EventType = "toast_shown"
	EventFading  EventType = "toast_fading"
	EventRemoved EventType = "toast_removed"
)

// Event is published on every toast lifecycle step.
type Event struct {
	Type  EventType `json:"type"`
	Toast Toast     `json:"toast"`
}

// Notifier is anything that can surface a message to the user.
type Notifier interface {
	Notify(message string, severity Severity) Toast
}

// Center owns the toast container: the ordered set of visible toasts and
// their dismissal timers.
type Center struct {
	mu          sync.Mutex
	container   []*Toast
	timers      map[string]*time.Timer
	subscribers map[chan Event]struct{}
	closed      bool

	display time.Duration
	fade    time.Duration
	metrics *metrics.Collector
}

// NewCenter creates a notification center with the given display window.
func NewCenter(cfg config.NotifyConfig, m *metrics.Collector) *Center {
	display := cfg.Display
	if display <= 0 {
		display = 5 * time.Second
	}
	fade := cfg.Fade
	if fade <= 0 {
		fade = 300 * time.Millisecond
	}
	return &Center{
		timers:      make(map[string]*time.Timer),
		subscribers: make(map[chan Event]struct{}),
		display:     display,
		fade:        fade,
		metrics:     m,
	}
}

// Notify shows a toast. It is removed after the display window in two
// steps: it is marked fading, then it is removed once the fade elapses.
func (c *Center) Notify(message string, severity Severity) Toast {
	severity = ParseSeverity(string(severity))
	t := &Toast{
		ID:       "toast-" + uuid.NewString(),
		Message:  message,
		Severity: severity,
		Class:    severity.Class(),
		Created:  time.Now(),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		slog.Debug("notify after close", "severity", severity, "message", message)
		return *t
	}
	if c.container == nil {
		slog.Debug("creating toast container")
		c.container = make([]*Toast, 0, 4)
	}
	c.container = append(c.container, t)
	c.timers[t.ID] = time.AfterFunc(c.display, func() { c.startFade(t.ID) })
	snapshot := *t
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Notification(string(severity))
	}
	switch severity {
	case Error:
		slog.Warn("notify", "severity", severity, "message", message)
	default:
		slog.Debug("notify", "severity", severity, "message", message)
	}

	c.publish(Event{Type: EventShown, Toast: snapshot})
	return snapshot
}

func (c *Center) startFade(id string) {
	c.mu.Lock()
	t := c.find(id)
	if t == nil || c.closed {
		c.mu.Unlock()
		return
	}
	t.Fading = true
	c.timers[id] = time.AfterFunc(c.fade, func() { c.remove(id) })
	snapshot := *t
	c.mu.Unlock()

	c.publish(Event{Type: EventFading, Toast: snapshot})
}

func (c *Center) remove(id string) {
	c.mu.Lock()
	var removed *Toast
	for i, t := range c.container {
		if t.ID == id {
			removed = t
			c.container = append(c.container[:i], c.container[i+1:]...)
			break
		}
	}
	delete(c.timers, id)
	c.mu.Unlock()

	if removed != nil {
		c.publish(Event{Type: EventRemoved, Toast: *removed})
	}
}

// find must be called with mu held.
func (c *Center) find(id string) *Toast {
	for _, t := range c.container {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Active returns the toasts currently in the container, oldest first.
func (c *Center) Active() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Toast, 0, len(c.container))
	for _, t := range c.container {
		out = append(out, *t)
	}
	return out
}

// Subscribe returns a channel that receives every toast event.
func (c *Center) Subscribe() chan Event {
	ch := make(chan Event, 32)
	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (c *Center) Unsubscribe(ch chan Event) {
	c.mu.Lock()
	if _, ok := c.subscribers[ch]; ok {
		delete(c.subscribers, ch)
		close(ch)
	}
	c.mu.Unlock()
}

func (c *Center) publish(ev Event) {
	// Sends are non-blocking, so holding the lock keeps Unsubscribe from
	// closing a channel mid-send.
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close stops every pending dismissal timer and closes all subscriptions.
// Toasts still in the container stay there.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	for ch := range c.subscribers {
		close(ch)
	}
	c.subscribers = make(map[chan Event]struct{})
}
