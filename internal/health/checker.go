// Package health tracks whether the dashboard's polls are reaching the
// backend. A poll turns unhealthy after a run of consecutive failed ticks
// and recovers on the first success.
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/guildpanel/guildpanel/internal/metrics"
)

// Status represents the health status of a poll.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PollHealth holds health information for a poll.
type PollHealth struct {
	Status              Status    `json:"status"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Checker records poll outcomes.
type Checker struct {
	mu               sync.RWMutex
	polls            map[string]*PollHealth
	metrics          *metrics.Collector
	failureThreshold int
}

// NewChecker creates a checker. A threshold below 1 is treated as 3.
func NewChecker(m *metrics.Collector, failureThreshold int) *Checker {
	if failureThreshold < 1 {
		failureThreshold = 3
	}
	return &Checker{
		polls:            make(map[string]*PollHealth),
		metrics:          m,
		failureThreshold: failureThreshold,
	}
}

// Record stores the outcome of one tick. It matches scheduler.OnTick.
func (c *Checker) Record(poll string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ph := c.getOrCreate(poll)
	ph.LastCheck = time.Now()

	if err == nil {
		if ph.ConsecutiveFailures > 0 {
			slog.Info("poll recovered", "poll", poll, "failures", ph.ConsecutiveFailures)
		}
		ph.Status = StatusHealthy
		ph.ConsecutiveFailures = 0
		ph.LastError = ""
	} else {
		ph.ConsecutiveFailures++
		ph.LastError = err.Error()
		if ph.ConsecutiveFailures >= c.failureThreshold {
			if ph.Status != StatusUnhealthy {
				slog.Warn("poll marked unhealthy", "poll", poll, "failures", ph.ConsecutiveFailures, "err", ph.LastError)
			}
			ph.Status = StatusUnhealthy
		}
	}

	if c.metrics != nil {
		c.metrics.SetPollHealth(poll, ph.Status != StatusUnhealthy)
	}
}

func (c *Checker) getOrCreate(poll string) *PollHealth {
	ph, ok := c.polls[poll]
	if !ok {
		ph = &PollHealth{Status: StatusUnknown}
		c.polls[poll] = ph
	}
	return ph
}

// IsHealthy returns whether a poll is healthy (or unknown, which is treated as healthy).
func (c *Checker) IsHealthy(poll string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ph, ok := c.polls[poll]
	if !ok {
		return true
	}
	return ph.Status != StatusUnhealthy
}

// GetStatus returns the health status for a poll.
func (c *Checker) GetStatus(poll string) PollHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ph, ok := c.polls[poll]
	if !ok {
		return PollHealth{Status: StatusUnknown}
	}
	return *ph
}

// GetAllStatuses returns a copy of every poll's health.
func (c *Checker) GetAllStatuses() map[string]PollHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]PollHealth, len(c.polls))
	for name, ph := range c.polls {
		out[name] = *ph
	}
	return out
}

// OverallHealthy reports whether no poll is unhealthy.
func (c *Checker) OverallHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ph := range c.polls {
		if ph.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}

// Remove forgets a poll, e.g. after it was stopped.
func (c *Checker) Remove(poll string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.polls, poll)
}
