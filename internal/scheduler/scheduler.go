// Package scheduler runs the dashboard's periodic panel refreshes. Timers
// live in a registry keyed by name, so starting, stopping and tearing them
// all down is exhaustive and idempotent.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hako/durafmt"

	"github.com/guildpanel/guildpanel/internal/metrics"
)

// ErrInvalidInterval is returned by Start for a non-positive interval.
var ErrInvalidInterval = errors.New("interval must be positive")

// Func is the work run on every tick.
type Func func(ctx context.Context) error

// Poll describes a registered timer.
type Poll struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	IntervalText string        `json:"interval_text"`
	Started      time.Time     `json:"started"`
	Ticks        uint64        `json:"ticks"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

type entry struct {
	name     string
	interval time.Duration
	fn       Func
	started  time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	ticks   uint64
	lastRun time.Time
	lastErr string
}

func (e *entry) stop() {
	e.stopOnce.Do(e.cancel)
}

// Scheduler owns every periodic timer of the dashboard.
type Scheduler struct {
	mu      sync.Mutex
	polls   map[string]*entry
	metrics *metrics.Collector
	onTick  func(name string, err error)
	wg      sync.WaitGroup
}

// New creates an empty scheduler. Metrics may be nil.
func New(m *metrics.Collector) *Scheduler {
	return &Scheduler{
		polls:   make(map[string]*entry),
		metrics: m,
	}
}

// OnTick registers a callback run after every tick with its outcome.
func (s *Scheduler) OnTick(fn func(name string, err error)) {
	s.mu.Lock()
	s.onTick = fn
	s.mu.Unlock()
}

// Start registers a timer that calls fn every interval. Starting a name that
// is already registered with the same interval is a no-op; with a different
// interval the old timer is replaced.
func (s *Scheduler) Start(name string, interval time.Duration, fn Func) error {
	if interval <= 0 {
		return fmt.Errorf("poll %s: %w", name, ErrInvalidInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.polls[name]; ok {
		if old.interval == interval {
			return nil
		}
		old.stop()
		delete(s.polls, name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		name:     name,
		interval: interval,
		fn:       fn,
		started:  time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.polls[name] = e

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(e.done)
		s.loop(e)
	}()
	slog.Info("poll started", "poll", name, "interval", interval)
	return nil
}

// Stop cancels one timer and any tick it has in flight. Unknown names are
// ignored.
func (s *Scheduler) Stop(name string) {
	s.mu.Lock()
	e, ok := s.polls[name]
	delete(s.polls, name)
	s.mu.Unlock()

	if ok {
		e.stop()
		<-e.done
		slog.Info("poll stopped", "poll", name)
	}
}

// StopAll cancels every timer and waits for running ticks to return. Safe
// to call multiple times.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	polls := s.polls
	s.polls = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range polls {
		e.stop()
	}
	s.wg.Wait()
	if len(polls) > 0 {
		slog.Info("all polls stopped", "count", len(polls))
	}
}

// Len returns the number of registered timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.polls)
}

func (s *Scheduler) loop(e *entry) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Ticks run concurrently; a slow tick must not delay the next one.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.tick(e)
			}()
		case <-e.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(e *entry) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			slog.Error("poll panicked", "poll", e.name, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
		s.finish(e, err)
	}()

	if s.metrics != nil {
		s.metrics.PollTick(e.name)
	}
	err = e.fn(e.ctx)
}

func (s *Scheduler) finish(e *entry, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	e.mu.Lock()
	e.ticks++
	e.lastRun = time.Now()
	e.lastErr = ""
	if err != nil {
		e.lastErr = err.Error()
	}
	e.mu.Unlock()

	s.mu.Lock()
	fn := s.onTick
	s.mu.Unlock()
	if fn != nil {
		fn(e.name, err)
	}
}

// Snapshot lists the registered timers sorted by name.
func (s *Scheduler) Snapshot() []Poll {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.polls))
	for _, e := range s.polls {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]Poll, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, Poll{
			Name:         e.name,
			Interval:     e.interval,
			IntervalText: durafmt.Parse(e.interval).String(),
			Started:      e.started,
			Ticks:        e.ticks,
			LastRun:      e.lastRun,
			LastError:    e.lastErr,
		})
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
