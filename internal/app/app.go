// Package app wires the dashboard together and owns its state: the view
// document, the guild shown in the detail modal, the chart handles and the
// poll timers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"github.com/guildpanel/guildpanel/internal/actions"
	"github.com/guildpanel/guildpanel/internal/backend"
	"github.com/guildpanel/guildpanel/internal/busy"
	"github.com/guildpanel/guildpanel/internal/charts"
	"github.com/guildpanel/guildpanel/internal/config"
	"github.com/guildpanel/guildpanel/internal/health"
	"github.com/guildpanel/guildpanel/internal/metrics"
	"github.com/guildpanel/guildpanel/internal/notify"
	"github.com/guildpanel/guildpanel/internal/scheduler"
	"github.com/guildpanel/guildpanel/internal/view"
)

// Poll names. Each poll re-renders the panel of the same name.
const (
	PollStatus = view.PanelStatus
	PollCharts = view.PanelCharts
	PollEvents = view.PanelEvents
	PollLogs   = view.PanelLogs
)

// bootstrapWorkers bounds the initial render fan-out.
const bootstrapWorkers = 4

const unexpectedError = "Ocorreu um erro inesperado"

// App is the dashboard application.
type App struct {
	Document  *view.Document
	Renderer  *view.Renderer
	Charts    *charts.Registry
	Scheduler *scheduler.Scheduler
	Actions   *actions.Handler
	Controls  *busy.Registry
	Notifier  *notify.Center
	Health    *health.Checker
	Metrics   *metrics.Collector

	mu             sync.RWMutex
	cfg            *config.Config
	currentGuildID string

	// lifeMu serializes poll registration with shutdown.
	lifeMu  sync.Mutex
	running bool

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds every component from cfg. Metrics may be nil.
func New(cfg *config.Config, m *metrics.Collector) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		Document:  view.NewDashboardDocument(),
		Charts:    charts.NewRegistry(),
		Scheduler: scheduler.New(m),
		Controls:  busy.NewRegistry(view.LayoutControls...),
		Notifier:  notify.NewCenter(cfg.Notify, m),
		Health:    health.NewChecker(m, 3),
		Metrics:   m,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}

	client := backend.NewClient(cfg.Backend, a.Notifier, m)
	a.Renderer = view.NewRenderer(a.Document, client, a.Notifier, a.Charts, m, view.OptionsFrom(cfg.Render))
	a.Renderer.UseControls(a.Controls)
	a.Actions = actions.New(actions.Deps{
		Backend:  client,
		Panels:   a.Renderer,
		Document: a.Document,
		Controls: a.Controls,
		Notifier: a.Notifier,
		Metrics:  m,
		State:    a,
		Options:  a.Renderer.Options,
	})
	a.Scheduler.OnTick(a.Health.Record)
	return a
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// CurrentGuild returns the guild shown in the detail modal.
func (a *App) CurrentGuild() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentGuildID
}

// SetCurrentGuild records the guild shown in the detail modal.
func (a *App) SetCurrentGuild(id string) {
	a.mu.Lock()
	a.currentGuildID = id
	a.mu.Unlock()
}

// Context is cancelled when the app stops.
func (a *App) Context() context.Context {
	return a.ctx
}

// Start renders every panel once and starts the polls. Only the first call
// has an effect.
func (a *App) Start() error {
	var err error
	a.startOnce.Do(func() {
		start := time.Now()
		a.Renderer.InitCharts()
		a.renderAll(a.ctx)
		slog.Info("initial render complete", "panels", len(view.Panels), "elapsed", time.Since(start))
		a.lifeMu.Lock()
		defer a.lifeMu.Unlock()
		if a.ctx.Err() != nil {
			return
		}
		a.running = true
		err = a.startPolls(a.Config().Polling)
	})
	return err
}

func (a *App) renderAll(ctx context.Context) {
	swg := sizedwaitgroup.New(bootstrapWorkers)
	for _, panel := range view.Panels {
		swg.Add()
		go func(panel string) {
			defer swg.Done()
			a.Guard(func() error {
				return a.Renderer.Render(ctx, panel, "")
			})
		}(panel)
	}
	swg.Wait()
}

// Refresh re-renders every panel, e.g. after a config reload.
func (a *App) Refresh() {
	a.renderAll(a.ctx)
}

func (a *App) polls(pc config.PollingConfig) map[string]time.Duration {
	return map[string]time.Duration{
		PollStatus: pc.Status,
		PollCharts: pc.Charts,
		PollEvents: pc.Events,
		PollLogs:   pc.Logs,
	}
}

// startPolls registers the four refresh timers. Start is idempotent per
// name, so calling this again only replaces timers whose interval changed.
func (a *App) startPolls(pc config.PollingConfig) error {
	for name, interval := range a.polls(pc) {
		name := name
		err := a.Scheduler.Start(name, interval, func(ctx context.Context) error {
			return a.Guard(func() error {
				return a.Renderer.Render(ctx, name, "")
			})
		})
		if err != nil {
			return fmt.Errorf("starting poll: %w", err)
		}
	}
	return nil
}

// Stop cancels every timer and in-flight render. Safe to call multiple times.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.lifeMu.Lock()
		a.running = false
		a.cancel()
		a.Scheduler.StopAll()
		a.lifeMu.Unlock()
		a.Actions.Close()
		a.Charts.Dispose()
		a.Notifier.Close()
		slog.Info("dashboard stopped")
	})
}

// Guard runs fn and turns a panic into an error plus an "unexpected error"
// notification. It is the last-resort backstop for every render and action.
func (a *App) Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered from panic", "panic", r, "stack", string(debug.Stack()))
			a.Notifier.Notify(unexpectedError, notify.Error)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// ApplyConfig switches to a reloaded configuration: render options change
// immediately and polls whose interval changed are restarted. Listen and
// backend settings only take effect after a restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.mu.Lock()
	old := a.cfg
	a.cfg = cfg
	a.mu.Unlock()

	if old.Listen != cfg.Listen || old.Backend != cfg.Backend {
		slog.Warn("listen and backend changes require a restart")
	}
	if old.Notify != cfg.Notify {
		slog.Warn("notify changes require a restart")
	}

	a.Renderer.SetOptions(view.OptionsFrom(cfg.Render))

	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	if !a.running {
		return
	}
	if err := a.startPolls(cfg.Polling); err != nil {
		slog.Error("applying poll intervals", "err", err)
	}
	if old.Render != cfg.Render {
		go a.Refresh()
	}
	slog.Info("configuration applied", "mode", cfg.Render.Mode)
}
