// Package actions implements the dashboard's user-triggered mutations.
//
// Every handler confirms destructive intent when required, marks the
// triggering control busy, issues one backend call, and on success refreshes
// the affected panel and shows a success notification. The busy state is
// always released.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guildpanel/guildpanel/internal/backend"
	"github.com/guildpanel/guildpanel/internal/busy"
	"github.com/guildpanel/guildpanel/internal/metrics"
	"github.com/guildpanel/guildpanel/internal/notify"
	"github.com/guildpanel/guildpanel/internal/view"
)

var (
	// ErrInvalidInput is returned when a handler rejects its input without
	// calling the backend.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotConfirmed is returned when the user has not confirmed a
	// destructive action.
	ErrNotConfirmed = errors.New("action not confirmed")
	// ErrBusy is returned when the triggering control is still busy.
	ErrBusy = errors.New("action already in progress")
)

// Input describes a value the user is asked for alongside a confirmation.
type Input struct {
	Prompt  string `json:"prompt"`
	Default string `json:"default"`
}

// ConfirmationError carries the question the user must answer before the
// action runs. It matches ErrNotConfirmed.
type ConfirmationError struct {
	Action string `json:"action"`
	Prompt string `json:"prompt"`
	Input  *Input `json:"input,omitempty"`
}

func (e *ConfirmationError) Error() string {
	return "confirmation required: " + e.Prompt
}

func (e *ConfirmationError) Is(target error) bool {
	return target == ErrNotConfirmed
}

// Confirmer answers a yes/no prompt.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Confirmed is a Confirmer with a fixed answer, for requests that already
// carry the user's decision.
type Confirmed bool

// Confirm returns the fixed answer.
func (c Confirmed) Confirm(string) bool { return bool(c) }

// Backend is the subset of the backend client used by the handlers.
type Backend interface {
	UpdateConfig(ctx context.Context, u backend.ConfigUpdate) error
	Backup(ctx context.Context) (*backend.Result, error)
	Restart(ctx context.Context) (*backend.Result, error)
	UpdateWhitelist(ctx context.Context, action, targetType, id string) error
	UpdateAllowedRoles(ctx context.Context, action, id string) error
	RunCommand(ctx context.Context, command string, params map[string]any) (*backend.Result, error)
	WarningsHistory(ctx context.Context, days, limit int) ([]backend.WarningRecord, error)
	KicksHistory(ctx context.Context, days, limit int) ([]backend.KickRecord, error)
}

// Refresher re-renders a panel by name.
type Refresher interface {
	Render(ctx context.Context, panel, guildID string) error
}

// GuildState holds the guild shown in the detail modal.
type GuildState interface {
	CurrentGuild() string
	SetCurrentGuild(id string)
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Backend  Backend
	Panels   Refresher
	Document *view.Document
	Controls *busy.Registry
	Notifier notify.Notifier
	Metrics  *metrics.Collector
	State    GuildState
	// Options returns the current render options; ValidateIDs checks
	// Discord ids before any backend call.
	Options func() view.Options
}

// Handler runs dashboard actions.
type Handler struct {
	api      Backend
	panels   Refresher
	doc      *view.Document
	controls *busy.Registry
	notifier notify.Notifier
	metrics  *metrics.Collector
	state    GuildState
	options  func() view.Options

	// RestartNotice is the delay before the follow-up restart notification.
	RestartNotice time.Duration

	mu     sync.Mutex
	timers []*time.Timer
	closed bool
}

// New creates a Handler.
func New(d Deps) *Handler {
	if d.Controls == nil {
		d.Controls = busy.NewRegistry(view.LayoutControls...)
	}
	if d.Options == nil {
		d.Options = func() view.Options { return view.Options{Strict: true, HistoryDays: 30, HistoryLimit: 50} }
	}
	return &Handler{
		api:           d.Backend,
		panels:        d.Panels,
		doc:           d.Document,
		controls:      d.Controls,
		notifier:      d.Notifier,
		metrics:       d.Metrics,
		state:         d.State,
		options:       d.Options,
		RestartNotice: 2 * time.Second,
	}
}

// Close stops pending follow-up notifications.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, t := range h.timers {
		t.Stop()
	}
	h.timers = nil
}

func (h *Handler) strict() bool {
	return h.options().Strict
}

// validID rejects blank ids, and ids that do not look like snowflakes when
// id validation is enabled.
func (h *Handler) validID(id string) bool {
	return h.options().ValidID(id)
}

func (h *Handler) notify(message string, severity notify.Severity) {
	if h.notifier != nil {
		h.notifier.Notify(message, severity)
	}
}

// fail reports a failed action unless the backend client already did.
func (h *Handler) fail(title string, err error) {
	if backend.IsRequestError(err) || errors.Is(err, context.Canceled) {
		return
	}
	h.notify(title+": "+message(err), notify.Error)
}

func message(err error) string {
	var re *backend.RequestError
	if errors.As(err, &re) {
		return re.Message
	}
	if err == nil || err.Error() == "" {
		return "Erro desconhecido"
	}
	return err.Error()
}

// invalid notifies a validation warning and returns ErrInvalidInput.
func (h *Handler) invalid(msg string) error {
	h.notify(msg, notify.Warning)
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// confirm asks c and returns a ConfirmationError when the user declined.
func confirm(c Confirmer, action, prompt string, input *Input) error {
	if c != nil && c.Confirm(prompt) {
		return nil
	}
	return &ConfirmationError{Action: action, Prompt: prompt, Input: input}
}

// run marks control busy for the duration of fn and records the outcome.
// An empty control runs fn without a busy state.
func (h *Handler) run(ctx context.Context, action, control string, fn func(ctx context.Context) error) error {
	if control != "" {
		release, ok := h.controls.Acquire(control)
		if !ok {
			slog.Debug("action ignored, control busy", "action", action, "control", control)
			h.record(action, ErrBusy)
			return ErrBusy
		}
		defer release()
	}
	err := fn(ctx)
	h.record(action, err)
	return err
}

func (h *Handler) record(action string, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidInput):
		outcome = "invalid"
	case errors.Is(err, ErrNotConfirmed):
		outcome = "unconfirmed"
	case errors.Is(err, ErrBusy):
		outcome = "busy"
	default:
		outcome = "error"
	}
	h.metrics.Action(action, outcome)
}

// refresh re-renders a panel after a successful mutation. Render failures
// are reported by the renderer itself.
func (h *Handler) refresh(ctx context.Context, panel string) {
	if h.panels == nil {
		return
	}
	if err := h.panels.Render(ctx, panel, ""); err != nil {
		slog.Debug("refresh after action failed", "panel", panel, "err", err)
	}
}

func (h *Handler) value(field string) string {
	if h.doc == nil {
		return ""
	}
	v, _ := h.doc.Value(field)
	return v
}

func (h *Handler) clear(field string) {
	if h.doc != nil {
		h.doc.SetValue(field, "")
	}
}

// after schedules fn unless the handler was closed.
func (h *Handler) after(d time.Duration, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.timers = append(h.timers, time.AfterFunc(d, fn))
}
