// Package view renders dashboard panels into the server-side Document.
// Each render shows a loading placeholder, fetches fresh data from the
// backend and replaces the placeholder with rows, an empty-state message,
// or an inline error with a retry control.
package view

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"strings"
	"sync"

	"github.com/guildpanel/guildpanel/internal/backend"
	"github.com/guildpanel/guildpanel/internal/busy"
	"github.com/guildpanel/guildpanel/internal/charts"
	"github.com/guildpanel/guildpanel/internal/config"
	"github.com/guildpanel/guildpanel/internal/discordid"
	"github.com/guildpanel/guildpanel/internal/metrics"
	"github.com/guildpanel/guildpanel/internal/notify"
)

// Panel names. They double as retry targets and metric labels.
const (
	PanelGuilds       = "guilds"
	PanelGuild        = "guild"
	PanelConfig       = "config"
	PanelWhitelist    = "whitelist"
	PanelAllowedRoles = "allowed_roles"
	PanelEvents       = "events"
	PanelLogs         = "logs"
	PanelWarnings     = "warnings"
	PanelKicks        = "kicks"
	PanelStatus       = "status"
	PanelCharts       = "charts"
)

// Panels lists every panel rendered at bootstrap. The guild detail is only
// rendered on demand.
var Panels = []string{
	PanelConfig, PanelGuilds, PanelWhitelist, PanelAllowedRoles, PanelEvents,
	PanelLogs, PanelWarnings, PanelKicks, PanelStatus, PanelCharts,
}

// ShapeError reports a payload that decoded but is not usable.
type ShapeError struct {
	Panel  string
	Reason string
}

func (e *ShapeError) Error() string {
	return e.Reason
}

// Source is the subset of the backend client the renderers read from.
type Source interface {
	Guilds(ctx context.Context) ([]backend.Guild, error)
	Guild(ctx context.Context, id string) (*backend.GuildDetail, error)
	Whitelist(ctx context.Context) (*backend.Whitelist, error)
	AllowedRoles(ctx context.Context) ([]backend.AllowedRole, error)
	Events(ctx context.Context) (*backend.Events, error)
	Logs(ctx context.Context, lines int) (*backend.Logs, error)
	ActivityStats(ctx context.Context) (*backend.ActivityStats, error)
	Status(ctx context.Context) (*backend.Status, error)
	WarningsHistory(ctx context.Context, days, limit int) ([]backend.WarningRecord, error)
	KicksHistory(ctx context.Context, days, limit int) ([]backend.KickRecord, error)
}

// Options controls rendering. Strict requires ids and config blocks to be
// present.
type Options struct {
	Strict       bool
	LogLines     int
	HistoryDays  int
	HistoryLimit int

	// ValidateIDs rejects ids that are not plausible snowflakes.
	ValidateIDs bool
}

// ValidID reports whether id passes the configured id checks: it must not
// be blank, and must look like a snowflake when ValidateIDs is set.
func (o Options) ValidID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	return !o.ValidateIDs || discordid.Valid(id)
}

// OptionsFrom builds Options from the render config section.
func OptionsFrom(rc config.RenderConfig) Options {
	return Options{
		Strict:       rc.Strict(),
		ValidateIDs:  rc.ValidateIDs,
		LogLines:     rc.LogLines,
		HistoryDays:  rc.HistoryDays,
		HistoryLimit: rc.HistoryLimit,
	}
}

// Renderer maps backend payloads to fragments in a Document.
type Renderer struct {
	doc      *Document
	src      Source
	notifier notify.Notifier
	charts   *charts.Registry
	metrics  *metrics.Collector
	controls *busy.Registry

	mu     sync.RWMutex
	opts   Options
	panels map[string]*panel
}

// NewRenderer creates a renderer. The notifier and metrics may be nil.
func NewRenderer(doc *Document, src Source, n notify.Notifier, ch *charts.Registry, m *metrics.Collector, opts Options) *Renderer {
	if ch == nil {
		ch = charts.NewRegistry()
	}
	return &Renderer{
		doc:      doc,
		src:      src,
		notifier: n,
		charts:   ch,
		metrics:  m,
		opts:     normalize(opts),
		panels:   make(map[string]*panel),
	}
}

func normalize(o Options) Options {
	if o.LogLines <= 0 {
		o.LogLines = 50
	}
	if o.HistoryDays <= 0 {
		o.HistoryDays = 30
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	return o
}

// UseControls lets renderers toggle the busy state of their own controls.
func (r *Renderer) UseControls(b *busy.Registry) {
	r.controls = b
}

// SetOptions replaces the render options, e.g. after a config reload.
func (r *Renderer) SetOptions(o Options) {
	r.mu.Lock()
	r.opts = normalize(o)
	r.mu.Unlock()
}

// Options returns the current render options.
func (r *Renderer) Options() Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts
}

// Document returns the document the renderer writes to.
func (r *Renderer) Document() *Document { return r.doc }

// Charts returns the chart registry.
func (r *Renderer) Charts() *charts.Registry { return r.charts }

func (r *Renderer) panel(name string) *panel {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.panels[name]
	if !ok {
		p = &panel{name: name}
		r.panels[name] = p
	}
	return p
}

// fragments maps slots to their new content.
type fragmentSet map[Slot]template.HTML

// job describes one panel render.
type job struct {
	panel   string
	loading fragmentSet
	fetch   func(ctx context.Context) (fragmentSet, error)
	// failed builds the inline error fragments.
	failed func(err error) fragmentSet
	// after runs inside the commit of a successful render.
	after func()
	// title prefixes the notification for failures the backend client did
	// not already report.
	title string
}

// run executes a render job. Only the latest issued render of a panel
// commits; older ones are cancelled and discarded. Errors are reported
// inline and through exactly one notification, then returned for callers
// that want them.
func (r *Renderer) run(ctx context.Context, j job) error {
	p := r.panel(j.panel)
	ctx, seq, done := p.begin(ctx)
	defer done()

	if len(j.loading) > 0 {
		p.commit(seq, func() { r.apply(j.loading) })
	}

	out, err := j.fetch(ctx)
	if err != nil && errors.Is(err, context.Canceled) {
		if !p.current(seq) {
			r.superseded(j.panel)
		}
		return err
	}

	var frags fragmentSet
	if err != nil {
		frags = j.failed(err)
	} else {
		frags = out
	}

	if !p.commit(seq, func() {
		r.apply(frags)
		if err == nil && j.after != nil {
			j.after()
		}
	}) {
		r.superseded(j.panel)
		return nil
	}

	if r.metrics != nil {
		r.metrics.Render(j.panel, err == nil)
	}
	if err != nil {
		slog.Warn("panel render failed", "panel", j.panel, "err", err)
		r.report(j.title, err)
	}
	return err
}

func (r *Renderer) apply(frags fragmentSet) {
	for slot, html := range frags {
		r.doc.Set(slot, html)
	}
}

func (r *Renderer) superseded(name string) {
	slog.Debug("discarding superseded render", "panel", name)
	if r.metrics != nil {
		r.metrics.RenderSuperseded(name)
	}
}

// report notifies a failure unless the backend client already did.
func (r *Renderer) report(title string, err error) {
	if r.notifier == nil || backend.IsRequestError(err) {
		return
	}
	r.notifier.Notify(title+": "+errMessage(err), notify.Error)
}

// errMessage returns the user-facing text of an error.
func errMessage(err error) string {
	var re *backend.RequestError
	if errors.As(err, &re) {
		return re.Message
	}
	if err == nil || err.Error() == "" {
		return "Erro desconhecido"
	}
	return err.Error()
}

type errorData struct {
	Title   string
	Message string
	Panel   string
	Cols    int
}

func errorAlert(title, panelName string, err error) template.HTML {
	return execute("errorAlert", errorData{Title: title, Message: errMessage(err), Panel: panelName})
}

func errorRow(title, panelName string, cols int, err error) template.HTML {
	return execute("errorRow", errorData{Title: title, Message: errMessage(err), Panel: panelName, Cols: cols})
}

func emptyRow(textValue string, cols int) template.HTML {
	return execute("emptyRow", struct {
		Text string
		Cols int
	}{textValue, cols})
}

func spinner() template.HTML { return execute("spinner", nil) }

func spinnerRow(cols int) template.HTML { return execute("spinnerRow", cols) }

// Render renders one panel by name. The guild detail panel renders the
// given guild id; other panels ignore it.
func (r *Renderer) Render(ctx context.Context, name, guildID string) error {
	switch name {
	case PanelGuilds:
		return r.Guilds(ctx)
	case PanelGuild:
		return r.GuildDetail(ctx, guildID)
	case PanelConfig:
		return r.ConfigForm(ctx)
	case PanelWhitelist:
		return r.Whitelist(ctx)
	case PanelAllowedRoles:
		return r.AllowedRoles(ctx)
	case PanelEvents:
		return r.Events(ctx)
	case PanelLogs:
		return r.Logs(ctx)
	case PanelWarnings:
		return r.Warnings(ctx)
	case PanelKicks:
		return r.Kicks(ctx)
	case PanelStatus:
		return r.Status(ctx)
	case PanelCharts:
		return r.UpdateCharts(ctx)
	default:
		return ErrUnknownPanel
	}
}

// ErrUnknownPanel is returned by Render for a name that is not a panel.
var ErrUnknownPanel = errors.New("unknown panel")
