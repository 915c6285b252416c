package view

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guildpanel/guildpanel/internal/backend"
	"github.com/guildpanel/guildpanel/internal/busy"
	"github.com/guildpanel/guildpanel/internal/charts"
	"github.com/guildpanel/guildpanel/internal/config"
	"github.com/guildpanel/guildpanel/internal/notify"
)

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []notify.Toast
}

func (r *recordingNotifier) Notify(message string, severity notify.Severity) notify.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := notify.Toast{Message: message, Severity: severity}
	r.toasts = append(r.toasts, t)
	return t
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.toasts)
}

// fakeSource answers with canned payloads. Nil funcs return empty data.
type fakeSource struct {
	guilds     func(ctx context.Context) ([]backend.Guild, error)
	guild      func(ctx context.Context, id string) (*backend.GuildDetail, error)
	whitelist  *backend.Whitelist
	roles      []backend.AllowedRole
	events     *backend.Events
	logs       func(lines int) (*backend.Logs, error)
	stats      *backend.ActivityStats
	status     *backend.Status
	warnings   []backend.WarningRecord
	kicks      []backend.KickRecord
	statusErr  error
	historyReq []int
}

func (f *fakeSource) Guilds(ctx context.Context) ([]backend.Guild, error) {
	if f.guilds == nil {
		return nil, nil
	}
	return f.guilds(ctx)
}

func (f *fakeSource) Guild(ctx context.Context, id string) (*backend.GuildDetail, error) {
	if f.guild == nil {
		return &backend.GuildDetail{}, nil
	}
	return f.guild(ctx, id)
}

func (f *fakeSource) Whitelist(context.Context) (*backend.Whitelist, error) { return f.whitelist, nil }

func (f *fakeSource) AllowedRoles(context.Context) ([]backend.AllowedRole, error) {
	return f.roles, nil
}

func (f *fakeSource) Events(context.Context) (*backend.Events, error) { return f.events, nil }

func (f *fakeSource) Logs(_ context.Context, lines int) (*backend.Logs, error) {
	if f.logs == nil {
		return &backend.Logs{}, nil
	}
	return f.logs(lines)
}

func (f *fakeSource) ActivityStats(context.Context) (*backend.ActivityStats, error) {
	return f.stats, nil
}

func (f *fakeSource) Status(context.Context) (*backend.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeSource) WarningsHistory(_ context.Context, days, limit int) ([]backend.WarningRecord, error) {
	f.historyReq = []int{days, limit}
	return f.warnings, nil
}

func (f *fakeSource) KicksHistory(_ context.Context, days, limit int) ([]backend.KickRecord, error) {
	return f.kicks, nil
}

func newTestRenderer(src Source, strict bool) (*Renderer, *recordingNotifier) {
	n := &recordingNotifier{}
	r := NewRenderer(NewDashboardDocument(), src, n, charts.NewRegistry(), nil, Options{Strict: strict})
	return r, n
}

func slotHTML(r *Renderer, slot Slot) string {
	return string(r.Document().HTML(slot))
}

func TestEmptyCollectionsShowEmptyState(t *testing.T) {
	tests := []struct {
		name   string
		render func(r *Renderer) error
		slot   Slot
		want   string
	}{
		{"guilds", func(r *Renderer) error { return r.Guilds(context.Background()) }, SlotGuildsTable, "Nenhum servidor encontrado"},
		{"whitelist users", func(r *Renderer) error { return r.Whitelist(context.Background()) }, SlotWhitelistUsers, "Nenhum usuário na whitelist"},
		{"whitelist roles", func(r *Renderer) error { return r.Whitelist(context.Background()) }, SlotWhitelistRoles, "Nenhum cargo na whitelist"},
		{"allowed roles", func(r *Renderer) error { return r.AllowedRoles(context.Background()) }, SlotAllowedRoles, "Nenhum cargo permitido definido"},
		{"events", func(r *Renderer) error { return r.Events(context.Background()) }, SlotRecentEvents, "Nenhum evento recente registrado"},
		{"logs", func(r *Renderer) error { return r.Logs(context.Background()) }, SlotLogEntries, "Nenhum log disponível"},
		{"warnings", func(r *Renderer) error { return r.Warnings(context.Background()) }, SlotWarningsTable, "Nenhum aviso registrado"},
		{"kicks", func(r *Renderer) error { return r.Kicks(context.Background()) }, SlotKicksTable, "Nenhuma expulsão registrada"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, n := newTestRenderer(&fakeSource{}, true)
			if err := tt.render(r); err != nil {
				t.Fatalf("render: %v", err)
			}
			got := slotHTML(r, tt.slot)
			if !strings.Contains(got, tt.want) {
				t.Errorf("slot %s = %q, want it to contain %q", tt.slot, got, tt.want)
			}
			if n.count() != 0 {
				t.Errorf("expected no notifications, got %d", n.count())
			}
		})
	}
}

func TestGuildsEmptySpansFiveColumns(t *testing.T) {
	r, _ := newTestRenderer(&fakeSource{guilds: func(context.Context) ([]backend.Guild, error) {
		return []backend.Guild{}, nil
	}}, true)
	if err := r.Guilds(context.Background()); err != nil {
		t.Fatalf("Guilds: %v", err)
	}
	got := slotHTML(r, SlotGuildsTable)
	if !strings.Contains(got, `colspan="5"`) || !strings.Contains(got, "Nenhum servidor encontrado") {
		t.Errorf("unexpected empty state: %q", got)
	}
}

func TestGuildsStrictSkipsMissingIDs(t *testing.T) {
	src := &fakeSource{guilds: func(context.Context) ([]backend.Guild, error) {
		return []backend.Guild{
			{ID: "80351110224678912", Name: "Alpha", MemberCount: 12, Icon: "a1b2c3"},
			{ID: "", Name: "Ghost"},
			{ID: "42", Name: "Tiny"},
		}, nil
	}}

	strict, _ := newTestRenderer(src, true)
	if err := strict.Guilds(context.Background()); err != nil {
		t.Fatalf("Guilds: %v", err)
	}
	got := slotHTML(strict, SlotGuildsTable)
	if !strings.Contains(got, "Alpha") || !strings.Contains(got, "Tiny") || strings.Contains(got, "Ghost") {
		t.Errorf("strict mode rendered unexpected rows: %q", got)
	}
	if !strings.Contains(got, "cdn.discordapp.com/icons/80351110224678912/a1b2c3") {
		t.Errorf("expected resolved icon URL, got %q", got)
	}
	if !strings.Contains(got, `data-id="80351110224678912"`) || !strings.Contains(got, `data-id="42"`) {
		t.Errorf("expected detail buttons, got %q", got)
	}

	validated, _ := newTestRenderer(src, true)
	validated.SetOptions(Options{Strict: true, ValidateIDs: true})
	if err := validated.Guilds(context.Background()); err != nil {
		t.Fatalf("Guilds: %v", err)
	}
	got = slotHTML(validated, SlotGuildsTable)
	if !strings.Contains(got, "Alpha") || strings.Contains(got, "Tiny") || strings.Contains(got, "Ghost") {
		t.Errorf("id validation rendered unexpected rows: %q", got)
	}

	lenient, _ := newTestRenderer(src, false)
	if err := lenient.Guilds(context.Background()); err != nil {
		t.Fatalf("Guilds: %v", err)
	}
	got = slotHTML(lenient, SlotGuildsTable)
	if !strings.Contains(got, "Ghost") || !strings.Contains(got, "Tiny") {
		t.Errorf("lenient mode should render every row: %q", got)
	}
}

func TestGuildsNoValidRows(t *testing.T) {
	r, _ := newTestRenderer(&fakeSource{guilds: func(context.Context) ([]backend.Guild, error) {
		return []backend.Guild{{Name: "Ghost"}}, nil
	}}, true)
	r.Guilds(context.Background())
	if got := slotHTML(r, SlotGuildsTable); !strings.Contains(got, "Nenhum servidor válido encontrado") {
		t.Errorf("unexpected slot: %q", got)
	}
}

func TestGuildNameIsEscaped(t *testing.T) {
	r, _ := newTestRenderer(&fakeSource{guilds: func(context.Context) ([]backend.Guild, error) {
		return []backend.Guild{{ID: "80351110224678912", Name: "<script>alert(1)</script>"}}, nil
	}}, true)
	r.Guilds(context.Background())
	got := slotHTML(r, SlotGuildsTable)
	if strings.Contains(got, "<script>") {
		t.Errorf("guild name was not escaped: %q", got)
	}
}

// backendRenderer wires a renderer to a real backend client served by h.
func backendRenderer(t *testing.T, h http.HandlerFunc) (*Renderer, *recordingNotifier) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	n := &recordingNotifier{}
	client := backend.NewClient(config.BackendConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, n, nil)
	return NewRenderer(NewDashboardDocument(), client, n, nil, nil, Options{Strict: true}), n
}

func TestFailingFetchNotifiesOnceWithRetry(t *testing.T) {
	tests := []struct {
		name   string
		render func(r *Renderer) error
		slots  []Slot
		panel  string
	}{
		{"guilds", func(r *Renderer) error { return r.Guilds(context.Background()) }, []Slot{SlotGuildsTable}, PanelGuilds},
		{"whitelist", func(r *Renderer) error { return r.Whitelist(context.Background()) }, []Slot{SlotWhitelistUsers, SlotWhitelistRoles}, PanelWhitelist},
		{"allowed roles", func(r *Renderer) error { return r.AllowedRoles(context.Background()) }, []Slot{SlotAllowedRoles}, PanelAllowedRoles},
		{"events", func(r *Renderer) error { return r.Events(context.Background()) }, []Slot{SlotRecentEvents}, PanelEvents},
		{"logs", func(r *Renderer) error { return r.Logs(context.Background()) }, []Slot{SlotLogEntries}, PanelLogs},
		{"warnings", func(r *Renderer) error { return r.Warnings(context.Background()) }, []Slot{SlotWarningsTable}, PanelWarnings},
		{"kicks", func(r *Renderer) error { return r.Kicks(context.Background()) }, []Slot{SlotKicksTable}, PanelKicks},
		{"status", func(r *Renderer) error { return r.Status(context.Background()) }, []Slot{SlotBotStatus}, PanelStatus},
		{"charts", func(r *Renderer) error { return r.UpdateCharts(context.Background()) }, []Slot{SlotChartStatus}, PanelCharts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, n := backendRenderer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"database locked"}`))
			})
			err := tt.render(r)
			if !backend.IsRequestError(err) {
				t.Fatalf("expected a RequestError, got %v", err)
			}
			if n.count() != 1 {
				t.Errorf("expected exactly 1 notification, got %d", n.count())
			}
			for _, slot := range tt.slots {
				got := slotHTML(r, slot)
				if !strings.Contains(got, `data-action="render"`) || !strings.Contains(got, `data-panel="`+tt.panel+`"`) {
					t.Errorf("slot %s has no retry control: %q", slot, got)
				}
			}
		})
	}
}

func TestShapeErrorNotifiesOnce(t *testing.T) {
	src := &fakeSource{guild: func(context.Context, string) (*backend.GuildDetail, error) {
		return &backend.GuildDetail{}, nil
	}}
	r, n := newTestRenderer(src, true)
	err := r.GuildDetail(context.Background(), "80351110224678912")
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", n.count())
	}
	if !strings.Contains(n.toasts[0].Message, "Dados do servidor inválidos") {
		t.Errorf("unexpected toast %q", n.toasts[0].Message)
	}
}

func TestGuildNotFoundShowsTroubleshooting(t *testing.T) {
	var calls atomic.Int32
	r, n := backendRenderer(t, func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		if req.URL.Path != "/api/guild/123" {
			t.Errorf("unexpected path %s", req.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Guild not found"}`))
	})
	r.SetOptions(OptionsFrom(config.Default().Render))

	if err := r.GuildDetail(context.Background(), "123"); err == nil {
		t.Fatal("expected an error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected one backend request, got %d", calls.Load())
	}
	body := slotHTML(r, SlotGuildModalBody)
	for _, want := range []string{
		"O bot ainda está no servidor",
		"O servidor está disponível",
		"Você tem permissões para visualizar",
		`data-panel="guilds"`,
		"Atualizar lista de servidores",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("modal body missing %q: %q", want, body)
		}
	}
	if strings.Count(body, "<li>") != 3 {
		t.Errorf("expected three bullets, got %q", body)
	}
	if n.count() != 1 {
		t.Errorf("expected 1 notification, got %d", n.count())
	}
}

func TestGuildDetailPlaceholders(t *testing.T) {
	src := &fakeSource{guild: func(_ context.Context, id string) (*backend.GuildDetail, error) {
		return &backend.GuildDetail{
			Guild:                backend.Guild{ID: backend.Scalar(id), Name: "Alpha"},
			NotificationSettings: &backend.NotificationSettings{LogChannel: "55"},
			TrackedRoles:         []backend.Role{{Name: "Mod", Color: "red;}"}},
		}, nil
	}}
	r, _ := newTestRenderer(src, true)
	if err := r.GuildDetail(context.Background(), "80351110224678912"); err != nil {
		t.Fatalf("GuildDetail: %v", err)
	}
	if got := slotHTML(r, SlotGuildModalTitle); got != "Alpha" {
		t.Errorf("title = %q", got)
	}
	body := slotHTML(r, SlotGuildModalBody)
	for _, want := range []string{"N/A", "Não configurado", "55", "#99aab5", "Criado em"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestGuildDetailValidateIDsRejectsShortID(t *testing.T) {
	called := false
	src := &fakeSource{guild: func(context.Context, string) (*backend.GuildDetail, error) {
		called = true
		return &backend.GuildDetail{}, nil
	}}
	r, n := newTestRenderer(src, true)
	r.SetOptions(Options{Strict: true, ValidateIDs: true})
	var se *ShapeError
	if err := r.GuildDetail(context.Background(), "123"); !errors.As(err, &se) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
	if called {
		t.Error("backend should not be called with an implausible id")
	}
	if n.count() != 1 {
		t.Errorf("expected 1 notification, got %d", n.count())
	}
}

func TestGuildDetailRequiresID(t *testing.T) {
	r, n := newTestRenderer(&fakeSource{}, false)
	err := r.GuildDetail(context.Background(), "")
	var se *ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
	if n.count() != 1 {
		t.Errorf("expected 1 notification, got %d", n.count())
	}
}

func TestQueueBadgeBanding(t *testing.T) {
	badges := QueueBadges(map[string]int{"z": 0, "a": 150, "m": 51, "b": 100, "c": 1})
	want := map[string]string{"a": "bg-danger", "b": "bg-warning", "m": "bg-warning", "c": "bg-primary", "z": "bg-secondary"}
	for _, b := range badges {
		if b.Class != want[b.Name] {
			t.Errorf("queue %s size %d: class %s, want %s", b.Name, b.Size, b.Class, want[b.Name])
		}
	}
	if badges[0].Name != "a" || badges[len(badges)-1].Name != "z" {
		t.Errorf("badges not sorted: %+v", badges)
	}
}

func TestStatusRender(t *testing.T) {
	secs := 90061.0
	src := &fakeSource{status: &backend.Status{
		BotStatus:     "Operacional",
		GuildCount:    3,
		UptimeSeconds: &secs,
		DBStatus:      "Operacional (SQLite)",
		QueueStatus:   map[string]int{"default": 150},
	}}
	r, _ := newTestRenderer(src, true)
	if err := r.Status(context.Background()); err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got := slotHTML(r, SlotQueueStatus); !strings.Contains(got, "bg-danger badge-queue") || !strings.Contains(got, "default: 150") {
		t.Errorf("queue slot = %q", got)
	}
	if got := slotHTML(r, SlotBotName); got != "Inactivity Bot" {
		t.Errorf("bot name = %q", got)
	}
	if got := slotHTML(r, SlotUptime); got != "1 day 1 hour" {
		t.Errorf("uptime = %q", got)
	}
	if got := slotHTML(r, SlotDBStatus); !strings.Contains(got, "bg-success") {
		t.Errorf("db status = %q", got)
	}
	if got := slotHTML(r, SlotBotStatus); !strings.Contains(got, "status-operational") {
		t.Errorf("bot status = %q", got)
	}

	src.status = &backend.Status{QueueStatus: map[string]int{"default": 0}}
	r.Status(context.Background())
	if got := slotHTML(r, SlotQueueStatus); !strings.Contains(got, "bg-secondary") {
		t.Errorf("queue slot = %q", got)
	}
}

func TestWhitelistRendersRemoveButtons(t *testing.T) {
	src := &fakeSource{whitelist: &backend.Whitelist{
		Users: []backend.Scalar{"80351110224678912"},
		Roles: []backend.Scalar{""},
	}}
	r, _ := newTestRenderer(src, false)
	r.Whitelist(context.Background())
	users := slotHTML(r, SlotWhitelistUsers)
	if !strings.Contains(users, `data-action="whitelist-remove"`) || !strings.Contains(users, `data-type="user"`) {
		t.Errorf("users slot = %q", users)
	}
	if roles := slotHTML(r, SlotWhitelistRoles); !strings.Contains(roles, "ID desconhecido") {
		t.Errorf("lenient mode should show a placeholder id: %q", roles)
	}
}

func TestLogsLineCount(t *testing.T) {
	var got []int
	src := &fakeSource{logs: func(lines int) (*backend.Logs, error) {
		got = append(got, lines)
		return &backend.Logs{Logs: []string{"INFO ok", "ERROR boom", "WARNING hmm"}}, nil
	}}
	r, _ := newTestRenderer(src, true)
	controls := busy.NewRegistry(ControlRefreshLogs)
	r.UseControls(controls)

	r.Logs(context.Background())
	r.Document().SetValue(FieldLogLines, "10")
	r.Logs(context.Background())
	r.Document().SetValue(FieldLogLines, "abc")
	r.Logs(context.Background())

	if len(got) != 3 || got[0] != 50 || got[1] != 10 || got[2] != 50 {
		t.Errorf("requested lines = %v, want [50 10 50]", got)
	}
	html := slotHTML(r, SlotLogEntries)
	for _, want := range []string{"log-info", "log-error", "log-warning"} {
		if !strings.Contains(html, want) {
			t.Errorf("logs missing %s: %q", want, html)
		}
	}
	if c, _ := controls.Get(ControlRefreshLogs); c.Busy {
		t.Error("refreshLogs should be released after the render")
	}
}

func TestHistoryWindow(t *testing.T) {
	src := &fakeSource{warnings: []backend.WarningRecord{
		{UserID: "80351110224678912", WarningType: "first", WarningDate: "2024-03-05T14:07:09Z"},
	}}
	r, _ := newTestRenderer(src, true)
	r.Warnings(context.Background())
	if len(src.historyReq) != 2 || src.historyReq[0] != 30 || src.historyReq[1] != 50 {
		t.Errorf("history request = %v", src.historyReq)
	}
	html := slotHTML(r, SlotWarningsTable)
	if !strings.Contains(html, "05/03/2024 14:07:09") || !strings.Contains(html, "80351110224678912") {
		t.Errorf("warnings = %q", html)
	}
}

func TestConfigFormFillsFields(t *testing.T) {
	src := &fakeSource{
		guilds: func(context.Context) ([]backend.Guild, error) {
			return []backend.Guild{{ID: "80351110224678912"}}, nil
		},
		guild: func(_ context.Context, id string) (*backend.GuildDetail, error) {
			return &backend.GuildDetail{
				Guild:                backend.Guild{ID: backend.Scalar(id)},
				Config:               &backend.GuildConfig{RequiredMinutes: 30, RequiredDays: 2, Timezone: "America/Sao_Paulo"},
				NotificationSettings: &backend.NotificationSettings{LogChannel: "99"},
			}, nil
		},
	}
	r, _ := newTestRenderer(src, true)
	if err := r.ConfigForm(context.Background()); err != nil {
		t.Fatalf("ConfigForm: %v", err)
	}
	doc := r.Document()
	for field, want := range map[string]string{
		FieldRequiredMinutes: "30",
		FieldRequiredDays:    "2",
		FieldKickAfterDays:   "",
		FieldLogChannel:      "99",
		FieldTimezone:        "America/Sao_Paulo",
	} {
		if got, _ := doc.Value(field); got != want {
			t.Errorf("%s = %q, want %q", field, got, want)
		}
	}
}

func TestConfigFormStrictRequiresConfig(t *testing.T) {
	src := &fakeSource{guilds: func(context.Context) ([]backend.Guild, error) {
		return []backend.Guild{{ID: "80351110224678912"}}, nil
	}}
	r, n := newTestRenderer(src, true)
	if err := r.ConfigForm(context.Background()); err == nil {
		t.Fatal("expected an error without a config block")
	}
	if n.count() != 1 {
		t.Errorf("expected 1 notification, got %d", n.count())
	}

	r, n = newTestRenderer(src, false)
	if err := r.ConfigForm(context.Background()); err != nil {
		t.Fatalf("lenient ConfigForm: %v", err)
	}
	if n.count() != 0 {
		t.Errorf("expected no notifications, got %d", n.count())
	}
}

func TestSupersededRenderIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	src := &fakeSource{guilds: func(ctx context.Context) ([]backend.Guild, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(started)
			<-release
			return []backend.Guild{{ID: "80351110224678912", Name: "Old"}}, nil
		}
		return []backend.Guild{{ID: "80351110224678912", Name: "New"}}, nil
	}}
	r, _ := newTestRenderer(src, true)

	done := make(chan error, 1)
	go func() { done <- r.Guilds(context.Background()) }()
	<-started

	if err := r.Guilds(context.Background()); err != nil {
		t.Fatalf("second render: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first render: %v", err)
	}

	got := slotHTML(r, SlotGuildsTable)
	if !strings.Contains(got, "New") || strings.Contains(got, "Old") {
		t.Errorf("stale render overwrote the newer one: %q", got)
	}
}

func TestCancelledRenderNotifiesNothing(t *testing.T) {
	src := &fakeSource{guilds: func(ctx context.Context) ([]backend.Guild, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r, n := newTestRenderer(src, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Guilds(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n.count() != 0 {
		t.Errorf("expected no notifications, got %d", n.count())
	}
}

func TestChartsInitAndUpdate(t *testing.T) {
	src := &fakeSource{stats: &backend.ActivityStats{TotalUsers: 10, ActiveUsers: 7, InactiveUsers: 2, WarnedUsers: 1}}
	r, _ := newTestRenderer(src, true)

	for i := 0; i < 3; i++ {
		r.InitCharts()
	}
	if live := r.Charts().Live(); live != 2 {
		t.Fatalf("expected 2 live charts, got %d", live)
	}
	if err := r.UpdateCharts(context.Background()); err != nil {
		t.Fatalf("UpdateCharts: %v", err)
	}
	usage := slotHTML(r, SlotUsageChart)
	if !strings.Contains(usage, "data-chart=") || !strings.Contains(usage, "7,2,1") {
		t.Errorf("usage chart = %q", usage)
	}
	if live := r.Charts().Live(); live != 2 {
		t.Errorf("expected 2 live charts after update, got %d", live)
	}
}

func TestRenderUnknownPanel(t *testing.T) {
	r, _ := newTestRenderer(&fakeSource{}, true)
	if err := r.Render(context.Background(), "nope", ""); !errors.Is(err, ErrUnknownPanel) {
		t.Errorf("expected ErrUnknownPanel, got %v", err)
	}
}
