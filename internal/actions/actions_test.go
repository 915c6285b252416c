package actions

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/guildpanel/guildpanel/internal/backend"
	"github.com/guildpanel/guildpanel/internal/busy"
	"github.com/guildpanel/guildpanel/internal/config"
	"github.com/guildpanel/guildpanel/internal/notify"
	"github.com/guildpanel/guildpanel/internal/view"
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

func (r *recordingNotifier) all() []notify.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Toast(nil), r.toasts...)
}

type call struct {
	name string
	args []any
}

type fakeBackend struct {
	mu      sync.Mutex
	calls   []call
	err     error
	result  *backend.Result
	blockCh chan struct{}
}

func (f *fakeBackend) record(name string, args ...any) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{name, args})
	block := f.blockCh
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.err
}

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeBackend) UpdateConfig(_ context.Context, u backend.ConfigUpdate) error {
	return f.record("UpdateConfig", u)
}

func (f *fakeBackend) Backup(context.Context) (*backend.Result, error) {
	return f.result, f.record("Backup")
}

func (f *fakeBackend) Restart(context.Context) (*backend.Result, error) {
	return f.result, f.record("Restart")
}

func (f *fakeBackend) UpdateWhitelist(_ context.Context, action, targetType, id string) error {
	return f.record("UpdateWhitelist", action, targetType, id)
}

func (f *fakeBackend) UpdateAllowedRoles(_ context.Context, action, id string) error {
	return f.record("UpdateAllowedRoles", action, id)
}

func (f *fakeBackend) RunCommand(_ context.Context, command string, params map[string]any) (*backend.Result, error) {
	return f.result, f.record("RunCommand", command, params)
}

func (f *fakeBackend) WarningsHistory(_ context.Context, days, limit int) ([]backend.WarningRecord, error) {
	return []backend.WarningRecord{{UserID: "80351110224678912", UserName: "ana", WarningType: "first", WarningDate: "2024-03-05"}}, f.record("WarningsHistory", days, limit)
}

func (f *fakeBackend) KicksHistory(_ context.Context, days, limit int) ([]backend.KickRecord, error) {
	return []backend.KickRecord{{UserID: "80351110224678913", UserName: "bia", Reason: "inativo", KickDate: "2024-03-06"}}, f.record("KicksHistory", days, limit)
}

type fakePanels struct {
	mu      sync.Mutex
	renders []string
}

func (f *fakePanels) Render(_ context.Context, panel, guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders = append(f.renders, panel+":"+guildID)
	return nil
}

func (f *fakePanels) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.renders...)
}

type guildState struct{ id string }

func (g *guildState) CurrentGuild() string      { return g.id }
func (g *guildState) SetCurrentGuild(id string) { g.id = id }

type fixture struct {
	h        *Handler
	api      *fakeBackend
	panels   *fakePanels
	doc      *view.Document
	controls *busy.Registry
	notes    *recordingNotifier
	state    *guildState
}

func newFixture(strict bool) *fixture {
	return newFixtureWith(view.Options{Strict: strict, HistoryDays: 30, HistoryLimit: 50})
}

func newFixtureWith(opts view.Options) *fixture {
	f := &fixture{
		api:      &fakeBackend{result: &backend.Result{Status: "success"}},
		panels:   &fakePanels{},
		doc:      view.NewDashboardDocument(),
		controls: busy.NewRegistry(view.LayoutControls...),
		notes:    &recordingNotifier{},
		state:    &guildState{},
	}
	f.h = New(Deps{
		Backend:  f.api,
		Panels:   f.panels,
		Document: f.doc,
		Controls: f.controls,
		Notifier: f.notes,
		State:    f.state,
		Options:  func() view.Options { return opts },
	})
	return f
}

func (f *fixture) assertIdle(t *testing.T) {
	t.Helper()
	for _, c := range f.controls.All() {
		if c.Busy || c.Disabled || !c.IconVisible {
			t.Errorf("control %s left busy: %+v", c.ID, c)
		}
	}
}

func TestAddWhitelistEmptyInputSkipsBackend(t *testing.T) {
	f := newFixture(true)
	err := f.h.AddWhitelist(context.Background(), backend.TargetUser)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if f.api.count() != 0 {
		t.Errorf("expected no backend call, got %d", f.api.count())
	}
	toasts := f.notes.all()
	if len(toasts) != 1 || toasts[0].Severity != notify.Warning || toasts[0].Message != msgInvalidUser {
		t.Errorf("unexpected toasts: %+v", toasts)
	}
	f.assertIdle(t)
}

func TestAddWhitelistSuccess(t *testing.T) {
	f := newFixture(false)
	f.doc.SetValue(view.FieldWhitelistUser, "42")

	if err := f.h.AddWhitelist(context.Background(), backend.TargetUser); err != nil {
		t.Fatalf("AddWhitelist: %v", err)
	}
	c := f.api.last()
	if c.name != "UpdateWhitelist" || c.args[0] != "add" || c.args[1] != "user" || c.args[2] != "42" {
		t.Errorf("unexpected call: %+v", c)
	}
	if got := f.panels.list(); len(got) != 1 || got[0] != "whitelist:" {
		t.Errorf("expected whitelist re-render, got %v", got)
	}
	if v, _ := f.doc.Value(view.FieldWhitelistUser); v != "" {
		t.Errorf("input not cleared: %q", v)
	}
	toasts := f.notes.all()
	if len(toasts) != 1 || toasts[0].Severity != notify.Success || !strings.Contains(toasts[0].Message, "(add user)") {
		t.Errorf("unexpected toasts: %+v", toasts)
	}
	f.assertIdle(t)
}

func TestAddWhitelistDefaultConfigAcceptsShortID(t *testing.T) {
	f := newFixtureWith(view.OptionsFrom(config.Default().Render))
	f.doc.SetValue(view.FieldWhitelistUser, "42")

	if err := f.h.AddWhitelist(context.Background(), backend.TargetUser); err != nil {
		t.Fatalf("AddWhitelist: %v", err)
	}
	if f.api.count() != 1 {
		t.Fatalf("expected one backend call, got %d", f.api.count())
	}
	if c := f.api.last(); c.name != "UpdateWhitelist" || c.args[2] != "42" {
		t.Errorf("unexpected call: %+v", c)
	}
	if v, _ := f.doc.Value(view.FieldWhitelistUser); v != "" {
		t.Errorf("input not cleared: %q", v)
	}
	if got := f.panels.list(); len(got) != 1 || got[0] != "whitelist:" {
		t.Errorf("expected whitelist re-render, got %v", got)
	}
}

func TestDefaultConfigAcceptsShortIDs(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		field string
		run   func(h *Handler) error
	}{
		{"remove whitelist", "", func(h *Handler) error { return h.RemoveWhitelist(ctx, backend.TargetRole, "42") }},
		{"add allowed role", view.FieldAllowedRole, func(h *Handler) error { return h.AddAllowedRole(ctx) }},
		{"remove allowed role", "", func(h *Handler) error { return h.RemoveAllowedRole(ctx, "42") }},
		{"force check", view.FieldForceCheckUser, func(h *Handler) error { return h.ForceCheck(ctx, Confirmed(true)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixtureWith(view.OptionsFrom(config.Default().Render))
			if tt.field != "" {
				f.doc.SetValue(tt.field, "42")
			}
			if err := tt.run(f.h); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.api.count() != 1 {
				t.Errorf("expected one backend call, got %d", f.api.count())
			}
		})
	}
}

func TestAddWhitelistValidateIDsRejectsBadID(t *testing.T) {
	f := newFixtureWith(view.Options{Strict: true, ValidateIDs: true})
	f.doc.SetValue(view.FieldWhitelistRole, "42")
	if err := f.h.AddWhitelist(context.Background(), backend.TargetRole); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if f.api.count() != 0 {
		t.Error("id validation should not call the backend with an implausible id")
	}
}

func TestBackendFailureReleasesBusy(t *testing.T) {
	f := newFixture(false)
	f.api.err = errors.New("boom")
	f.doc.SetValue(view.FieldAllowedRole, "7")

	if err := f.h.AddAllowedRole(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
	f.assertIdle(t)
	toasts := f.notes.all()
	if len(toasts) != 1 || toasts[0].Severity != notify.Error {
		t.Fatalf("expected one error toast, got %+v", toasts)
	}
	if v, _ := f.doc.Value(view.FieldAllowedRole); v != "7" {
		t.Errorf("input should be kept on failure, got %q", v)
	}
	if len(f.panels.list()) != 0 {
		t.Error("failed action should not re-render")
	}
}

func TestRequestErrorIsNotNotifiedTwice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid id"}`))
	}))
	defer srv.Close()

	notes := &recordingNotifier{}
	client := backend.NewClient(config.BackendConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, notes, nil)
	doc := view.NewDashboardDocument()
	h := New(Deps{Backend: client, Panels: &fakePanels{}, Document: doc, Notifier: notes})

	if err := h.RemoveAllowedRole(context.Background(), "80351110224678912"); !backend.IsRequestError(err) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if got := notes.all(); len(got) != 1 {
		t.Errorf("expected exactly 1 notification, got %+v", got)
	}
}

func TestConfirmationRequired(t *testing.T) {
	tests := []struct {
		name string
		run  func(h *Handler, c Confirmer) error
	}{
		{"backup", func(h *Handler, c Confirmer) error { return h.Backup(context.Background(), c) }},
		{"restart", func(h *Handler, c Confirmer) error { return h.Restart(context.Background(), c) }},
		{"sync", func(h *Handler, c Confirmer) error { return h.SyncCommands(context.Background(), c) }},
		{"cleanup", func(h *Handler, c Confirmer) error { return h.CleanupData(context.Background(), c, "") }},
		{"command", func(h *Handler, c Confirmer) error {
			return h.RunCommand(context.Background(), c, "status", nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(true)
			err := tt.run(f.h, Confirmed(false))
			var ce *ConfirmationError
			if !errors.As(err, &ce) || !errors.Is(err, ErrNotConfirmed) {
				t.Fatalf("expected ConfirmationError, got %v", err)
			}
			if ce.Prompt == "" {
				t.Error("confirmation has no prompt")
			}
			if f.api.count() != 0 {
				t.Error("unconfirmed action called the backend")
			}
			if len(f.notes.all()) != 0 {
				t.Error("unconfirmed action should not notify")
			}

			if err := tt.run(f.h, Confirmed(true)); err != nil {
				t.Fatalf("confirmed action: %v", err)
			}
			if f.api.count() != 1 {
				t.Errorf("expected exactly one backend call, got %d", f.api.count())
			}
			f.assertIdle(t)
		})
	}
}

func TestCleanupDataDays(t *testing.T) {
	for in, want := range map[string]int{"": 60, "abc": 60, "-3": 60, "14": 14} {
		f := newFixture(true)
		if err := f.h.CleanupData(context.Background(), Confirmed(true), in); err != nil {
			t.Fatalf("CleanupData(%q): %v", in, err)
		}
		params := f.api.last().args[1].(map[string]any)
		if params["days"] != want {
			t.Errorf("CleanupData(%q) days = %v, want %d", in, params["days"], want)
		}
	}

	f := newFixture(true)
	err := f.h.CleanupData(context.Background(), nil, "")
	var ce *ConfirmationError
	if !errors.As(err, &ce) || ce.Input == nil || ce.Input.Default != "60" {
		t.Errorf("expected a days prompt defaulting to 60, got %+v", err)
	}
}

func TestForceCheck(t *testing.T) {
	f := newFixture(true)
	if err := f.h.ForceCheck(context.Background(), Confirmed(true)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty member, got %v", err)
	}

	f.doc.SetValue(view.FieldForceCheckUser, "80351110224678912")
	err := f.h.ForceCheck(context.Background(), Confirmed(false))
	var ce *ConfirmationError
	if !errors.As(err, &ce) || !strings.Contains(ce.Prompt, "80351110224678912") {
		t.Fatalf("expected prompt naming the member, got %v", err)
	}

	if err := f.h.ForceCheck(context.Background(), Confirmed(true)); err != nil {
		t.Fatalf("ForceCheck: %v", err)
	}
	c := f.api.last()
	if c.args[0] != "force_check" || c.args[1].(map[string]any)["member_id"] != "80351110224678912" {
		t.Errorf("unexpected call %+v", c)
	}
}

func TestRunCommandNonSuccessStatus(t *testing.T) {
	f := newFixture(true)
	f.api.result = &backend.Result{Status: "error", Message: "unknown command"}
	err := f.h.RunCommand(context.Background(), Confirmed(true), "status", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	toasts := f.notes.all()
	if len(toasts) != 1 || toasts[0].Severity != notify.Error || !strings.Contains(toasts[0].Message, "unknown command") {
		t.Errorf("unexpected toasts: %+v", toasts)
	}
}

func TestRunCommandEmpty(t *testing.T) {
	f := newFixture(true)
	if err := f.h.RunCommand(context.Background(), Confirmed(true), " ", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if f.api.count() != 0 {
		t.Error("empty command called the backend")
	}
}

func TestRestartFollowUp(t *testing.T) {
	f := newFixture(true)
	f.h.RestartNotice = 20 * time.Millisecond
	f.api.result = &backend.Result{Status: "success", Message: "Reiniciando"}

	if err := f.h.Restart(context.Background(), Confirmed(true)); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(f.notes.all()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	toasts := f.notes.all()
	if len(toasts) != 2 {
		t.Fatalf("expected 2 toasts, got %+v", toasts)
	}
	if toasts[0].Message != "Reiniciando" || toasts[1].Message != "O bot está reiniciando..." || toasts[1].Severity != notify.Info {
		t.Errorf("unexpected toasts: %+v", toasts)
	}
}

func TestCloseCancelsFollowUp(t *testing.T) {
	f := newFixture(true)
	f.h.RestartNotice = 30 * time.Millisecond
	f.h.Restart(context.Background(), Confirmed(true))
	f.h.Close()
	time.Sleep(80 * time.Millisecond)
	if got := len(f.notes.all()); got != 1 {
		t.Errorf("expected only the immediate toast, got %d", got)
	}
}

func TestBusyControlRejectsSecondSubmit(t *testing.T) {
	f := newFixture(true)
	f.api.blockCh = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.h.Backup(context.Background(), Confirmed(true)) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.api.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := f.h.Backup(context.Background(), Confirmed(true)); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	close(f.api.blockCh)
	if err := <-done; err != nil {
		t.Fatalf("Backup: %v", err)
	}
	f.assertIdle(t)
}

func TestSaveConfig(t *testing.T) {
	f := newFixture(true)
	err := f.h.SaveConfig(context.Background(), map[string]string{
		view.FieldRequiredMinutes: " 30 ",
		view.FieldLogChannel:      "80351110224678912",
		view.FieldTimezone:        "America/Sao_Paulo",
	})
	if err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	u := f.api.last().args[0].(backend.ConfigUpdate)
	if u.RequiredMinutes != "30" || u.LogChannel != "80351110224678912" || u.Timezone != "America/Sao_Paulo" {
		t.Errorf("unexpected update %+v", u)
	}
	if got := f.panels.list(); len(got) != 1 || got[0] != "config:" {
		t.Errorf("expected config re-render, got %v", got)
	}

	if err := f.h.SaveConfig(context.Background(), map[string]string{view.FieldRequiredDays: "-1"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if f.api.count() != 1 {
		t.Error("invalid config reached the backend")
	}
	f.assertIdle(t)
}

func TestGuildNavigation(t *testing.T) {
	f := newFixture(true)
	if err := f.h.RefreshGuild(context.Background()); err != nil {
		t.Fatalf("RefreshGuild without guild: %v", err)
	}
	if len(f.panels.list()) != 0 {
		t.Error("refresh without a current guild should do nothing")
	}

	f.h.OpenGuild(context.Background(), "123")
	if f.state.id != "123" {
		t.Errorf("current guild = %q", f.state.id)
	}
	f.h.RefreshGuild(context.Background())
	if got := f.panels.list(); len(got) != 2 || got[1] != "guild:123" {
		t.Errorf("renders = %v", got)
	}
}

func TestRefreshLogsStoresLineCount(t *testing.T) {
	f := newFixture(true)
	f.h.RefreshLogs(context.Background(), "25")
	if v, _ := f.doc.Value(view.FieldLogLines); v != "25" {
		t.Errorf("line count = %q", v)
	}
	if got := f.panels.list(); len(got) != 1 || got[0] != "logs:" {
		t.Errorf("renders = %v", got)
	}
}

func TestLoadHistory(t *testing.T) {
	f := newFixture(true)
	if err := f.h.LoadHistory(context.Background(), "kicks"); err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if err := f.h.LoadHistory(context.Background(), "bogus"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExportReport(t *testing.T) {
	f := newFixture(true)
	var buf bytes.Buffer
	if err := f.h.ExportReport(context.Background(), &buf); err != nil {
		t.Fatalf("ExportReport: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[1][0] != "aviso" || rows[2][0] != "expulsao" || rows[2][3] != "inativo" {
		t.Errorf("unexpected rows: %v", rows)
	}
	if c := f.api.calls[0]; c.args[0] != 30 || c.args[1] != 50 {
		t.Errorf("history window = %v", c.args)
	}
}
