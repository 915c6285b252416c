// Package api serves the dashboard shell page, the panel fragments, the
// websocket push channel and the action endpoints.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/guildpanel/guildpanel/internal/actions"
	"github.com/guildpanel/guildpanel/internal/app"
	"github.com/guildpanel/guildpanel/internal/backend"
	"github.com/guildpanel/guildpanel/internal/config"
	"github.com/guildpanel/guildpanel/internal/jsonx"
	"github.com/guildpanel/guildpanel/internal/notify"
	"github.com/guildpanel/guildpanel/internal/view"
)

const maxRequestBodySize = 1 << 20 // 1 MB

var errMalformedBody = errors.New("malformed JSON")

// Mutation endpoints share one token bucket.
const (
	mutationRate  = rate.Limit(5)
	mutationBurst = 10
)

// Server is the dashboard HTTP server.
type Server struct {
	app        *app.App
	hub        *Hub
	limiter    *rate.Limiter
	httpServer *http.Server
	startTime  time.Time
	listenCfg  config.ListenConfig
}

// NewServer creates the server and its websocket hub.
func NewServer(a *app.App, lc config.ListenConfig) *Server {
	return &Server{
		app:       a,
		hub:       NewHub(a.Document, a.Controls, a.Notifier, a.Metrics),
		limiter:   rate.NewLimiter(mutationRate, mutationBurst),
		startTime: time.Now(),
		listenCfg: lc,
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// authMiddleware returns a middleware that checks for a valid API key.
// Unauthenticated routes (shell page, health, metrics) are excluded. The
// websocket cannot send headers, so the key may also come as ?key=.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" || path == "/dashboard" || path == "/health" || path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := s.listenCfg.APIKey
		if apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.Query().Get("key")
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			key = strings.TrimPrefix(auth, "Bearer ")
		}
		if key != apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized: invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware is the last-resort error backstop of the HTTP surface.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("recovered from panic in handler", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
				s.app.Notifier.Notify("Ocorreu um erro inesperado", notify.Error)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler builds the routed, wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// Page state
	r.HandleFunc("/panels", s.listPanels).Methods("GET")
	r.HandleFunc("/panels/{slot}", s.getPanel).Methods("GET")
	r.HandleFunc("/toasts", s.listToasts).Methods("GET")
	r.HandleFunc("/controls", s.listControls).Methods("GET")
	r.Handle("/ws", s.hub).Methods("GET")

	// Mutations and backend-bound reads
	m := r.NewRoute().Subrouter()
	m.Use(s.rateLimit)
	m.HandleFunc("/panels/{panel}/render", s.renderPanel).Methods("POST")
	m.HandleFunc("/actions/{action}", s.runAction).Methods("POST")
	m.HandleFunc("/export/report.csv", s.exportReport).Methods("GET")

	// Server status
	r.HandleFunc("/polls", s.pollsHandler).Methods("GET")
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/config", s.configHandler).Methods("GET")
	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	if s.app.Metrics != nil && s.app.Metrics.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.app.Metrics.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.HandleFunc("/", s.dashboardHandler).Methods("GET")
	r.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	return s.securityHeaders(s.recoverMiddleware(s.authMiddleware(r)))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.listenCfg.Addr()
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// Actions wait for the backend; the websocket handler hijacks the
		// connection so this does not apply to it.
		WriteTimeout: 60 * time.Second,
	}

	if s.listenCfg.APIKey == "" {
		slog.Warn("API key not configured, dashboard endpoints are unauthenticated")
	}
	slog.Info("dashboard listening", "addr", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("dashboard server error", "err", err)
		}
	}()

	return nil
}

// Stop disconnects the websocket clients and gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// --- Page state handlers ---

func (s *Server) listPanels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.snapshot())
}

func (s *Server) getPanel(w http.ResponseWriter, r *http.Request) {
	slot := view.Slot(mux.Vars(r)["slot"])

	el, ok := s.app.Document.Get(slot)
	if !ok {
		writeError(w, http.StatusNotFound, "slot not found")
		return
	}
	writeJSON(w, http.StatusOK, el)
}

func (s *Server) listToasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Notifier.Active())
}

func (s *Server) listControls(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Controls.All())
}

// renderPanel re-renders one panel, e.g. from a retry button. The guild
// panel renders ?guild= or the guild currently open.
func (s *Server) renderPanel(w http.ResponseWriter, r *http.Request) {
	panel := mux.Vars(r)["panel"]
	guildID := r.URL.Query().Get("guild")
	if panel == view.PanelGuild && guildID == "" {
		guildID = s.app.CurrentGuild()
	}

	err := s.app.Guard(func() error {
		return s.app.Renderer.Render(r.Context(), panel, guildID)
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "rendered", "panel": panel})
	case errors.Is(err, view.ErrUnknownPanel):
		writeError(w, http.StatusNotFound, "panel not found")
	default:
		writeActionError(w, err)
	}
}

// --- Action handlers ---

// actionRequest is the body of every POST /actions/{action}. Fields carries
// the input values of the page at submit time.
type actionRequest struct {
	Confirm bool              `json:"confirm"`
	Input   string            `json:"input"`
	Fields  map[string]string `json:"fields"`
	Type    string            `json:"type"`
	ID      string            `json:"id"`
	Command string            `json:"command"`
	Params  map[string]any    `json:"params"`
	Tab     string            `json:"tab"`
	Lines   string            `json:"lines"`
}

type actionFunc func(ctx context.Context, req actionRequest) error

func (s *Server) actions() map[string]actionFunc {
	h := s.app.Actions
	return map[string]actionFunc{
		actions.ActionSaveConfig: func(ctx context.Context, req actionRequest) error {
			return h.SaveConfig(ctx, req.Fields)
		},
		actions.ActionBackup: func(ctx context.Context, req actionRequest) error {
			return h.Backup(ctx, actions.Confirmed(req.Confirm))
		},
		actions.ActionRestart: func(ctx context.Context, req actionRequest) error {
			return h.Restart(ctx, actions.Confirmed(req.Confirm))
		},
		actions.ActionWhitelistAdd: func(ctx context.Context, req actionRequest) error {
			return h.AddWhitelist(ctx, req.Type)
		},
		actions.ActionWhitelistRemove: func(ctx context.Context, req actionRequest) error {
			return h.RemoveWhitelist(ctx, req.Type, req.ID)
		},
		actions.ActionAllowedRoleAdd: func(ctx context.Context, req actionRequest) error {
			return h.AddAllowedRole(ctx)
		},
		actions.ActionAllowedRoleRemove: func(ctx context.Context, req actionRequest) error {
			return h.RemoveAllowedRole(ctx, req.ID)
		},
		actions.ActionRunCommand: func(ctx context.Context, req actionRequest) error {
			return h.RunCommand(ctx, actions.Confirmed(req.Confirm), req.Command, req.Params)
		},
		actions.ActionSyncCommands: func(ctx context.Context, req actionRequest) error {
			return h.SyncCommands(ctx, actions.Confirmed(req.Confirm))
		},
		actions.ActionCleanupData: func(ctx context.Context, req actionRequest) error {
			return h.CleanupData(ctx, actions.Confirmed(req.Confirm), req.Input)
		},
		actions.ActionForceCheck: func(ctx context.Context, req actionRequest) error {
			return h.ForceCheck(ctx, actions.Confirmed(req.Confirm))
		},
		actions.ActionOpenGuild: func(ctx context.Context, req actionRequest) error {
			return h.OpenGuild(ctx, req.ID)
		},
		actions.ActionRefreshGuild: func(ctx context.Context, req actionRequest) error {
			return h.RefreshGuild(ctx)
		},
		actions.ActionRefreshLogs: func(ctx context.Context, req actionRequest) error {
			return h.RefreshLogs(ctx, req.Lines)
		},
		actions.ActionLoadHistory: func(ctx context.Context, req actionRequest) error {
			return h.LoadHistory(ctx, req.Tab)
		},
	}
}

func (s *Server) runAction(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["action"]
	fn, ok := s.actions()[name]
	if !ok {
		writeError(w, http.StatusNotFound, "action not found")
		return
	}

	var req actionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	// Save config takes its fields as the form values; every other action
	// reads the inputs from the document.
	if name != actions.ActionSaveConfig {
		for field, v := range req.Fields {
			if err := s.app.Document.SetValue(field, v); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown field %q", field))
				return
			}
		}
	}

	err := s.app.Guard(func() error { return fn(r.Context(), req) })
	if err != nil {
		writeActionError(w, err)
		return
	}
	slog.Debug("action completed", "action", name)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "action": name})
}

// exportReport streams the warnings and kicks history as a CSV download.
// The report is buffered so a backend failure still yields a clean error.
func (s *Server) exportReport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := s.app.Guard(func() error {
		return s.app.Actions.ExportReport(r.Context(), &buf)
	})
	if err != nil {
		writeActionError(w, err)
		return
	}

	filename := fmt.Sprintf("relatorio-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, &buf)
}

// writeActionError maps an action outcome to a status code. The user was
// already notified by the handler, the body only drives the shell page.
func writeActionError(w http.ResponseWriter, err error) {
	var ce *actions.ConfirmationError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":        err.Error(),
			"confirmation": ce,
		})
	case errors.Is(err, actions.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, actions.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case backend.IsRequestError(err):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// --- Status handlers ---

func (s *Server) pollsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Scheduler.Snapshot())
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	statuses := s.app.Health.GetAllStatuses()
	allHealthy := s.app.Health.OverallHealthy()

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"status": boolToStatus(allHealthy),
		"polls":  statuses,
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	cfg := s.app.Config()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds":    int(time.Since(s.startTime).Seconds()),
		"go_version":        runtime.Version(),
		"goroutines":        runtime.NumGoroutine(),
		"memory_mb":         float64(mem.Alloc) / 1024 / 1024,
		"websocket_clients": s.hub.Clients(),
		"render_mode":       cfg.Render.Mode,
		"current_guild":     s.app.CurrentGuild(),
		"polls":             s.app.Scheduler.Len(),
	})
}

func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	cfg := s.app.Config().Redacted()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listen": map[string]interface{}{
			"bind": cfg.Listen.Bind,
			"port": cfg.Listen.Port,
		},
		"backend": map[string]interface{}{
			"base_url": cfg.Backend.BaseURL,
			"timeout":  cfg.Backend.Timeout.String(),
			"token":    cfg.Backend.Token,
		},
		"polling": map[string]string{
			"status": cfg.Polling.Status.String(),
			"charts": cfg.Polling.Charts.String(),
			"events": cfg.Polling.Events.String(),
			"logs":   cfg.Polling.Logs.String(),
		},
		"render": map[string]interface{}{
			"mode":          cfg.Render.Mode,
			"log_lines":     cfg.Render.LogLines,
			"history_days":  cfg.Render.HistoryDays,
			"history_limit": cfg.Render.HistoryLimit,
		},
	})
}

// securityHeaders adds security-related HTTP headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if !jsonx.Valid(data) {
		return errMalformedBody
	}
	return jsonx.Unmarshal(data, v)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := jsonx.Marshal(data)
	if err != nil {
		slog.Error("encoding response", "err", err)
		http.Error(w, `{"error":"encoding response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
