// Package backend is the HTTP client for the bot's REST API.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/guildpanel/guildpanel/internal/config"
	"github.com/guildpanel/guildpanel/internal/jsonx"
	"github.com/guildpanel/guildpanel/internal/metrics"
	"github.com/guildpanel/guildpanel/internal/notify"
)

const maxResponseBodySize = 4 << 20 // 4 MB

// RequestError describes a failed backend call. Status is 0 for transport
// failures.
type RequestError struct {
	Method   string
	Endpoint string
	Status   int
	Message  string
	Err      error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsRequestError reports whether err came out of a backend call. Such errors
// have already been surfaced to the user.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// StatusCode returns the HTTP status of a RequestError, or 0.
func StatusCode(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// Client calls the backend. Every call is fire-once: no retry, no backoff.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	notifier notify.Notifier
	metrics  *metrics.Collector
}

// NewClient creates a backend client. A nil notifier disables notifications.
func NewClient(cfg config.BackendConfig, n notify.Notifier, m *metrics.Collector) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		http:     &http.Client{Timeout: timeout},
		notifier: n,
		metrics:  m,
	}
}

// Call issues one request and decodes a JSON answer into out (when non-nil).
// A failed call returns a *RequestError and produces exactly one
// notification. Calls cancelled through ctx return the context error and
// notify nothing.
func (c *Client) Call(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := jsonx.Marshal(body)
		if err != nil {
			return c.fail(&RequestError{Method: method, Endpoint: endpoint, Message: "invalid request body: " + err.Error(), Err: err})
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return c.fail(&RequestError{Method: method, Endpoint: endpoint, Message: err.Error(), Err: err})
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.observe(endpoint, 0, start)
		return c.fail(&RequestError{Method: method, Endpoint: endpoint, Message: err.Error(), Err: err})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	c.observe(endpoint, resp.StatusCode, start)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return c.fail(&RequestError{Method: method, Endpoint: endpoint, Status: resp.StatusCode, Message: "reading response: " + err.Error(), Err: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(&RequestError{
			Method:   method,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  errorMessage(resp.StatusCode, data),
		})
	}

	if out == nil {
		return nil
	}
	if err := jsonx.Unmarshal(data, out); err != nil {
		return c.fail(&RequestError{
			Method:   method,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  "resposta inválida do servidor: " + err.Error(),
			Err:      err,
		})
	}
	return nil
}

// errorMessage extracts a human readable message from an error body, or
// synthesizes one from the status code.
func errorMessage(status int, data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if len(data) > 0 && jsonx.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
		return fmt.Sprintf("Erro na requisição: %d", status)
	}
	return fmt.Sprintf("HTTP error! status: %d", status)
}

func (c *Client) fail(re *RequestError) error {
	slog.Warn("backend request failed",
		"method", re.Method, "endpoint", re.Endpoint, "status", re.Status, "err", re.Message)
	if c.notifier != nil {
		c.notifier.Notify("Erro ao comunicar com o servidor: "+re.Message, notify.Error)
	}
	return re
}

func (c *Client) observe(endpoint string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.BackendRequest(routeLabel(endpoint), status, time.Since(start))
	}
}

// routeLabel maps an endpoint to a bounded metric label.
func routeLabel(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	if strings.HasPrefix(endpoint, "/api/guild/") {
		return "/api/guild/{id}"
	}
	return endpoint
}

// --- Endpoints ---

// Guilds fetches the guild summaries.
func (c *Client) Guilds(ctx context.Context) ([]Guild, error) {
	var out []Guild
	if err := c.Call(ctx, http.MethodGet, "/api/guilds", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Guild fetches one guild's detail.
func (c *Client) Guild(ctx context.Context, id string) (*GuildDetail, error) {
	out := &GuildDetail{}
	if err := c.Call(ctx, http.MethodGet, "/api/guild/"+url.PathEscape(id), nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Whitelist fetches the whitelisted users and roles.
func (c *Client) Whitelist(ctx context.Context) (*Whitelist, error) {
	out := &Whitelist{}
	if err := c.Call(ctx, http.MethodGet, "/api/whitelist", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateWhitelist adds or removes a user or role id.
func (c *Client) UpdateWhitelist(ctx context.Context, action, targetType, id string) error {
	body := map[string]string{"action": action, "type": targetType, "id": id}
	return c.Call(ctx, http.MethodPost, "/api/whitelist", body, nil)
}

// AllowedRoles fetches the roles eligible for tracking.
func (c *Client) AllowedRoles(ctx context.Context) ([]AllowedRole, error) {
	var out []AllowedRole
	if err := c.Call(ctx, http.MethodGet, "/api/allowed_roles", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateAllowedRoles adds or removes an allowed role.
func (c *Client) UpdateAllowedRoles(ctx context.Context, action, id string) error {
	body := map[string]string{"action": action, "id": id}
	return c.Call(ctx, http.MethodPost, "/api/allowed_roles", body, nil)
}

// Events fetches the recent rate-limiter events.
func (c *Client) Events(ctx context.Context) (*Events, error) {
	out := &Events{}
	if err := c.Call(ctx, http.MethodGet, "/api/events", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Logs fetches the last n log lines.
func (c *Client) Logs(ctx context.Context, lines int) (*Logs, error) {
	out := &Logs{}
	if err := c.Call(ctx, http.MethodGet, "/api/logs?lines="+strconv.Itoa(lines), nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ActivityStats fetches the global activity counters.
func (c *Client) ActivityStats(ctx context.Context) (*ActivityStats, error) {
	out := &ActivityStats{}
	if err := c.Call(ctx, http.MethodGet, "/api/activity_stats", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status fetches the bot's system status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	out := &Status{}
	if err := c.Call(ctx, http.MethodGet, "/api/status", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateConfig saves the activity policy.
func (c *Client) UpdateConfig(ctx context.Context, u ConfigUpdate) error {
	return c.Call(ctx, http.MethodPost, "/api/update_config", u, nil)
}

// Backup asks the bot to back up its database.
func (c *Client) Backup(ctx context.Context) (*Result, error) {
	out := &Result{}
	if err := c.Call(ctx, http.MethodPost, "/api/backup", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Restart asks the bot to restart.
func (c *Client) Restart(ctx context.Context) (*Result, error) {
	out := &Result{}
	if err := c.Call(ctx, http.MethodPost, "/api/restart", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// WarningsHistory fetches warnings issued in the last days, at most limit rows.
func (c *Client) WarningsHistory(ctx context.Context, days, limit int) ([]WarningRecord, error) {
	var out []WarningRecord
	endpoint := fmt.Sprintf("/api/warnings_history?days=%d&limit=%d", days, limit)
	if err := c.Call(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// KicksHistory fetches kicks of the last days, at most limit rows.
func (c *Client) KicksHistory(ctx context.Context, days, limit int) ([]KickRecord, error) {
	var out []KickRecord
	endpoint := fmt.Sprintf("/api/kicks_history?days=%d&limit=%d", days, limit)
	if err := c.Call(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunCommand runs a named bot command. Params are merged into the body
// next to "command".
func (c *Client) RunCommand(ctx context.Context, command string, params map[string]any) (*Result, error) {
	body := make(map[string]any, len(params)+1)
	for k, v := range params {
		body[k] = v
	}
	body["command"] = command

	out := &Result{}
	if err := c.Call(ctx, http.MethodPost, "/api/run_command", body, out); err != nil {
		return nil, err
	}
	return out, nil
}
