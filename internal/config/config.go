package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// Render modes.
const (
	ModeStrict  = "strict"
	ModeLenient = "lenient"
)

// Config is the top-level configuration for guildpanel.
type Config struct {
	Listen  ListenConfig  `yaml:"listen" toml:"listen"`
	Backend BackendConfig `yaml:"backend" toml:"backend"`
	Polling PollingConfig `yaml:"polling" toml:"polling"`
	Render  RenderConfig  `yaml:"render" toml:"render"`
	Notify  NotifyConfig  `yaml:"notify" toml:"notify"`
}

// ListenConfig defines where the dashboard HTTP server listens.
type ListenConfig struct {
	Bind   string `yaml:"bind" toml:"bind"`
	Port   int    `yaml:"port" toml:"port"`
	APIKey string `yaml:"api_key" toml:"api_key"`
}

// BackendConfig points at the bot's REST API.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
	Token   string        `yaml:"token" toml:"token"`
}

// PollingConfig holds the refresh period of each polled panel.
type PollingConfig struct {
	Status time.Duration `yaml:"status" toml:"status"`
	Charts time.Duration `yaml:"charts" toml:"charts"`
	Events time.Duration `yaml:"events" toml:"events"`
	Logs   time.Duration `yaml:"logs" toml:"logs"`
}

// RenderConfig controls how payloads are turned into fragments.
type RenderConfig struct {
	Mode         string `yaml:"mode" toml:"mode"`
	LogLines     int    `yaml:"log_lines" toml:"log_lines"`
	HistoryDays  int    `yaml:"history_days" toml:"history_days"`
	HistoryLimit int    `yaml:"history_limit" toml:"history_limit"`

	// ValidateIDs additionally rejects ids that are not plausible Discord
	// snowflakes. Off by default; strict mode alone only requires ids to be
	// present.
	ValidateIDs bool `yaml:"validate_ids" toml:"validate_ids"`
}

// Strict reports whether payload shapes are validated and ids required before rendering.
func (rc RenderConfig) Strict() bool {
	return rc.Mode != ModeLenient
}

// NotifyConfig defines the toast display window.
type NotifyConfig struct {
	Display time.Duration `yaml:"display" toml:"display"`
	Fade    time.Duration `yaml:"fade" toml:"fade"`
}

// Redacted returns a copy of the Config with secrets masked.
func (c Config) Redacted() Config {
	out := c
	if out.Listen.APIKey != "" {
		out.Listen.APIKey = "***REDACTED***"
	}
	if out.Backend.Token != "" {
		out.Backend.Token = "***REDACTED***"
	}
	return out
}

// Addr returns the bind address of the HTTP server.
func (lc ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", lc.Bind, lc.Port)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML (or .toml) config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.Bind == "" {
		cfg.Listen.Bind = "127.0.0.1"
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 8090
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = "http://127.0.0.1:8080"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 10 * time.Second
	}
	if cfg.Polling.Status == 0 {
		cfg.Polling.Status = 10 * time.Second
	}
	if cfg.Polling.Charts == 0 {
		cfg.Polling.Charts = 30 * time.Second
	}
	if cfg.Polling.Events == 0 {
		cfg.Polling.Events = 15 * time.Second
	}
	if cfg.Polling.Logs == 0 {
		cfg.Polling.Logs = 20 * time.Second
	}
	if cfg.Render.Mode == "" {
		cfg.Render.Mode = ModeStrict
	}
	if cfg.Render.LogLines == 0 {
		cfg.Render.LogLines = 50
	}
	if cfg.Render.HistoryDays == 0 {
		cfg.Render.HistoryDays = 30
	}
	if cfg.Render.HistoryLimit == 0 {
		cfg.Render.HistoryLimit = 50
	}
	if cfg.Notify.Display == 0 {
		cfg.Notify.Display = 5 * time.Second
	}
	if cfg.Notify.Fade == 0 {
		cfg.Notify.Fade = 300 * time.Millisecond
	}
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url %q: must be an absolute http(s) URL", cfg.Backend.BaseURL)
	}
	if cfg.Listen.Port < 0 || cfg.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d: out of range", cfg.Listen.Port)
	}
	if cfg.Render.Mode != ModeStrict && cfg.Render.Mode != ModeLenient {
		return fmt.Errorf("render.mode %q: must be strict or lenient", cfg.Render.Mode)
	}
	for name, d := range map[string]time.Duration{
		"polling.status":  cfg.Polling.Status,
		"polling.charts":  cfg.Polling.Charts,
		"polling.events":  cfg.Polling.Events,
		"polling.logs":    cfg.Polling.Logs,
		"backend.timeout": cfg.Backend.Timeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s: must not be negative", name)
		}
	}
	if cfg.Render.LogLines < 0 || cfg.Render.HistoryDays < 0 || cfg.Render.HistoryLimit < 0 {
		return fmt.Errorf("render: counts must not be negative")
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Debounce editors that write in several steps
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "err", err)
		case <-cw.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		slog.Error("config hot-reload failed", "path", cw.path, "err", err)
		return
	}

	slog.Info("configuration reloaded", "path", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher. Safe to call multiple times.
func (cw *Watcher) Stop() error {
	var err error
	cw.stopOnce.Do(func() {
		close(cw.stopCh)
		err = cw.watcher.Close()
	})
	return err
}
