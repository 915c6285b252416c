package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guildpanel/guildpanel/internal/api"
	"github.com/guildpanel/guildpanel/internal/app"
	"github.com/guildpanel/guildpanel/internal/config"
	"github.com/guildpanel/guildpanel/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/guildpanel.yaml", "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("guildpanel starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded", "path", *configPath, "backend", cfg.Backend.BaseURL, "mode", cfg.Render.Mode)

	m := metrics.New()
	a := app.New(cfg, m)

	// The page is served first so browsers see the loading state of the
	// initial render.
	apiServer := api.NewServer(a, cfg.Listen)
	if err := apiServer.Start(); err != nil {
		slog.Error("failed to start dashboard server", "err", err)
		os.Exit(1)
	}

	if err := a.Start(); err != nil {
		slog.Error("failed to start polls", "err", err)
		os.Exit(1)
	}

	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		slog.Info("reloading configuration...")
		a.ApplyConfig(newCfg)
	})
	if err != nil {
		slog.Warn("config hot-reload not available", "err", err)
	}

	slog.Info("guildpanel ready", "addr", cfg.Listen.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down...", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if configWatcher != nil {
			configWatcher.Stop()
		}
		a.Stop()
		if err := apiServer.Stop(ctx); err != nil {
			slog.Warn("dashboard server shutdown", "err", err)
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("guildpanel stopped")
	case <-ctx.Done():
		slog.Error("shutdown timed out, forcing exit", "timeout", shutdownTimeout)
		os.Exit(1)
	}
}
