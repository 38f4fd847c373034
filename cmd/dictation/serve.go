package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nugget/dictation/internal/api"
	"github.com/nugget/dictation/internal/buildinfo"
	"github.com/nugget/dictation/internal/config"
	"github.com/nugget/dictation/internal/depwatch"
	"github.com/nugget/dictation/internal/httpkit"
	"github.com/nugget/dictation/internal/mqtt"
	"github.com/nugget/dictation/internal/practice"
	"github.com/nugget/dictation/internal/updatecheck"
	"github.com/nugget/dictation/internal/web"
)

// runServe starts the HTTP server and blocks until SIGINT or SIGTERM.
//
// The shutdown sequence is:
//  1. the signal cancels ctx
//  2. MQTT publishes "offline" and disconnects
//  3. the HTTP server drains in-flight requests
//  4. the cue cache is closed via defer
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(stdout, cfg)
	logger.Info("starting Dictation", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)
	if cfgPath == "" {
		logger.Info("no config file found, using defaults")
	} else {
		logger.Info("config loaded", "path", cfgPath)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	st, err := newStack(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if st.store != nil && cfg.Cache.TTLHours > 0 {
		if n, err := st.store.Purge(cfg.Cache.TTL()); err != nil {
			logger.Warn("cue cache purge failed", "error", err)
		} else if n > 0 {
			logger.Info("purged stale cue cache entries", "count", n)
		}
	}

	if st.client.YtDlpPath() == "" {
		logger.Warn("yt-dlp not found in PATH; every fetch will fail until it is installed")
	}

	// --- Dependency health ---
	deps, err := watchDependencies(ctx, st, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Stop()

	// --- MQTT events ---
	var notifier practice.Notifier
	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Enabled {
		instanceID, err := mqtt.LoadOrCreateInstanceID(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("load mqtt instance id: %w", err)
		}
		mqttPub = mqtt.New(cfg.MQTT, instanceID, logger)
		notifier = mqttPub
		go func() {
			if err := mqttPub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
		logger.Info("mqtt events enabled", "broker", cfg.MQTT.Broker, "device_name", cfg.MQTT.DeviceName)
	}

	svc := practice.NewService(st.source, notifier, practiceConfig(cfg), logger)

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, svc, logger)
	server.SetPublicURL(cfg.PublicURL)
	server.SetDependencies(deps)
	server.SetWeb(web.NewWebServer(web.Config{
		Practice:  svc,
		PublicURL: cfg.PublicURL,
		Logger:    logger,
	}))

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if mqttPub != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := mqttPub.Stop(offlineCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Dictation stopped")
	return nil
}

// watchDependencies probes the yt-dlp binary and compares it with the
// latest upstream release, so /health shows when fetches are likely to
// fail.
func watchDependencies(ctx context.Context, st *stack, cfg *config.Config, logger *slog.Logger) (*depwatch.Manager, error) {
	checker, err := updatecheck.NewChecker(httpkit.NewClient(), cfg.Updates.GitHubToken, githubAPIURL, logger)
	if err != nil {
		return nil, err
	}

	mgr := depwatch.NewManager(logger)
	mgr.Watch(ctx, "yt-dlp", func(ctx context.Context) error {
		_, err := st.client.Version(ctx)
		return err
	}, depwatch.DefaultBackoff())

	releaseBackoff := depwatch.DefaultBackoff()
	releaseBackoff.PollInterval = 6 * time.Hour
	mgr.Watch(ctx, "yt-dlp-release", func(ctx context.Context) error {
		installed, err := st.client.Version(ctx)
		if err != nil {
			return err
		}
		rel, err := checker.Latest(ctx)
		if err != nil {
			return err
		}
		if updatecheck.Compare(installed, rel.Tag) == updatecheck.StatusOutdated {
			return fmt.Errorf("yt-dlp %s is older than %s", installed, rel.Tag)
		}
		return nil
	}, releaseBackoff)

	return mgr, nil
}
