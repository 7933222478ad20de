package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskdeck/internal/api"
	"taskdeck/internal/config"
	"taskdeck/internal/core"
	"taskdeck/internal/logging"
	taskdeckmcp "taskdeck/internal/mcp"
	"taskdeck/internal/notify"
	"taskdeck/internal/store"
	"taskdeck/internal/task"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.Log.Level)

	baseCtx := context.Background()
	st, err := store.Open(baseCtx, cfg.StateDir)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	executor := core.NewExecutor(task.Registry(), logger)
	scheduler := core.NewScheduler(schedulerConfig(cfg), st, executor, buildNotifier(cfg, logger), logger)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	scheduler.Start(ctx)
	if err := scheduler.Sync(ctx); err != nil {
		logger.Error("initial sync", "err", err)
	}

	go pruneLoop(ctx, st, cfg.Scheduler.RunRetention, logger)

	reload := func() error {
		next := config.FromEnv()
		return scheduler.ApplyConfig(ctx, schedulerConfig(next))
	}
	go func() {
		if err := config.Watch(ctx, cfg, logger, func(next *config.Config) {
			if err := scheduler.ApplyConfig(ctx, schedulerConfig(next)); err != nil {
				logger.Error("apply reloaded config", "err", err)
			}
		}); err != nil {
			logger.Warn("config watch unavailable", "err", err)
		}
	}()

	mcpServer := taskdeckmcp.NewMCPServer(st, scheduler, logger)
	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, st, scheduler, mcpServer, logger, reload)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("sd_notify", "err", err)
	} else if sent {
		logger.Debug("sd_notify ready sent")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	cancel()
	select {
	case <-scheduler.Done():
	case <-time.After(cfg.ShutdownGrace):
		logger.Warn("scheduler stop timed out")
	}
	if scheduler.Dirty() {
		logger.Warn("some state changes were not persisted")
	}
	logger.Info("shutdown complete")
}

func schedulerConfig(cfg *config.Config) core.Config {
	return core.Config{
		PollInterval:      cfg.Scheduler.PollInterval,
		MaxConcurrent:     cfg.Scheduler.MaxConcurrent,
		DefaultTimeout:    cfg.Scheduler.DefaultTimeout,
		DefaultMaxRetries: cfg.Scheduler.DefaultMaxRetries,
	}
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) core.Notifier {
	var notifiers []notify.Notifier

	if cfg.Notification.Webhook.Enabled {
		n, err := notify.NewWebhookNotifier(cfg.Notification.Webhook.URL)
		if err != nil {
			logger.Error("configure webhook notifier", "err", err)
		} else {
			notifiers = append(notifiers, n)
		}
	}
	if cfg.Notification.Telegram.Enabled {
		n, err := notify.NewTelegramNotifier(cfg.Notification.Telegram.Token, cfg.Notification.Telegram.ChatID)
		if err != nil {
			logger.Error("configure telegram notifier", "err", err)
		} else {
			notifiers = append(notifiers, n)
		}
	}
	if len(notifiers) == 0 {
		return nil
	}

	limited := notify.NewRateLimitedNotifier(notify.NewMultiNotifier(notifiers...), 10*time.Second, 6)
	return &notify.EventNotifier{Notifier: limited, All: cfg.Notification.NotifyAll}
}

func pruneLoop(ctx context.Context, st *store.Store, retention time.Duration, logger *slog.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.PruneRuns(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error("prune runs", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned run records", "count", n)
			}
		}
	}
}
