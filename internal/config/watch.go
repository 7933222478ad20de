package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// Watch observes the .env file used by the current configuration and
// invokes onChange with a freshly parsed Config whenever it is rewritten.
// It returns immediately when no .env file was loaded. Watch blocks until
// ctx is cancelled, so run it in its own goroutine.
func Watch(ctx context.Context, cfg *Config, logger *slog.Logger, onChange func(*Config)) error {
	if cfg.EnvFile == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file. Editors replace files by rename
	// which would otherwise silently drop the watch.
	dir := filepath.Dir(cfg.EnvFile)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(cfg.EnvFile)

	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", "err", err)
		case <-fire:
			if err := godotenv.Overload(cfg.EnvFile); err != nil {
				logger.Warn("reload env file", "path", cfg.EnvFile, "err", err)
				continue
			}
			next := FromEnv().normalized()
			next.EnvFile = cfg.EnvFile
			next.StateDir = cfg.StateDir
			next.Server.Addr = cfg.Server.Addr
			logger.Info("configuration reloaded", "path", cfg.EnvFile)
			onChange(next)
		}
	}
}
