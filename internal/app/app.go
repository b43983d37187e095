// Package app wires together all adapters and domain logic. It owns the
// full search pipeline: path validation, file discovery, chunk planning,
// dispatch to the external engine, aggregation, caching, and the
// background task machinery behind the HTTP API.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/wlame/rx/internal/adapters/bbolt"
	"github.com/wlame/rx/internal/adapters/hooks"
	"github.com/wlame/rx/internal/adapters/ripgrep"
	"github.com/wlame/rx/internal/config"
	"github.com/wlame/rx/internal/domain/sandbox"
	"github.com/wlame/rx/internal/ports"
)

// App is the assembled application.
type App struct {
	Config   config.Config
	Engine   ports.Engine
	Cache    ports.CacheStore
	Sandbox  *sandbox.Sandbox
	Hooks    hooks.Config
	Requests *RequestStore
	Tasks    *TaskManager

	watcher ports.Watcher
	closers []func() error
}

// New assembles an App from configuration: rg engine, bolt cache store,
// and the path sandbox.
func New(cfg config.Config) (*App, error) {
	sb, err := sandbox.New(cfg.SearchRoot)
	if err != nil {
		return nil, fmt.Errorf("configure sandbox: %w", err)
	}

	engine := ripgrep.New(cfg.RipgrepPath)
	if !engine.Available() {
		return nil, fmt.Errorf("rg binary not found (checked %q); install ripgrep or set ripgrep_path", cfg.RipgrepPath)
	}

	store, err := bbolt.Open(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	a := &App{
		Config:   cfg,
		Engine:   engine,
		Cache:    store,
		Sandbox:  sb,
		Hooks:    hooks.FromEnv().Merge(cfg.Hooks.OnFileURL, cfg.Hooks.OnMatchURL, cfg.Hooks.OnCompleteURL),
		Requests: NewRequestStore(),
		Tasks:    NewTaskManager(),
	}
	if cfg.Hooks.DisableCustom {
		a.Hooks.Disabled = true
	}
	a.closers = append(a.closers, store.Close)
	return a, nil
}

// SetWatcher attaches a file watcher that invalidates cache entries on
// change. Serve mode uses it; one-shot CLI runs do not.
func (a *App) SetWatcher(w ports.Watcher) {
	a.watcher = w
	a.closers = append(a.closers, w.Stop)
}

// WatchForInvalidation starts watching path, dropping cached data for
// any file that changes beneath it.
func (a *App) WatchForInvalidation(path string) error {
	if a.watcher == nil {
		return nil
	}
	return a.watcher.Watch(path, func(changed string) {
		if err := a.Cache.InvalidatePath(changed); err != nil {
			slog.Warn("cache invalidation failed", "path", changed, "error", err)
			return
		}
		slog.Debug("cache invalidated", "path", changed)
	})
}

// StartJanitor launches periodic cleanup of finished tasks and old
// request records. Returns a stop function.
func (a *App) StartJanitor(interval, maxAge time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				removedTasks := a.Tasks.CleanupOld(maxAge)
				removedReqs := a.Requests.ClearOld(maxAge)
				if removedTasks+removedReqs > 0 {
					slog.Debug("janitor pass", "tasks", removedTasks, "requests", removedReqs)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

// Close releases all resources.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
