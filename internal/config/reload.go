// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xlog "github.com/maccrin/meetbot/internal/log"
)

// ConfigHolder holds the live configuration and reloads it when the file
// changes. Only hot-reloadable fields take effect without a restart; see
// RestartRequired.
type ConfigHolder struct {
	mu      sync.RWMutex
	current AppConfig
	loader  *Loader
	path    string
	logger  zerolog.Logger

	listenersMu sync.RWMutex
	listeners   []chan<- AppConfig

	debounce time.Duration

	watchOnce sync.Once
	watching  chan struct{}
}

// NewConfigHolder creates a holder around an already loaded config.
func NewConfigHolder(initial AppConfig, loader *Loader, configPath string) *ConfigHolder {
	return &ConfigHolder{
		current:  initial,
		loader:   loader,
		path:     configPath,
		logger:   xlog.WithComponent("config"),
		debounce: 500 * time.Millisecond,
		watching: make(chan struct{}),
	}
}

// Watching is closed once Watch has registered its file watcher, so writes
// made after it are guaranteed to be observed.
func (h *ConfigHolder) Watching() <-chan struct{} { return h.watching }

// Get returns the current configuration.
func (h *ConfigHolder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload loads and validates the config; on failure the old one stays.
func (h *ConfigHolder) Reload(_ context.Context) error {
	newCfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str(xlog.FieldEvent, "config.reload_failed").
			Msg("failed to reload configuration, keeping previous")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = newCfg
	h.mu.Unlock()

	if fields := RestartRequired(old, newCfg); len(fields) > 0 {
		h.logger.Warn().Strs("fields", fields).Str(xlog.FieldEvent, "config.restart_required").
			Msg("changed settings take effect after restart")
	}
	h.notify(newCfg)
	h.logger.Info().Str(xlog.FieldEvent, "config.reload_success").Msg("configuration reloaded")
	return nil
}

// RestartRequired lists changed sections that are read only at startup.
func RestartRequired(old, cur AppConfig) []string {
	var out []string
	if old.Store != cur.Store {
		out = append(out, "store")
	}
	if old.Capability != cur.Capability {
		out = append(out, "capability")
	}
	if old.Lease != cur.Lease {
		out = append(out, "lease")
	}
	if old.Ops != cur.Ops {
		out = append(out, "ops")
	}
	if old.Telemetry != cur.Telemetry {
		out = append(out, "telemetry")
	}
	if old.Executor != cur.Executor {
		out = append(out, "executor")
	}
	return out
}

// Subscribe registers a channel that receives every successfully reloaded
// config. Sends never block; a full channel misses the update.
func (h *ConfigHolder) Subscribe(ch chan<- AppConfig) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *ConfigHolder) notify(cfg AppConfig) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Str(xlog.FieldEvent, "config.listener_skip").Msg("listener channel full")
		}
	}
}

// Watch blocks until ctx is done, reloading on writes to the config file.
// The parent directory is watched so editors that replace the file by rename
// are noticed. Without a config path Watch just waits for ctx.
func (h *ConfigHolder) Watch(ctx context.Context) error {
	if h.path == "" {
		h.logger.Info().Str(xlog.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (environment-only configuration)")
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(h.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.logger.Info().Str(xlog.FieldEvent, "config.watcher_started").Str(xlog.FieldPath, target).
		Msg("watching config file for changes")
	h.watchOnce.Do(func() { close(h.watching) })

	var (
		debounce *time.Timer
		fire     = make(chan struct{}, 1)
	)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(h.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			_ = h.Reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Error().Err(err).Str(xlog.FieldEvent, "config.watcher_error").Msg("config watcher error")
		}
	}
}
