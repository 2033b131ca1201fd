// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/maccrin/meetbot/internal/log"
)

// ShutdownHook performs cleanup during shutdown. Hooks run in reverse
// registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

type hooks struct {
	mu    sync.Mutex
	items []namedHook
	ran   bool
}

func (h *hooks) add(name string, hook ShutdownHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, namedHook{name: name, hook: hook})
}

// run executes every hook once, newest first, and joins their errors.
func (h *hooks) run(ctx context.Context, logger zerolog.Logger) error {
	h.mu.Lock()
	if h.ran {
		h.mu.Unlock()
		return nil
	}
	h.ran = true
	items := h.items
	h.mu.Unlock()

	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		start := time.Now()
		if err := it.hook(ctx); err != nil {
			logger.Error().Err(err).
				Str(xlog.FieldEvent, "daemon.hook_failed").
				Str("hook", it.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", it.name, err))
			continue
		}
		logger.Debug().
			Str(xlog.FieldEvent, "daemon.hook_done").
			Str("hook", it.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook completed")
	}
	return errors.Join(errs...)
}
