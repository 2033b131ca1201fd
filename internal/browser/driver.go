// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package browser drives Chrome through the DevTools protocol to sign in and
// join meetings. Every workspace gets its own profile directory and, when
// enabled, its own PulseAudio sink.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
	xlog "github.com/maccrin/meetbot/internal/log"
	"github.com/maccrin/meetbot/internal/procgroup"
)

// Selectors locate the page elements used by the sign-in and join steps.
type Selectors struct {
	LoginURL      string
	Email         string
	EmailNext     string
	Password      string
	PasswordNext  string
	NameInput     string
	JoinButtons   []string
	JoinTexts     []string
	InMeeting     string
	MediaToggles  []string
	LoggedInProbe string
}

// Config configures the Chrome driver.
type Config struct {
	ExecPath    string
	Headless    bool
	ProfileRoot string
	DisplayName string
	// PulseSink creates a null sink per workspace via pactl.
	PulseSink   bool
	PactlPath   string
	StepTimeout time.Duration
	JoinRetries int
	JoinDelay   time.Duration
	Selectors   Selectors
	ExtraFlags  map[string]string
}

// Driver implements ports.Driver with chromedp.
type Driver struct {
	cfg    Config
	logger zerolog.Logger
}

var _ ports.Driver = (*Driver)(nil)

func NewDriver(cfg Config) *Driver {
	if cfg.ProfileRoot == "" {
		cfg.ProfileRoot = os.TempDir()
	}
	if cfg.PactlPath == "" {
		cfg.PactlPath = "pactl"
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	if cfg.JoinRetries < 1 {
		cfg.JoinRetries = 3
	}
	if cfg.JoinDelay < 0 {
		cfg.JoinDelay = 0
	}
	return &Driver{cfg: cfg, logger: xlog.WithComponent("browser")}
}

// allocatorOptions builds the Chrome command line for one workspace.
func (d *Driver) allocatorOptions(profileDir, sink string, onCmd func(*exec.Cmd)) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-software-rasterizer", true),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("mute-audio", false),
		chromedp.ModifyCmdFunc(onCmd),
	}
	if d.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.ExecPath))
	}
	if sink != "" {
		opts = append(opts, chromedp.Env("PULSE_SINK="+sink))
	}

	keys := make([]string, 0, len(d.cfg.ExtraFlags))
	for k := range d.cfg.ExtraFlags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := d.cfg.ExtraFlags[k]
		if v == "" {
			opts = append(opts, chromedp.Flag(k, true))
		} else {
			opts = append(opts, chromedp.Flag(k, v))
		}
	}
	return opts
}

// Open starts a browser with a fresh profile. The browser lives until Close;
// ctx only bounds the launch.
func (d *Driver) Open(ctx context.Context) (ports.Workspace, error) {
	id := uuid.NewString()
	profileDir := filepath.Join(d.cfg.ProfileRoot, "chrome_profile_"+id)
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	w := &workspace{
		id:         id,
		profileDir: profileDir,
		cfg:        d.cfg,
		logger:     xlog.WithContext(ctx, d.logger).With().Str("workspace_id", id).Logger(),
	}

	if d.cfg.PulseSink {
		sink, err := loadNullSink(ctx, d.cfg.PactlPath, sinkName(id))
		if err != nil {
			_ = os.RemoveAll(profileDir)
			return nil, err
		}
		w.sink = sink
	}

	var sink string
	if w.sink != nil {
		sink = w.sink.name
	}
	onCmd := func(cmd *exec.Cmd) {
		procgroup.Set(cmd)
		w.setCmd(cmd)
	}

	// The browser must outlive ctx, so it hangs off a detached context.
	base := context.WithoutCancel(ctx)
	w.allocCtx, w.allocCancel = chromedp.NewExecAllocator(base, d.allocatorOptions(profileDir, sink, onCmd)...)
	w.tabCtx, w.tabCancel = chromedp.NewContext(w.allocCtx)

	stop := context.AfterFunc(ctx, w.tabCancel)
	err := chromedp.Run(w.tabCtx)
	stop()
	if err != nil {
		cerr := w.Close(context.Background())
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, errors.Join(fmt.Errorf("launch browser: %w", err), cerr)
	}

	w.logger.Info().
		Str(xlog.FieldEvent, "browser.launched").
		Str(xlog.FieldPath, profileDir).
		Str("audio_sink", sink).
		Int(xlog.FieldPID, w.pid()).
		Msg("browser workspace opened")
	return w, nil
}

type workspace struct {
	id         string
	profileDir string
	sink       *audioSink
	cfg        Config
	logger     zerolog.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu  sync.Mutex
	cmd *exec.Cmd

	closeOnce sync.Once
	closeErr  error
}

func (w *workspace) setCmd(cmd *exec.Cmd) {
	w.mu.Lock()
	w.cmd = cmd
	w.mu.Unlock()
}

func (w *workspace) pid() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cmd == nil || w.cmd.Process == nil {
		return 0
	}
	return w.cmd.Process.Pid
}

func (w *workspace) Handle() ports.SessionHandle {
	h := ports.SessionHandle{WorkspaceID: w.id, ProfileDir: w.profileDir}
	if w.sink != nil {
		h.AudioSink = w.sink.name
	}
	return h
}

// Close shuts the browser down, force-killing its process group if the
// graceful close stalls, then removes the sink and the profile directory.
func (w *workspace) Close(ctx context.Context) error {
	w.closeOnce.Do(func() { w.closeErr = w.close(ctx) })
	return w.closeErr
}

func (w *workspace) close(ctx context.Context) error {
	var errs []error
	pid := w.pid()

	if w.tabCtx != nil {
		graceful := make(chan error, 1)
		go func() { graceful <- chromedp.Cancel(w.tabCtx) }()

		timer := time.NewTimer(5 * time.Second)
		select {
		case err := <-graceful:
			if err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Debug().Err(err).Str(xlog.FieldEvent, "browser.cancel_error").Msg("graceful browser close reported an error")
			}
		case <-timer.C:
			w.logger.Warn().Str(xlog.FieldEvent, "browser.close_stalled").Msg("graceful browser close stalled")
		case <-ctx.Done():
		}
		timer.Stop()
	}

	if pid > 0 {
		if err := procgroup.KillGroup(pid, 2*time.Second, 5*time.Second); err != nil {
			errs = append(errs, fmt.Errorf("kill browser group %d: %w", pid, err))
		}
	}
	if w.tabCancel != nil {
		w.tabCancel()
	}
	if w.allocCancel != nil {
		w.allocCancel()
	}

	unloadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.sink.unload(unloadCtx); err != nil {
		errs = append(errs, err)
	}
	if err := os.RemoveAll(w.profileDir); err != nil {
		errs = append(errs, fmt.Errorf("remove profile dir: %w", err))
	}

	err := errors.Join(errs...)
	ev := w.logger.Info()
	if err != nil {
		ev = w.logger.Warn().Err(err)
	}
	ev.Str(xlog.FieldEvent, "browser.closed").Msg("browser workspace closed")
	return err
}
