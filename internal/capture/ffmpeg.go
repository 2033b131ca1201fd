// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package capture records meeting audio with an ffmpeg child process.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
	xlog "github.com/maccrin/meetbot/internal/log"
	"github.com/maccrin/meetbot/internal/procgroup"
)

// ErrEmptyRecording is returned by Stop when ffmpeg produced no data.
var ErrEmptyRecording = errors.New("recording is empty")

// Config configures the ffmpeg recorder.
type Config struct {
	BinPath   string
	OutputDir string
	// Pulse captures the monitor of the session's PulseAudio sink; otherwise
	// the ALSA default device is used.
	Pulse     bool
	StopGrace time.Duration
	Bitrate   string
	// Now is used for artifact names.
	Now func() time.Time
}

// Recorder implements ports.Recorder.
type Recorder struct {
	cfg    Config
	logger zerolog.Logger
}

var _ ports.Recorder = (*Recorder)(nil)

func NewRecorder(cfg Config) *Recorder {
	if cfg.BinPath == "" {
		cfg.BinPath = "ffmpeg"
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 10 * time.Second
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "96k"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Recorder{cfg: cfg, logger: xlog.WithComponent("recorder")}
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ArtifactName is the file name of a recording started at t.
func ArtifactName(meetingID string, t time.Time) string {
	return fmt.Sprintf("meeting-%s-%d.webm", unsafeName.ReplaceAllString(meetingID, "_"), t.Unix())
}

// inputArgs selects the capture device for a session.
func (r *Recorder) inputArgs(h ports.SessionHandle) []string {
	if !r.cfg.Pulse {
		return []string{"-f", "alsa", "-i", "default"}
	}
	src := "default"
	if h.AudioSink != "" {
		src = h.AudioSink + ".monitor"
	}
	return []string{"-f", "pulse", "-i", src}
}

// BuildArgs returns the ffmpeg argument list; output goes to stdout.
func (r *Recorder) BuildArgs(h ports.SessionHandle) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "warning"}
	args = append(args, r.inputArgs(h)...)
	args = append(args,
		"-ac", "2",
		"-c:a", "libopus",
		"-b:a", r.cfg.Bitrate,
		"-f", "webm",
		"pipe:1",
	)
	return args
}

// Start launches ffmpeg. The artifact only appears under its final name once
// Stop succeeds.
func (r *Recorder) Start(ctx context.Context, h ports.SessionHandle, meetingID string) (ports.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// #nosec G301
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	final := filepath.Join(r.cfg.OutputDir, ArtifactName(meetingID, r.cfg.Now()))
	pending, err := renameio.NewPendingFile(final, renameio.WithPermissions(0o644))
	if err != nil {
		return nil, fmt.Errorf("create pending artifact: %w", err)
	}

	// #nosec G304
	logFile, err := os.OpenFile(final+".ffmpeg.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		_ = pending.Cleanup()
		return nil, fmt.Errorf("open ffmpeg log: %w", err)
	}

	ring := NewLineRing(64)
	cmd := exec.Command(r.cfg.BinPath, r.BuildArgs(h)...) // #nosec G204
	procgroup.Set(cmd)
	cmd.Stdout = pending.File
	cmd.Stderr = io.MultiWriter(logFile, ring)

	logger := xlog.WithContext(ctx, r.logger)
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		_ = os.Remove(logFile.Name())
		_ = pending.Cleanup()
		return nil, fmt.Errorf("ffmpeg start failed: %w", err)
	}
	logger.Info().
		Str(xlog.FieldEvent, "recorder.started").
		Str(xlog.FieldPath, final).
		Int(xlog.FieldPID, cmd.Process.Pid).
		Str("command", cmd.String()).
		Msg("ffmpeg recording started")

	rec := &recording{
		ref:     final,
		cmd:     cmd,
		pending: pending,
		logFile: logFile,
		ring:    ring,
		grace:   r.cfg.StopGrace,
		logger:  logger,
		done:    make(chan struct{}),
		failed:  make(chan error, 1),
	}
	go rec.wait()
	return rec, nil
}

type recording struct {
	ref     string
	cmd     *exec.Cmd
	pending *renameio.PendingFile
	logFile *os.File
	ring    *LineRing
	grace   time.Duration
	logger  zerolog.Logger

	mu       sync.Mutex
	stopping bool
	waitErr  error
	done     chan struct{}
	failed   chan error

	stopOnce sync.Once
	stopRef  string
	stopErr  error
}

func (rec *recording) Ref() string           { return rec.ref }
func (rec *recording) Failed() <-chan error { return rec.failed }

func (rec *recording) wait() {
	err := rec.cmd.Wait()

	rec.mu.Lock()
	rec.waitErr = err
	stopping := rec.stopping
	rec.mu.Unlock()
	close(rec.done)

	if stopping {
		return
	}
	tail := rec.ring.LastN(5)
	if err == nil {
		err = errors.New("ffmpeg exited before stop")
	}
	rec.logger.Error().Err(err).
		Str(xlog.FieldEvent, "recorder.exited_early").
		Strs("stderr", tail).
		Msg("ffmpeg exited while recording")
	rec.failed <- fmt.Errorf("ffmpeg: %w (%s)", err, strings.Join(tail, "; "))
}

// Stop interrupts ffmpeg so it finalizes the container, then publishes the
// artifact. Repeated calls return the first result.
func (rec *recording) Stop(ctx context.Context) (string, error) {
	rec.stopOnce.Do(func() {
		rec.stopRef, rec.stopErr = rec.stop(ctx)
	})
	return rec.stopRef, rec.stopErr
}

func (rec *recording) stop(ctx context.Context) (string, error) {
	rec.mu.Lock()
	rec.stopping = true
	rec.mu.Unlock()

	grace := rec.grace
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < grace {
			grace = max(left, 0)
		}
	}

	waitCh := make(chan error, 1)
	go func() {
		<-rec.done
		rec.mu.Lock()
		waitCh <- rec.waitErr
		rec.mu.Unlock()
	}()

	exitErr := procgroup.Terminate(rec.cmd, waitCh, syscall.SIGINT, grace)
	if exitErr != nil {
		// ffmpeg exits non-zero after SIGINT; only data on disk matters.
		rec.logger.Debug().Err(exitErr).Str(xlog.FieldEvent, "recorder.exit_status").Msg("ffmpeg exit status")
	}
	_ = rec.logFile.Close()

	info, err := rec.pending.Stat()
	if err != nil {
		_ = rec.pending.Cleanup()
		return "", fmt.Errorf("stat pending artifact: %w", err)
	}
	if info.Size() == 0 {
		_ = rec.pending.Cleanup()
		return "", fmt.Errorf("%w: %s", ErrEmptyRecording, strings.Join(rec.ring.LastN(5), "; "))
	}
	if err := rec.pending.CloseAtomicallyReplace(); err != nil {
		_ = rec.pending.Cleanup()
		return "", fmt.Errorf("publish artifact: %w", err)
	}

	rec.logger.Info().
		Str(xlog.FieldEvent, "recorder.stopped").
		Str(xlog.FieldRecordingRef, rec.ref).
		Int64("bytes", info.Size()).
		Msg("recording finalized")
	return rec.ref, nil
}
