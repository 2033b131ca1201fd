// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

// Package ops serves the operator HTTP surface: probes, metrics, the job
// list and a manual reconcile trigger.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/maccrin/meetbot/internal/health"
	xlog "github.com/maccrin/meetbot/internal/log"
	"github.com/maccrin/meetbot/internal/reconcile"
	"github.com/maccrin/meetbot/internal/schedule"
)

type JobLister interface {
	Snapshot() []schedule.JobInfo
}

type Ticker interface {
	Tick(ctx context.Context) (reconcile.TickReport, error)
}

type Config struct {
	Listen  string
	Version string
	// ReconcileRateLimit is manual reconcile requests per minute per client.
	ReconcileRateLimit int
}

type Server struct {
	cfg    Config
	jobs   JobLister
	ticker Ticker
	health *health.Manager
	logger zerolog.Logger
}

// New builds the server. A nil manager gets one with no checkers, so
// /readyz only reports the process as up.
func New(cfg Config, jobs JobLister, ticker Ticker, hm *health.Manager) *Server {
	if cfg.ReconcileRateLimit <= 0 {
		cfg.ReconcileRateLimit = 6
	}
	if hm == nil {
		hm = health.NewManager(cfg.Version)
	}
	return &Server{cfg: cfg, jobs: jobs, ticker: ticker, health: hm, logger: xlog.WithComponent("ops")}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(accessLog)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/jobs", s.handleJobs)
		r.With(rateLimit(s.cfg.ReconcileRateLimit, time.Minute)).Post("/reconcile", s.handleReconcile)
	})
	return traced("meetbot-ops", r)
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info().Str(xlog.FieldEvent, "ops.listening").Str("addr", ln.Addr().String()).Msg("ops server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.jobs.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(jobs), "jobs": jobs})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := s.ticker.Tick(r.Context())
	switch {
	case errors.Is(err, reconcile.ErrTickInProgress):
		writeJSON(w, http.StatusConflict, errorBody{Error: "tick_in_progress"})
	case err != nil:
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "store_query_failed", Detail: err.Error()})
	default:
		s.logger.Info().Str(xlog.FieldEvent, "ops.manual_reconcile").Int("scheduled", rep.Scheduled).
			Int("cancelled", rep.Cancelled).Msg("manual reconcile")
		writeJSON(w, http.StatusOK, rep)
	}
}
