// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/health"
	"github.com/maccrin/meetbot/internal/reconcile"
	"github.com/maccrin/meetbot/internal/schedule"
)

type fakeJobs []schedule.JobInfo

func (f fakeJobs) Snapshot() []schedule.JobInfo { return f }

type fakeTicker struct {
	rep reconcile.TickReport
	err error
}

func (f *fakeTicker) Tick(context.Context) (reconcile.TickReport, error) { return f.rep, f.err }

func storeHealth(err error) *health.Manager {
	hm := health.NewManager("v1")
	hm.RegisterChecker(health.NewPingChecker("store", func(context.Context) error { return err }))
	return hm
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.10:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(Config{Version: "v1.2.3"}, fakeJobs{}, &fakeTicker{}, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body health.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, health.StatusHealthy, body.Status)
	assert.Equal(t, "v1.2.3", body.Version)
}

func TestReadyz(t *testing.T) {
	ok := New(Config{}, fakeJobs{}, &fakeTicker{}, storeHealth(nil))
	assert.Equal(t, http.StatusOK, do(t, ok.Handler(), http.MethodGet, "/readyz").Code)

	down := New(Config{}, fakeJobs{}, &fakeTicker{}, storeHealth(errors.New("database is locked")))
	rec := do(t, down.Handler(), http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
}

func TestJobs(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	jobs := fakeJobs{{MeetingID: "m1", URL: "https://meet.example.com/x", StartTime: start, EndTime: start.Add(time.Hour), State: model.JobArmed}}
	s := New(Config{}, jobs, &fakeTicker{}, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int                `json:"count"`
		Jobs  []schedule.JobInfo `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "m1", body.Jobs[0].MeetingID)
	assert.Equal(t, model.JobArmed, body.Jobs[0].State)
	assert.True(t, start.Equal(body.Jobs[0].StartTime))
}

func TestReconcileEndpoint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{name: "ok", code: http.StatusOK, want: `"scheduled":2`},
		{name: "busy", err: reconcile.ErrTickInProgress, code: http.StatusConflict, want: "tick_in_progress"},
		{name: "store down", err: errors.New("R_STORE_QUERY: timeout"), code: http.StatusServiceUnavailable, want: "store_query_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{}, fakeJobs{}, &fakeTicker{rep: reconcile.TickReport{Scheduled: 2}, err: tt.err}, nil)
			rec := do(t, s.Handler(), http.MethodPost, "/api/v1/reconcile")
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestReconcileRequiresPost(t *testing.T) {
	s := New(Config{}, fakeJobs{}, &fakeTicker{}, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s.Handler(), http.MethodGet, "/api/v1/reconcile").Code)
}

func TestReconcileRateLimited(t *testing.T) {
	s := New(Config{ReconcileRateLimit: 2}, fakeJobs{}, &fakeTicker{}, nil)
	h := s.Handler()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/reconcile").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/reconcile").Code)

	rec := do(t, h, http.MethodPost, "/api/v1/reconcile")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// other routes are not limited
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/jobs").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(Config{}, fakeJobs{}, &fakeTicker{}, nil)
	h := s.Handler()
	do(t, h, http.MethodGet, "/healthz")

	rec := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "meetbot_http_request_duration_seconds")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(Config{Version: "dev"}, fakeJobs{}, &fakeTicker{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.True(t, strings.Contains(string(body), `"dev"`))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
