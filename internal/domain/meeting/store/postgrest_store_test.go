// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
)

func newTestPostgrest(t *testing.T, h http.HandlerFunc) *PostgrestStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	s, err := NewPostgrestStore(PostgrestConfig{BaseURL: srv.URL + "/rest/v1/", APIKey: "anon-key", RetryMax: 2})
	require.NoError(t, err)
	s.client.RetryWaitMin = time.Millisecond
	s.client.RetryWaitMax = 5 * time.Millisecond
	return s
}

func TestPostgrestQueryPending(t *testing.T) {
	s := newTestPostgrest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/meetings", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		assert.Equal(t, "eq.pending", r.URL.Query().Get("status"))
		assert.Equal(t, "gte.2026-03-01T10:00:00Z", r.URL.Query().Get("start_time"))
		assert.Equal(t, "start_time.asc", r.URL.Query().Get("order"))

		_, _ = io.WriteString(w, `[
			{"id":"m1","meeting_url":"https://meet.example/a","start_time":"2026-03-01T10:05:00+00:00","end_time":"2026-03-01T11:05:00+00:00","status":"pending","error_message":null,"recording_path":null},
			{"id":"m2","meeting_url":"https://meet.example/b","start_time":"2026-03-01T12:00:00","end_time":"2026-03-01 13:00:00","status":"pending"}
		]`)
	})

	got, err := s.QueryPending(context.Background(), t0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.True(t, got[0].StartTime.Equal(t0.Add(5*time.Minute)))
	assert.True(t, got[1].EndTime.Equal(time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)))
	assert.Equal(t, model.StatusPending, got[1].Status)
}

func TestPostgrestUpdateStatus(t *testing.T) {
	s := newTestPostgrest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if r.URL.Query().Get("id") == "eq.ghost" {
			_, _ = io.WriteString(w, `[]`)
			return
		}
		assert.Equal(t, "eq.m1", r.URL.Query().Get("id"))
		assert.Equal(t, map[string]string{"status": "completed", "recording_path": "rec-m1.webm"}, body)
		_, _ = io.WriteString(w, `[{"id":"m1","meeting_url":"u","start_time":"2026-03-01T10:00:00Z","end_time":"2026-03-01T11:00:00Z","status":"completed"}]`)
	})

	ctx := context.Background()
	require.NoError(t, s.UpdateStatus(ctx, "m1", model.StatusCompleted, model.StatusUpdate{RecordingRef: "rec-m1.webm"}))
	assert.ErrorIs(t, s.UpdateStatus(ctx, "ghost", model.StatusOngoing, model.StatusUpdate{}), ports.ErrMeetingNotFound)
}

func TestPostgrestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	s := newTestPostgrest(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	})

	got, err := s.QueryPending(context.Background(), t0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostgrestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	s := newTestPostgrest(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"invalid api key"}`)
	})

	_, err := s.QueryPending(context.Background(), t0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostgrestInsertConflict(t *testing.T) {
	s := newTestPostgrest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusConflict)
	})
	err := s.Insert(context.Background(), meetingAt("m1", t0))
	assert.ErrorIs(t, err, ErrDuplicateMeeting)
}

func TestNewPostgrestStoreValidation(t *testing.T) {
	_, err := NewPostgrestStore(PostgrestConfig{})
	assert.Error(t, err)
	_, err = NewPostgrestStore(PostgrestConfig{BaseURL: "ftp://example"})
	assert.ErrorContains(t, err, "unsupported url scheme")
}
