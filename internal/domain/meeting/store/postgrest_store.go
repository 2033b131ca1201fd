// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
	xlog "github.com/maccrin/meetbot/internal/log"
)

// PostgrestConfig points at a PostgREST endpoint such as Supabase's /rest/v1.
type PostgrestConfig struct {
	BaseURL  string
	APIKey   string
	Table    string
	Timeout  time.Duration
	RetryMax int
}

// PostgrestStore talks to a meetings table exposed over PostgREST.
type PostgrestStore struct {
	base   *url.URL
	table  string
	apiKey string
	client *retryablehttp.Client
}

// NewPostgrestStore validates cfg and builds a retrying HTTP client.
func NewPostgrestStore(cfg PostgrestConfig) (*PostgrestStore, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("meeting store: postgrest url is empty")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("meeting store: invalid postgrest url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("meeting store: unsupported url scheme %q", base.Scheme)
	}
	if cfg.Table == "" {
		cfg.Table = "meetings"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 3
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = retryLogger{logger: xlog.WithComponent("store.postgrest")}

	return &PostgrestStore{base: base, table: cfg.Table, apiKey: cfg.APIKey, client: client}, nil
}

func (s *PostgrestStore) Close() error {
	s.client.HTTPClient.CloseIdleConnections()
	return nil
}

type meetingRow struct {
	ID           string  `json:"id"`
	MeetingURL   string  `json:"meeting_url"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message"`
	RecordingRef *string `json:"recording_path"`
}

func (r meetingRow) toModel() (model.Meeting, error) {
	start, err := parseTimestamp(r.StartTime)
	if err != nil {
		return model.Meeting{}, fmt.Errorf("meeting %s: start_time: %w", r.ID, err)
	}
	end, err := parseTimestamp(r.EndTime)
	if err != nil {
		return model.Meeting{}, fmt.Errorf("meeting %s: end_time: %w", r.ID, err)
	}
	m := model.Meeting{ID: r.ID, URL: r.MeetingURL, StartTime: start, EndTime: end, Status: model.Status(r.Status)}
	if r.ErrorMessage != nil {
		m.ErrorMessage = *r.ErrorMessage
	}
	if r.RecordingRef != nil {
		m.RecordingRef = *r.RecordingRef
	}
	return m, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts timestamptz and naive timestamps (read as UTC).
func parseTimestamp(v string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

func (s *PostgrestStore) QueryPending(ctx context.Context, since time.Time) ([]model.Meeting, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("status", "eq."+string(model.StatusPending))
	q.Set("start_time", "gte."+since.UTC().Format(time.RFC3339))
	q.Set("order", "start_time.asc")
	return s.fetch(ctx, q)
}

func (s *PostgrestStore) List(ctx context.Context, limit int) ([]model.Meeting, error) {
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "start_time.desc")
	q.Set("limit", strconv.Itoa(limit))
	return s.fetch(ctx, q)
}

func (s *PostgrestStore) Get(ctx context.Context, id string) (model.Meeting, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+id)
	out, err := s.fetch(ctx, q)
	if err != nil {
		return model.Meeting{}, err
	}
	if len(out) == 0 {
		return model.Meeting{}, fmt.Errorf("%w: %s", ports.ErrMeetingNotFound, id)
	}
	return out[0], nil
}

func (s *PostgrestStore) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	_, err := s.fetch(ctx, q)
	return err
}

func (s *PostgrestStore) UpdateStatus(ctx context.Context, id string, status model.Status, upd model.StatusUpdate) error {
	body := map[string]any{"status": string(status)}
	if upd.ErrorMessage != "" {
		body["error_message"] = upd.ErrorMessage
	}
	if upd.RecordingRef != "" {
		body["recording_path"] = upd.RecordingRef
	}
	q := url.Values{}
	q.Set("id", "eq."+id)

	var rows []meetingRow
	if err := s.do(ctx, http.MethodPatch, q, body, "return=representation", &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s", ports.ErrMeetingNotFound, id)
	}
	return nil
}

func (s *PostgrestStore) Insert(ctx context.Context, m model.Meeting) error {
	if m.Status == "" {
		m.Status = model.StatusPending
	}
	row := map[string]any{
		"id":          m.ID,
		"meeting_url": m.URL,
		"start_time":  m.StartTime.UTC().Format(time.RFC3339),
		"end_time":    m.EndTime.UTC().Format(time.RFC3339),
		"status":      string(m.Status),
	}
	err := s.do(ctx, http.MethodPost, nil, row, "return=minimal", nil)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrDuplicateMeeting, m.ID)
	}
	return err
}

func (s *PostgrestStore) fetch(ctx context.Context, q url.Values) ([]model.Meeting, error) {
	var rows []meetingRow
	if err := s.do(ctx, http.MethodGet, q, nil, "", &rows); err != nil {
		return nil, err
	}
	out := make([]model.Meeting, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("postgrest: status %d: %s", e.code, e.body)
}

func (s *PostgrestStore) do(ctx context.Context, method string, q url.Values, in any, prefer string, out any) error {
	u := *s.base
	u.Path = u.Path + "/" + s.table
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("postgrest %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("postgrest: decode response: %w", err)
	}
	return nil
}

// retryLogger adapts zerolog to retryablehttp.LeveledLogger.
type retryLogger struct {
	logger zerolog.Logger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.emit(l.logger.Error(), msg, kv) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.emit(l.logger.Debug(), msg, kv) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.emit(l.logger.Debug(), msg, kv) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.emit(l.logger.Warn(), msg, kv) }

func (retryLogger) emit(ev *zerolog.Event, msg string, kv []interface{}) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok || key == "url" {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Str(xlog.FieldEvent, "store.http_retry").Msg(msg)
}
