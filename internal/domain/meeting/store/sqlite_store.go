// Copyright (c) 2026 maccrin
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
	"github.com/maccrin/meetbot/internal/persistence/sqlite"
)

const schemaVersion = 2

// SqliteStore is the default local Meeting Store.
type SqliteStore struct {
	DB  *sql.DB
	now func() time.Time
}

// NewSqliteStore opens (and migrates) the database at dbPath.
func NewSqliteStore(ctx context.Context, dbPath string) (*SqliteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("meeting store: sqlite path is empty")
	}
	db, err := sqlite.Open(ctx, dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SqliteStore{DB: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("meeting store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SqliteStore) migrate(ctx context.Context) error {
	var current int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		meeting_url TEXT NOT NULL,
		start_time_ms INTEGER NOT NULL,
		end_time_ms INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		recording_path TEXT,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_meetings_status_start ON meetings(status, start_time_ms);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	if current == 1 {
		// v1 had no creation timestamp.
		_, _ = tx.ExecContext(ctx, "ALTER TABLE meetings ADD COLUMN created_at_ms INTEGER NOT NULL DEFAULT 0")
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

const selectColumns = `id, meeting_url, start_time_ms, end_time_ms, status, error_message, recording_path`

func (s *SqliteStore) QueryPending(ctx context.Context, since time.Time) ([]model.Meeting, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM meetings WHERE status = ? AND start_time_ms >= ? ORDER BY start_time_ms ASC`,
		string(model.StatusPending), since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMeetings(rows)
}

func (s *SqliteStore) UpdateStatus(ctx context.Context, id string, status model.Status, upd model.StatusUpdate) error {
	res, err := s.DB.ExecContext(ctx, `
	UPDATE meetings SET
		status = ?,
		error_message = COALESCE(NULLIF(?, ''), error_message),
		recording_path = COALESCE(NULLIF(?, ''), recording_path),
		updated_at_ms = ?
	WHERE id = ?`,
		string(status), upd.ErrorMessage, upd.RecordingRef, s.now().UnixMilli(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ports.ErrMeetingNotFound, id)
	}
	return nil
}

func (s *SqliteStore) Insert(ctx context.Context, m model.Meeting) error {
	if m.Status == "" {
		m.Status = model.StatusPending
	}
	now := s.now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO meetings (id, meeting_url, start_time_ms, end_time_ms, status, error_message, recording_path, created_at_ms, updated_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.URL, m.StartTime.UnixMilli(), m.EndTime.UnixMilli(), string(m.Status),
		nullString(m.ErrorMessage), nullString(m.RecordingRef), now, now)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", ErrDuplicateMeeting, m.ID)
	}
	return err
}

func (s *SqliteStore) Get(ctx context.Context, id string) (model.Meeting, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM meetings WHERE id = ?`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Meeting{}, fmt.Errorf("%w: %s", ports.ErrMeetingNotFound, id)
	}
	return m, err
}

func (s *SqliteStore) List(ctx context.Context, limit int) ([]model.Meeting, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM meetings ORDER BY start_time_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMeetings(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row scanner) (model.Meeting, error) {
	var (
		m              model.Meeting
		startMs, endMs int64
		status         string
		errMsg, ref    sql.NullString
	)
	if err := row.Scan(&m.ID, &m.URL, &startMs, &endMs, &status, &errMsg, &ref); err != nil {
		return model.Meeting{}, err
	}
	m.StartTime = time.UnixMilli(startMs).UTC()
	m.EndTime = time.UnixMilli(endMs).UTC()
	m.Status = model.Status(status)
	m.ErrorMessage = errMsg.String
	m.RecordingRef = ref.String
	return m, nil
}

func scanMeetings(rows *sql.Rows) ([]model.Meeting, error) {
	var out []model.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
