// Package store persists calendar events in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"shadowcal/internal/clock"
	appLog "shadowcal/internal/log"
	"shadowcal/internal/model"
)

// ErrNotFound is returned when no event matches.
var ErrNotFound = errors.New("store: event not found")

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the SQLite store. Path ":memory:" opens a private
// in-memory database.
type Config struct {
	Path        string
	BusyTimeout time.Duration
	Clock       clock.Clock
}

// Store is a SQLite-backed event store.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Open opens (creating if needed) the database at cfg.Path and applies
// migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers and ":memory:" is
	// per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	s := &Store{db: db, clock: cfg.Clock}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	appLog.Info("store opened", "path", path)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Put inserts or replaces ev. An empty ID is assigned a UUID. The stored
// event is returned.
func (s *Store) Put(ctx context.Context, ev model.CalendarEvent) (model.CalendarEvent, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if err := put(ctx, s.db, ev, s.clock.Now()); err != nil {
		return model.CalendarEvent{}, err
	}
	return ev, nil
}

// PutAll stores events in one transaction; either all are stored or none.
func (s *Store) PutAll(ctx context.Context, events []model.CalendarEvent) ([]model.CalendarEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.clock.Now()
	out := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		if err := put(ctx, tx, ev, now); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func put(ctx context.Context, db execer, ev model.CalendarEvent, now time.Time) error {
	if strings.TrimSpace(ev.OwnerID) == "" {
		return errors.New("store: owner_id is required")
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	loc, err := jsonOrNull(ev.Location)
	if err != nil {
		return err
	}
	tr, err := jsonOrNull(ev.Transit)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO events(id, owner_id, kind, start_ms, end_ms, title, job_ref, application_ref, interview_ref, location, transit, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   owner_id=excluded.owner_id, kind=excluded.kind, start_ms=excluded.start_ms, end_ms=excluded.end_ms,
		   title=excluded.title, job_ref=excluded.job_ref, application_ref=excluded.application_ref,
		   interview_ref=excluded.interview_ref, location=excluded.location, transit=excluded.transit,
		   updated_at=excluded.updated_at`,
		ev.ID, ev.OwnerID, string(ev.Kind), ev.Start.UnixMilli(), ev.End.UnixMilli(),
		nullStr(ev.Title), nullStr(ev.JobRef), nullStr(ev.ApplicationRef), nullStr(ev.InterviewRef),
		loc, tr, now.UTC().Format(time.RFC3339Nano),
	)
	return err
}

const selectColumns = `SELECT id, owner_id, kind, start_ms, end_ms, title, job_ref, application_ref, interview_ref, location, transit FROM events`

// Get returns one of owner's events.
func (s *Store) Get(ctx context.Context, ownerID, id string) (model.CalendarEvent, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE owner_id = ? AND id = ?`, ownerID, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CalendarEvent{}, ErrNotFound
	}
	return ev, err
}

// List returns owner's events overlapping [from, to), ordered by start.
// A zero bound is open.
func (s *Store) List(ctx context.Context, ownerID string, from, to time.Time) ([]model.CalendarEvent, error) {
	q := selectColumns + ` WHERE owner_id = ?`
	args := []any{ownerID}
	if !to.IsZero() {
		q += ` AND start_ms < ?`
		args = append(args, to.UnixMilli())
	}
	if !from.IsZero() {
		q += ` AND end_ms > ?`
		args = append(args, from.UnixMilli())
	}
	q += ` ORDER BY start_ms, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.CalendarEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Delete removes one of owner's events.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (model.CalendarEvent, error) {
	var (
		ev                   model.CalendarEvent
		kind                 string
		startMS, endMS       int64
		title, job, app, iv  sql.NullString
		locJSON, transitJSON sql.NullString
	)
	if err := sc.Scan(&ev.ID, &ev.OwnerID, &kind, &startMS, &endMS, &title, &job, &app, &iv, &locJSON, &transitJSON); err != nil {
		return model.CalendarEvent{}, err
	}
	ev.Kind = model.EventKind(kind)
	ev.Start = time.UnixMilli(startMS).UTC()
	ev.End = time.UnixMilli(endMS).UTC()
	ev.Title = title.String
	ev.JobRef = job.String
	ev.ApplicationRef = app.String
	ev.InterviewRef = iv.String
	if locJSON.Valid {
		ev.Location = &model.Location{}
		if err := json.Unmarshal([]byte(locJSON.String), ev.Location); err != nil {
			return model.CalendarEvent{}, fmt.Errorf("store: event %s location: %w", ev.ID, err)
		}
	}
	if transitJSON.Valid {
		ev.Transit = &model.TransitInfo{}
		if err := json.Unmarshal([]byte(transitJSON.String), ev.Transit); err != nil {
			return model.CalendarEvent{}, fmt.Errorf("store: event %s transit: %w", ev.ID, err)
		}
	}
	return ev, nil
}

func jsonOrNull[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
