// Package sqlite keeps the event log and run history in a local SQLite
// file, for rigs without a Postgres server. Rows come back in the same
// shapes as the Postgres store so the API serves either.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AaronLay10/pcassist/internal/metrics"
	"github.com/AaronLay10/pcassist/internal/storage/postgres"
)

// Timestamps are stored as Unix nanoseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		ts          INTEGER NOT NULL,
		level       TEXT NOT NULL,
		event       TEXT NOT NULL,
		msg         TEXT,
		fields      TEXT,
		instance_id TEXT NOT NULL,
		session_id  TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_session ON events(instance_id, session_id, ts)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id  TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		command     TEXT NOT NULL,
		version     TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		ended_at    INTEGER,
		error       TEXT
	)`,
}

// Client is a SQLite-backed event store.
type Client struct {
	db         *sql.DB
	instanceID string
}

// Open opens or creates the database at path. ":memory:" is allowed.
func Open(path, instanceID string) (*Client, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; the event log is appended from a single goroutine at a time.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stmts := append([]string{`PRAGMA busy_timeout = 5000`, `PRAGMA journal_mode = WAL`}, schema...)
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", path, err)
		}
	}
	return &Client{db: db, instanceID: instanceID}, nil
}

// Append inserts an event. It satisfies events.Store.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	var encoded sql.NullString
	if fields != nil {
		b, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode fields: %w", err)
		}
		encoded = sql.NullString{String: string(b), Valid: true}
	}
	_, err := c.db.Exec(
		`INSERT INTO events (ts, level, event, msg, fields, instance_id, session_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts.UnixNano(), level, event, nullString(msg), encoded, c.instanceID, nullString(sessionID))
	if err != nil {
		metrics.SinkErrors.WithLabelValues("sqlite").Inc()
	}
	return err
}

// Query returns the last limit events of this instance, newest first,
// optionally for one session.
func (c *Client) Query(limit int, sessionID string) ([]postgres.EventRow, error) {
	rows, err := c.db.Query(`
		SELECT event_id, ts, level, event, msg, fields, instance_id, session_id
		FROM events
		WHERE instance_id = ? AND (? = '' OR session_id = ?)
		ORDER BY ts DESC, event_id DESC
		LIMIT ?`, c.instanceID, sessionID, sessionID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []postgres.EventRow
	for rows.Next() {
		var e postgres.EventRow
		var ts int64
		var msg, fields, session sql.NullString
		if err := rows.Scan(&e.EventID, &ts, &e.Level, &e.Event, &msg, &fields, &e.InstanceID, &session); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		if msg.Valid {
			e.Message = &msg.String
		}
		if session.Valid {
			e.SessionID = &session.String
		}
		if fields.Valid {
			if err := json.Unmarshal([]byte(fields.String), &e.Fields); err != nil {
				return nil, fmt.Errorf("decode fields of event %d: %w", e.EventID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// StartSession records the start of a run.
func (c *Client) StartSession(id, command, version string, at time.Time) error {
	_, err := c.db.Exec(
		`INSERT OR IGNORE INTO sessions (session_id, instance_id, command, version, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, c.instanceID, command, version, at.UnixNano())
	return err
}

// EndSession stamps the end of a run.
func (c *Client) EndSession(id string, at time.Time, runErr error) error {
	var msg string
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := c.db.Exec(
		`UPDATE sessions SET ended_at = ?, error = ? WHERE session_id = ? AND ended_at IS NULL`,
		at.UnixNano(), nullString(msg), id)
	return err
}

// Sessions returns the last runs of this instance, newest first.
func (c *Client) Sessions(limit int) ([]postgres.SessionRow, error) {
	rows, err := c.db.Query(`
		SELECT s.session_id, s.instance_id, s.command, s.version, s.started_at, s.ended_at, s.error,
		       (SELECT count(*) FROM events e WHERE e.session_id = s.session_id AND e.event = 'overlay.broadcast')
		FROM sessions s
		WHERE s.instance_id = ?
		ORDER BY s.started_at DESC
		LIMIT ?`, c.instanceID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []postgres.SessionRow
	for rows.Next() {
		var s postgres.SessionRow
		var started int64
		var ended sql.NullInt64
		var runErr sql.NullString
		if err := rows.Scan(&s.SessionID, &s.InstanceID, &s.Command, &s.Version, &started, &ended, &runErr, &s.Overlays); err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			s.EndedAt = &t
		}
		if runErr.Valid {
			s.Error = &runErr.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (c *Client) Close() error {
	return c.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 200
	case limit > 10000:
		return 10000
	}
	return limit
}
