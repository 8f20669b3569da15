package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/pcassist/internal/metrics"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID    int64                  `json:"event_id"`
	Timestamp  time.Time              `json:"ts"`
	Level      string                 `json:"level"`
	Event      string                 `json:"event"`
	Message    *string                `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	InstanceID string                 `json:"instance_id"`
	SessionID  *string                `json:"session_id,omitempty"`
}

// Client manages the Postgres connection for event storage.
type Client struct {
	db         *sql.DB
	instanceID string
}

// pingTimeout bounds the startup check so an unreachable database does not
// hold up the run.
const pingTimeout = 5 * time.Second

// schema is applied in order on every connect. Each statement is
// idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_id    BIGSERIAL PRIMARY KEY,
		ts          TIMESTAMPTZ NOT NULL,
		level       TEXT NOT NULL,
		event       TEXT NOT NULL,
		msg         TEXT,
		fields      JSONB,
		instance_id TEXT NOT NULL,
		session_id  TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_events_session ON events(instance_id, session_id)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id  TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		command     TEXT NOT NULL,
		version     TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		ended_at    TIMESTAMPTZ,
		error       TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(instance_id, started_at DESC)`,
}

// New connects with dsn and applies the schema. Events and sessions are
// written under instanceID.
func New(dsn, instanceID string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	metrics.PostgresConnected.Set(1)
	return &Client{db: db, instanceID: instanceID}, nil
}

// Append inserts an event. It satisfies events.Store.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error {
	fieldsJSON, err := encodeFields(fields)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, instance_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, nullable(msg), fieldsJSON, c.instanceID, nullable(sessionID))
	if err != nil {
		metrics.SinkErrors.WithLabelValues("postgres").Inc()
	}
	return err
}

func encodeFields(fields map[string]interface{}) ([]byte, error) {
	if fields == nil {
		return nil, nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return b, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Query returns the last N events for this instance, newest first. A
// non-empty sessionID narrows the result to one run.
func (c *Client) Query(limit int, sessionID string) ([]EventRow, error) {
	limit = clampLimit(limit)

	query := `
		SELECT event_id, ts, level, event, msg, fields, instance_id, session_id
		FROM events
		WHERE instance_id = $1 AND ($2 = '' OR session_id = $2)
		ORDER BY ts DESC
		LIMIT $3
	`
	rows, err := c.db.Query(query, c.instanceID, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, session sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.InstanceID, &session); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if session.Valid {
			e.SessionID = &session.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("decode fields of event %d: %w", e.EventID, err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}

// Close closes the database connection.
func (c *Client) Close() error {
	metrics.PostgresConnected.Set(0)
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
