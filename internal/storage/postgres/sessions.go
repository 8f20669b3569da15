package postgres

import (
	"database/sql"
	"time"
)

// SessionRow is one pcassist run.
type SessionRow struct {
	SessionID  string     `json:"session_id"`
	InstanceID string     `json:"instance_id"`
	Command    string     `json:"command"`
	Version    string     `json:"version"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Error      *string    `json:"error,omitempty"`
	// Overlays counts the overlay.broadcast events the run stored.
	Overlays int64 `json:"overlays"`
}

// StartSession records the start of a run.
func (c *Client) StartSession(id, command, version string, at time.Time) error {
	_, err := c.db.Exec(`
		INSERT INTO sessions (session_id, instance_id, command, version, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING
	`, id, c.instanceID, command, version, at)
	return err
}

// EndSession stamps the end of a run. runErr, if any, is kept as text.
func (c *Client) EndSession(id string, at time.Time, runErr error) error {
	var msg string
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := c.db.Exec(`
		UPDATE sessions SET ended_at = $2, error = $3
		WHERE session_id = $1 AND ended_at IS NULL
	`, id, at, nullable(msg))
	return err
}

// Sessions returns the last runs of this instance, newest first.
func (c *Client) Sessions(limit int) ([]SessionRow, error) {
	rows, err := c.db.Query(`
		SELECT s.session_id, s.instance_id, s.command, s.version, s.started_at, s.ended_at, s.error,
		       (SELECT count(*) FROM events e
		        WHERE e.session_id = s.session_id AND e.event = 'overlay.broadcast')
		FROM sessions s
		WHERE s.instance_id = $1
		ORDER BY s.started_at DESC
		LIMIT $2
	`, c.instanceID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var s SessionRow
		var ended sql.NullTime
		var runErr sql.NullString
		if err := rows.Scan(&s.SessionID, &s.InstanceID, &s.Command, &s.Version, &s.StartedAt, &ended, &runErr, &s.Overlays); err != nil {
			return nil, err
		}
		if ended.Valid {
			s.EndedAt = &ended.Time
		}
		if runErr.Valid {
			s.Error = &runErr.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
