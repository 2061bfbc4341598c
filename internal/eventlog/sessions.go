package eventlog

import (
	"context"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/agentstation/autonomy/pkg/constants"
)

// Session is a row of the sessions table. Times are stored as
// second-precision UTC strings.
type Session struct {
	ID           string `json:"id"`
	ProjectPath  string `json:"project_path,omitempty"`
	StartedAt    string `json:"started_at"`
	EndedAt      string `json:"ended_at,omitempty"`
	Model        string `json:"model,omitempty"`
	MessageCount int64  `json:"message_count"`
	ToolCount    int64  `json:"tool_count"`
	Outcome      string `json:"outcome,omitempty"`
}

// SessionTime formats t the way the sessions table stores times.
func SessionTime(t time.Time) string {
	return t.UTC().Format(constants.TimeFormatSession)
}

// unixSessionTime formats unix seconds, truncated to whole seconds.
func unixSessionTime(ts float64) string {
	return SessionTime(time.Unix(int64(ts), 0))
}

// SessionsAt returns up to limit session IDs whose interval contains ts:
// started at or before ts and ended at or after ts, or still open.
func (s *Store) SessionsAt(ctx context.Context, ts float64, limit int) ([]string, error) {
	at := unixSessionTime(ts)
	ids := []string{}
	err := s.read(ctx, "sessions at", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id FROM sessions
			 WHERE started_at <= ? AND (ended_at >= ? OR ended_at IS NULL)
			 LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{at, at, limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					ids = append(ids, stmt.ColumnText(0))
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// UpsertSession inserts or replaces a session row.
func (s *Store) UpsertSession(ctx context.Context, sess Session) error {
	return s.with(ctx, "upsert session", func(conn *sqlite.Conn) error {
		var endedAt any
		if sess.EndedAt != "" {
			endedAt = sess.EndedAt
		}
		return sqlitex.Execute(conn,
			`INSERT OR REPLACE INTO sessions
			 (id, project_path, started_at, ended_at, model, message_count, tool_count, outcome)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					sess.ID, sess.ProjectPath, sess.StartedAt, endedAt,
					sess.Model, sess.MessageCount, sess.ToolCount, sess.Outcome,
				},
			})
	})
}
