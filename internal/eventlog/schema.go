package eventlog

import (
	"context"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// schema creates the tables the store reads and writes. Existing databases
// written by the hook pipeline already carry the source tables; the
// statements are no-ops there.
const schema = `
CREATE TABLE IF NOT EXISTS tool_events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp REAL NOT NULL,
	tool_name TEXT NOT NULL,
	context   TEXT
);
CREATE INDEX IF NOT EXISTS idx_tool_events_timestamp ON tool_events(timestamp);

CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	project_path  TEXT,
	started_at    TEXT,
	ended_at      TEXT,
	model         TEXT,
	message_count INTEGER DEFAULT 0,
	tool_count    INTEGER DEFAULT 0,
	outcome       TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);

CREATE TABLE IF NOT EXISTS daily_stats (
	date              TEXT PRIMARY KEY,
	opus_messages     INTEGER DEFAULT 0,
	sonnet_messages   INTEGER DEFAULT 0,
	haiku_messages    INTEGER DEFAULT 0,
	opus_tokens_in    INTEGER DEFAULT 0,
	opus_tokens_out   INTEGER DEFAULT 0,
	opus_cache_read   INTEGER DEFAULT 0,
	sonnet_tokens_in  INTEGER DEFAULT 0,
	sonnet_tokens_out INTEGER DEFAULT 0,
	haiku_tokens_in   INTEGER DEFAULT 0,
	haiku_tokens_out  INTEGER DEFAULT 0,
	session_count     INTEGER DEFAULT 0,
	tool_calls        INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS autonomy_streaks (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	start_ts         REAL NOT NULL,
	end_ts           REAL NOT NULL,
	duration_seconds REAL NOT NULL,
	tool_count       INTEGER NOT NULL,
	avg_gap_seconds  REAL NOT NULL,
	projects         TEXT,
	top_tools        TEXT,
	session_ids      TEXT,
	computed_at      TEXT
);
CREATE INDEX IF NOT EXISTS idx_autonomy_streaks_duration ON autonomy_streaks(duration_seconds DESC);
`

func (s *Store) migrate(ctx context.Context) error {
	return s.with(ctx, "migrate", func(conn *sqlite.Conn) error {
		if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
			return err
		}
		return addColumnIfMissing(conn, "autonomy_streaks", "computed_at", "TEXT")
	})
}

// addColumnIfMissing upgrades tables created before a column existed.
func addColumnIfMissing(conn *sqlite.Conn, table, column, decl string) error {
	found := false
	err := sqlitex.ExecuteTransient(conn, "SELECT name FROM pragma_table_info(?)", &sqlitex.ExecOptions{
		Args: []any{table},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if stmt.ColumnText(0) == column {
				found = true
			}
			return nil
		},
	})
	if err != nil || found {
		return err
	}
	return sqlitex.ExecuteTransient(conn, "ALTER TABLE "+table+" ADD COLUMN "+column+" "+decl, nil)
}
