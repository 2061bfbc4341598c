package eventlog

import (
	"context"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/agentstation/autonomy/pkg/constants"
)

// TokenTotals are cumulative opus token counters.
type TokenTotals struct {
	OpusIn    int64 `json:"opus_in"`
	OpusOut   int64 `json:"opus_out"`
	OpusCache int64 `json:"opus_cache"`
}

// DayActivity is one day of usage.
type DayActivity struct {
	Messages int64 `json:"messages"`
	Sessions int64 `json:"sessions"`
	Tools    int64 `json:"tools"`
	Tokens   int64 `json:"tokens"`
}

// LatestSession summarizes the most recently started session.
type LatestSession struct {
	ID       string `json:"id"`
	Model    string `json:"model,omitempty"`
	Messages int64  `json:"messages"`
	Tools    int64  `json:"tools"`
	Outcome  string `json:"outcome,omitempty"`
}

// UsageStats aggregates the usage counters published as the stats snapshot.
type UsageStats struct {
	TotalSessions  int64          `json:"total_sessions"`
	TotalMessages  int64          `json:"total_messages"`
	TotalTools     int64          `json:"total_tools"`
	Tokens         TokenTotals    `json:"tokens"`
	Today          DayActivity    `json:"today"`
	TodayEvents    int64          `json:"today_events"`
	ActiveSessions int64          `json:"active_sessions"`
	LatestSession  *LatestSession `json:"latest_session"`
}

// DailyStats is a row of the daily_stats table.
type DailyStats struct {
	Date           string
	OpusMessages   int64
	SonnetMessages int64
	HaikuMessages  int64
	OpusTokensIn   int64
	OpusTokensOut  int64
	OpusCacheRead  int64
	SessionCount   int64
	ToolCalls      int64
}

// latestSessionIDLen is how much of the session ID is shown.
const latestSessionIDLen = 12

// UsageStats reads the usage counters as of now. The day boundary follows
// now's location.
func (s *Store) UsageStats(ctx context.Context, now time.Time) (*UsageStats, error) {
	stats := &UsageStats{}
	today := now.Format("2006-01-02")
	activeCutoff := SessionTime(now.Add(-constants.ActiveSessionWindow))
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	err := s.read(ctx, "usage stats", func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn,
			`SELECT
				COALESCE(SUM(session_count), 0),
				COALESCE(SUM(opus_messages + sonnet_messages + haiku_messages), 0),
				COALESCE(SUM(tool_calls), 0),
				COALESCE(SUM(opus_tokens_in), 0),
				COALESCE(SUM(opus_tokens_out), 0),
				COALESCE(SUM(opus_cache_read), 0)
			 FROM daily_stats`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.TotalSessions = stmt.ColumnInt64(0)
					stats.TotalMessages = stmt.ColumnInt64(1)
					stats.TotalTools = stmt.ColumnInt64(2)
					stats.Tokens = TokenTotals{
						OpusIn:    stmt.ColumnInt64(3),
						OpusOut:   stmt.ColumnInt64(4),
						OpusCache: stmt.ColumnInt64(5),
					}
					return nil
				},
			}); err != nil {
			return err
		}

		if err := sqlitex.Execute(conn,
			`SELECT opus_messages + sonnet_messages + haiku_messages,
			        session_count, tool_calls,
			        opus_tokens_in + opus_tokens_out + opus_cache_read
			 FROM daily_stats WHERE date = ?`,
			&sqlitex.ExecOptions{
				Args: []any{today},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.Today = DayActivity{
						Messages: stmt.ColumnInt64(0),
						Sessions: stmt.ColumnInt64(1),
						Tools:    stmt.ColumnInt64(2),
						Tokens:   stmt.ColumnInt64(3),
					}
					return nil
				},
			}); err != nil {
			return err
		}

		if err := sqlitex.Execute(conn,
			`SELECT COUNT(*) FROM sessions WHERE ended_at IS NULL OR ended_at > ?`,
			&sqlitex.ExecOptions{
				Args: []any{activeCutoff},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.ActiveSessions = stmt.ColumnInt64(0)
					return nil
				},
			}); err != nil {
			return err
		}

		if err := sqlitex.Execute(conn,
			`SELECT COUNT(*) FROM tool_events WHERE timestamp >= ?`,
			&sqlitex.ExecOptions{
				Args: []any{float64(midnight.Unix())},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stats.TodayEvents = stmt.ColumnInt64(0)
					return nil
				},
			}); err != nil {
			return err
		}

		return sqlitex.Execute(conn,
			`SELECT id, model, message_count, tool_count, outcome
			 FROM sessions ORDER BY started_at DESC LIMIT 1`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					id := stmt.ColumnText(0)
					if len(id) > latestSessionIDLen {
						id = id[:latestSessionIDLen]
					}
					stats.LatestSession = &LatestSession{
						ID:       id,
						Model:    stmt.ColumnText(1),
						Messages: stmt.ColumnInt64(2),
						Tools:    stmt.ColumnInt64(3),
						Outcome:  stmt.ColumnText(4),
					}
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// UpsertDailyStats inserts or replaces a daily_stats row.
func (s *Store) UpsertDailyStats(ctx context.Context, d DailyStats) error {
	return s.with(ctx, "upsert daily stats", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT OR REPLACE INTO daily_stats
			 (date, opus_messages, sonnet_messages, haiku_messages,
			  opus_tokens_in, opus_tokens_out, opus_cache_read,
			  session_count, tool_calls)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					d.Date, d.OpusMessages, d.SonnetMessages, d.HaikuMessages,
					d.OpusTokensIn, d.OpusTokensOut, d.OpusCacheRead,
					d.SessionCount, d.ToolCalls,
				},
			})
	})
}
