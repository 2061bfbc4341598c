package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/agentstation/utc"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/errors"
	"github.com/agentstation/autonomy/pkg/streaks"
)

// ReplaceStreaks deletes every stored streak and inserts the given ones in
// a single IMMEDIATE transaction. On error nothing is committed.
func (s *Store) ReplaceStreaks(ctx context.Context, rows []streaks.Streak) error {
	return s.with(ctx, "replace streaks", func(conn *sqlite.Conn) (err error) {
		endFn, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endFn(&err)

		if err := sqlitex.Execute(conn, "DELETE FROM autonomy_streaks", nil); err != nil {
			return err
		}

		for i := range rows {
			if err := insertStreak(conn, &rows[i]); err != nil {
				return fmt.Errorf("insert streak %d: %w", i, err)
			}
		}
		return nil
	})
}

func insertStreak(conn *sqlite.Conn, st *streaks.Streak) error {
	contexts, err := json.Marshal(nonNil(st.TopContexts))
	if err != nil {
		return err
	}
	tools, err := json.Marshal(st.TopTools)
	if err != nil {
		return err
	}
	sessions, err := json.Marshal(nonNil(st.SessionIDs))
	if err != nil {
		return err
	}

	var computedAt any
	if !st.ComputedAt.IsZero() {
		computedAt = st.ComputedAt.Format(constants.TimeFormatISO8601)
	}

	return sqlitex.Execute(conn,
		`INSERT INTO autonomy_streaks
		 (start_ts, end_ts, duration_seconds, tool_count, avg_gap_seconds,
		  projects, top_tools, session_ids, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				st.StartTS, st.EndTS, st.Duration, st.ToolCount, st.AvgGap,
				string(contexts), string(tools), string(sessions), computedAt,
			},
		})
}

// Streaks returns stored streaks longest first. A limit of zero or less
// returns all of them.
func (s *Store) Streaks(ctx context.Context, limit int) ([]streaks.Streak, error) {
	if limit <= 0 {
		limit = -1
	}

	out := []streaks.Streak{}
	err := s.read(ctx, "list streaks", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT start_ts, end_ts, duration_seconds, tool_count, avg_gap_seconds,
			        projects, top_tools, session_ids, computed_at
			 FROM autonomy_streaks
			 ORDER BY duration_seconds DESC, start_ts
			 LIMIT ?`,
			&sqlitex.ExecOptions{
				Args: []any{limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					st, err := scanStreak(stmt)
					if err != nil {
						return err
					}
					out = append(out, st)
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StreakAt returns the streak at the 1-based rank in the same order as
// Streaks. A rank past the stored set is a NotFoundError.
func (s *Store) StreakAt(ctx context.Context, rank int) (streaks.Streak, error) {
	if rank < 1 {
		return streaks.Streak{}, errors.NewValidationError("rank", rank, "must be at least 1")
	}

	var (
		st    streaks.Streak
		found bool
	)
	err := s.read(ctx, "get streak", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT start_ts, end_ts, duration_seconds, tool_count, avg_gap_seconds,
			        projects, top_tools, session_ids, computed_at
			 FROM autonomy_streaks
			 ORDER BY duration_seconds DESC, start_ts
			 LIMIT 1 OFFSET ?`,
			&sqlitex.ExecOptions{
				Args: []any{rank - 1},
				ResultFunc: func(stmt *sqlite.Stmt) (err error) {
					st, err = scanStreak(stmt)
					found = err == nil
					return err
				},
			})
	})
	if err != nil {
		return streaks.Streak{}, err
	}
	if !found {
		return streaks.Streak{}, errors.NewNotFoundError("streak", strconv.Itoa(rank))
	}
	return st, nil
}

// CountStreaks returns the number of stored streaks.
func (s *Store) CountStreaks(ctx context.Context) (int64, error) {
	var n int64
	err := s.read(ctx, "count streaks", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT COUNT(*) FROM autonomy_streaks", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				n = stmt.ColumnInt64(0)
				return nil
			},
		})
	})
	return n, err
}

func scanStreak(stmt *sqlite.Stmt) (streaks.Streak, error) {
	st := streaks.Streak{
		StartTS:     stmt.ColumnFloat(0),
		EndTS:       stmt.ColumnFloat(1),
		Duration:    stmt.ColumnFloat(2),
		ToolCount:   int(stmt.ColumnInt64(3)),
		AvgGap:      stmt.ColumnFloat(4),
		TopContexts: []string{},
		SessionIDs:  []string{},
	}

	if err := decodeColumn(stmt, 5, &st.TopContexts); err != nil {
		return st, fmt.Errorf("projects: %w", err)
	}
	if err := decodeColumn(stmt, 6, &st.TopTools); err != nil {
		return st, fmt.Errorf("top_tools: %w", err)
	}
	if err := decodeColumn(stmt, 7, &st.SessionIDs); err != nil {
		return st, fmt.Errorf("session_ids: %w", err)
	}

	if !stmt.ColumnIsNull(8) {
		if t, err := utc.Parse(constants.TimeFormatISO8601, stmt.ColumnText(8)); err == nil {
			st.ComputedAt = t
		}
	}
	return st, nil
}

func decodeColumn(stmt *sqlite.Stmt, col int, v any) error {
	if stmt.ColumnIsNull(col) {
		return nil
	}
	text := stmt.ColumnText(col)
	if text == "" {
		return nil
	}
	return json.Unmarshal([]byte(text), v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
