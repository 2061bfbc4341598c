package eventlog

import (
	"context"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/agentstation/autonomy/pkg/streaks"
)

// Bounds describes the extent of the event log.
type Bounds struct {
	Count int64   `json:"count"`
	First float64 `json:"first"`
	Last  float64 `json:"last"`
}

// Empty reports whether the log holds no events.
func (b Bounds) Empty() bool {
	return b.Count == 0
}

// ScanEvents streams every event in timestamp order, ties broken by
// insertion order. It is not bounded by the query timeout; callers bound
// it with ctx. Returning an error from fn stops the scan.
func (s *Store) ScanEvents(ctx context.Context, fn func(streaks.Event) error) error {
	return s.with(ctx, "scan events", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT timestamp, tool_name, context FROM tool_events
			 WHERE timestamp IS NOT NULL
			 ORDER BY timestamp, rowid`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					return fn(scanEvent(stmt))
				},
			})
	})
}

// EventsSince returns events with timestamp >= since in timestamp order.
func (s *Store) EventsSince(ctx context.Context, since float64) ([]streaks.Event, error) {
	var events []streaks.Event
	err := s.read(ctx, "events since", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT timestamp, tool_name, context FROM tool_events
			 WHERE timestamp >= ?
			 ORDER BY timestamp, rowid`,
			&sqlitex.ExecOptions{
				Args: []any{since},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					events = append(events, scanEvent(stmt))
					return nil
				},
			})
	})
	return events, err
}

// EventBounds returns the event count and the first and last timestamps.
func (s *Store) EventBounds(ctx context.Context) (Bounds, error) {
	var b Bounds
	err := s.read(ctx, "event bounds", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM tool_events`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					b.Count = stmt.ColumnInt64(0)
					b.First = stmt.ColumnFloat(1)
					b.Last = stmt.ColumnFloat(2)
					return nil
				},
			})
	})
	return b, err
}

// CountEventsSince counts events with timestamp >= since.
func (s *Store) CountEventsSince(ctx context.Context, since float64) (int64, error) {
	var n int64
	err := s.read(ctx, "count events", func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT COUNT(*) FROM tool_events WHERE timestamp >= ?`,
			&sqlitex.ExecOptions{
				Args: []any{since},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					n = stmt.ColumnInt64(0)
					return nil
				},
			})
	})
	return n, err
}

// AppendEvents inserts events in one transaction.
func (s *Store) AppendEvents(ctx context.Context, events ...streaks.Event) error {
	return s.with(ctx, "append events", func(conn *sqlite.Conn) (err error) {
		endFn, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endFn(&err)

		for _, e := range events {
			var ctxArg any
			if e.Context != "" {
				ctxArg = e.Context
			}
			if err := sqlitex.Execute(conn,
				`INSERT INTO tool_events (timestamp, tool_name, context) VALUES (?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{e.Timestamp, e.ToolName, ctxArg}},
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanEvent(stmt *sqlite.Stmt) streaks.Event {
	return streaks.Event{
		Timestamp: stmt.ColumnFloat(0),
		ToolName:  stmt.ColumnText(1),
		Context:   stmt.ColumnText(2),
	}
}
