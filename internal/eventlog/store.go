// Package eventlog provides SQLite-backed access to the tool event log and
// the tables derived from it.
//
// The store wraps a fixed-size zombiezen sqlitex pool. Every connection gets
// WAL pragmas and a busy timeout; reads used by live snapshots are bounded
// by a per-query timeout so a locked database never stalls the poll loop.
package eventlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/errors"
	"github.com/agentstation/autonomy/pkg/logging"
)

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the database file. A leading ~ expands to the home directory.
	Path string

	// PoolSize is the number of pooled connections. Zero means
	// max(runtime.NumCPU(), 4).
	PoolSize int

	// QueryTimeout bounds each snapshot query. Zero means the default.
	QueryTimeout time.Duration

	// MustExist makes Open fail when the database file is missing
	// instead of creating an empty one.
	MustExist bool

	Logger *zerolog.Logger
}

// Store is the event log. It is safe for concurrent use.
type Store struct {
	pool         *sqlitex.Pool
	path         string
	queryTimeout time.Duration
	logger       *zerolog.Logger
}

// Open opens the event log, applies connection pragmas and makes sure the
// schema exists. Failures to reach the database are reported as
// errors.UnavailableError.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.NewValidationError("db_path", cfg.Path, "is required")
	}

	path, err := ExpandPath(cfg.Path)
	if err != nil {
		return nil, errors.NewUnavailableError(cfg.Path, err)
	}

	if path != ":memory:" {
		if _, err := os.Stat(filepath.Dir(path)); err != nil {
			return nil, errors.NewUnavailableError(path, err)
		}
		if cfg.MustExist {
			if _, err := os.Stat(path); err != nil {
				return nil, errors.NewUnavailableError(path, err)
			}
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}

	queryTimeout := cfg.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = constants.DefaultQueryTimeout
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, errors.NewUnavailableError(path, err)
	}

	s := &Store{
		pool:         pool,
		path:         path,
		queryTimeout: queryTimeout,
		logger:       logger,
	}

	if err := s.migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}

	logger.Debug().
		Str("path", path).
		Int("pool_size", poolSize).
		Dur("query_timeout", queryTimeout).
		Msg("Event log opened")

	return s, nil
}

// Path returns the resolved database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes all pooled connections. It blocks until borrowed
// connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return errors.WrapIO("close", s.path, err)
	}
	s.logger.Debug().Str("path", s.path).Msg("Event log closed")
	return nil
}

// Ping checks that a connection can be taken and a trivial query runs.
func (s *Store) Ping(ctx context.Context) error {
	return s.read(ctx, "ping", func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, "SELECT 1", nil)
	})
}

// read runs fn on a pooled connection bounded by the query timeout.
func (s *Store) read(ctx context.Context, op string, fn func(*sqlite.Conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.with(ctx, op, fn)
}

// with runs fn on a pooled connection. The connection is interrupted when
// ctx is done.
func (s *Store) with(ctx context.Context, op string, fn func(*sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return s.classify(ctx, op, err)
	}
	defer s.pool.Put(conn)

	if err := fn(conn); err != nil {
		return s.classify(ctx, op, err)
	}
	return nil
}

func (s *Store) classify(ctx context.Context, op string, err error) error {
	code := sqlite.ErrCode(err).ToPrimary()
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return errors.NewTimeoutError(op, s.queryTimeout.String(), err.Error())
	case ctx.Err() == context.Canceled:
		return fmt.Errorf("%s: %w: %w", op, errors.ErrCanceled, err)
	case code == sqlite.ResultCantOpen, code == sqlite.ResultNotADB, code == sqlite.ResultBusy:
		return errors.NewUnavailableError(s.path, err)
	default:
		return fmt.Errorf("eventlog %s: %w", op, err)
	}
}

// prepareConnection applies pragmas once per pooled connection.
func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", constants.DefaultBusyTimeout.Milliseconds()),
		"PRAGMA temp_store=MEMORY",
	}

	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("eventlog: %s: %w", pragma, err)
		}
	}
	return nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
