// Package constants provides shared constants used throughout the autonomy
// codebase. This includes segmentation defaults, streaming cadences,
// timeouts, file permissions and event names that must stay consistent
// between the batch job, the poll loop and the HTTP layer.
package constants

import "time"

// Segmentation defaults
const (
	// DefaultGapThreshold is the largest gap between consecutive tool calls
	// that still counts as uninterrupted activity.
	DefaultGapThreshold = 30 * time.Second

	// DefaultMinDuration is the shortest run that is stored as a streak.
	DefaultMinDuration = 60 * time.Second

	// TopToolsLimit bounds the per-streak tool frequency table.
	TopToolsLimit = 10

	// TopContextsLimit bounds the per-streak context list.
	TopContextsLimit = 10

	// DefaultSessionTopK is how many of the longest streaks get session ids resolved.
	DefaultSessionTopK = 50

	// DefaultSessionLimit caps session ids resolved per streak.
	DefaultSessionLimit = 5
)

// Streaming cadences
const (
	// DefaultPollInterval is the poll loop tick.
	DefaultPollInterval = 3 * time.Second

	// DefaultSecondaryEvery publishes secondary snapshots every Nth active tick.
	DefaultSecondaryEvery = 5

	// DefaultKeepAlive is the idle pulse written to each SSE connection.
	DefaultKeepAlive = 1 * time.Second

	// SinkWriteTimeout bounds a single write to one subscriber.
	SinkWriteTimeout = 10 * time.Second
)

// Timeout constants define various timeout durations used in the application
const (
	// DefaultQueryTimeout bounds a single event log query.
	DefaultQueryTimeout = 3 * time.Second

	// DefaultBusyTimeout is the SQLite busy_timeout applied to every connection.
	DefaultBusyTimeout = 3 * time.Second

	// DefaultStaleAfter marks the event log stale when no tool event arrived for this long.
	DefaultStaleAfter = 5 * time.Minute

	// ActiveSessionWindow counts sessions that ended this recently as active.
	ActiveSessionWindow = 5 * time.Minute

	// DefaultSignalWindow is how far back the live signal looks for the current run.
	DefaultSignalWindow = 1 * time.Hour

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout = 30 * time.Second

	// AppShutdownTimeout bounds releasing application resources on exit.
	AppShutdownTimeout = 5 * time.Second

	// BackfillTimeout bounds a backfill triggered over HTTP.
	BackfillTimeout = 10 * time.Minute
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Cache constants
const (
	// CacheTTL is the default time-to-live for cached API reads
	CacheTTL = 1 * time.Minute

	// CacheCleanupInterval is how often to clean expired cache entries
	CacheCleanupInterval = 2 * time.Minute
)

// Stream event names
const (
	// EventStats carries the primary usage snapshot.
	EventStats = "stats"

	// EventHealth carries the process and event log health snapshot.
	EventHealth = "health"

	// EventSignal carries the composite autonomy signal.
	EventSignal = "signal"

	// EventHeartbeat is published on every active tick regardless of change.
	EventHeartbeat = "heartbeat"

	// EventShutdown is the last frame a subscriber sees before the server closes it.
	EventShutdown = "shutdown"
)

// Path constants
const (
	// DefaultDBPath is the default event log location
	DefaultDBPath = "~/.claude/data/claude.db"

	// DefaultConfigName is the config file name searched in $HOME and the working directory
	DefaultConfigName = ".autonomy"
)

// Format constants
const (
	// TimeFormatISO8601 is the ISO 8601 time format
	TimeFormatISO8601 = time.RFC3339

	// TimeFormatSession matches how session rows store started_at/ended_at.
	TimeFormatSession = "2006-01-02T15:04:05Z"

	// TimeFormatHuman is a human-readable time format
	TimeFormatHuman = "2006-01-02 15:04"
)
