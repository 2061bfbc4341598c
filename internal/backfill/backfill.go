// Package backfill recomputes every autonomy streak from the event log and
// replaces the stored set.
package backfill

import (
	"context"
	"sync"
	"time"

	"github.com/agentstation/utc"
	"github.com/rs/zerolog"

	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/errors"
	"github.com/agentstation/autonomy/pkg/logging"
	"github.com/agentstation/autonomy/pkg/streaks"
)

// Store is the subset of the event log the job needs.
type Store interface {
	ScanEvents(ctx context.Context, fn func(streaks.Event) error) error
	SessionsAt(ctx context.Context, ts float64, limit int) ([]string, error)
	ReplaceStreaks(ctx context.Context, rows []streaks.Streak) error
}

// Config configures a Job.
type Config struct {
	Options streaks.Options
	// TopK is how many of the longest streaks get session IDs.
	TopK int
	// SessionLimit caps session IDs per streak.
	SessionLimit int
}

// DefaultConfig returns the default job configuration.
func DefaultConfig() Config {
	return Config{
		Options:      streaks.DefaultOptions(),
		TopK:         constants.DefaultSessionTopK,
		SessionLimit: constants.DefaultSessionLimit,
	}
}

// Result describes a completed run.
type Result struct {
	// Streaks are sorted longest first.
	Streaks []streaks.Streak `json:"streaks"`
	Events  int              `json:"events"`
	Summary streaks.Summary  `json:"summary"`
	Elapsed time.Duration    `json:"elapsed"`
}

// Job recomputes the streaks table. Only one Run may be in progress per
// Job; concurrent calls fail with errors.ErrAlreadyRunning.
type Job struct {
	store  Store
	cfg    Config
	logger *zerolog.Logger
	now    func() utc.Time

	running sync.Mutex
}

// Option configures a Job.
type Option func(*Job)

// WithLogger sets the job logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(j *Job) {
		j.logger = logger
	}
}

// WithNow overrides the clock used for computed_at.
func WithNow(now func() utc.Time) Option {
	return func(j *Job) {
		j.now = now
	}
}

// New creates a job over store.
func New(store Store, cfg Config, opts ...Option) (*Job, error) {
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	if cfg.TopK < 0 {
		return nil, errors.NewValidationError("top_k", cfg.TopK, "must not be negative")
	}
	if cfg.SessionLimit <= 0 {
		cfg.SessionLimit = constants.DefaultSessionLimit
	}

	j := &Job{
		store:  store,
		cfg:    cfg,
		logger: logging.NewNopLogger(),
		now:    utc.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Run reads every event, segments it, enriches the longest streaks with
// session IDs and replaces the stored streaks. Nothing is written if
// reading fails.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	if !j.running.TryLock() {
		return nil, errors.ErrAlreadyRunning
	}
	defer j.running.Unlock()

	start := time.Now()
	ctx = logging.WithJob(logging.WithLogger(ctx, logging.FromContextOr(ctx, j.logger)), "backfill")
	logger := logging.FromContext(ctx)

	seg := streaks.NewSegmenter(j.cfg.Options)
	var first, last float64
	err := j.store.ScanEvents(ctx, func(e streaks.Event) error {
		if seg.Events() == 0 {
			first = e.Timestamp
		}
		last = e.Timestamp
		seg.Add(e)
		return nil
	})
	if err != nil {
		return nil, errors.WrapResource("scan", "events", "", err)
	}

	events := seg.Events()
	found := seg.Finish()
	logger.Info().
		Int("events", events).
		Int("streaks", len(found)).
		Float64("min_duration", j.cfg.Options.MinDuration).
		Msg("Segmented event log")

	streaks.SortByDuration(found)
	j.resolveSessions(ctx, found)

	computedAt := j.now()
	for i := range found {
		found[i].ComputedAt = computedAt
	}

	if err := j.store.ReplaceStreaks(ctx, found); err != nil {
		return nil, errors.WrapResource("replace", "streaks", "", err)
	}

	res := &Result{
		Streaks: found,
		Events:  events,
		Summary: streaks.Summarize(found, first, last),
		Elapsed: time.Since(start),
	}

	logger.Info().
		Int("streaks", len(found)).
		Float64("autonomy_rate", res.Summary.Rate).
		Dur("elapsed", res.Elapsed).
		Msg("Backfill complete")

	return res, nil
}

// resolveSessions attaches session IDs to the TopK longest streaks.
// Lookup failures are logged and leave the streak without sessions.
func (j *Job) resolveSessions(ctx context.Context, sorted []streaks.Streak) {
	logger := logging.FromContext(ctx)
	n := min(j.cfg.TopK, len(sorted))
	for i := range n {
		ids, err := j.store.SessionsAt(ctx, sorted[i].StartTS, j.cfg.SessionLimit)
		if err != nil {
			logger.Warn().
				Err(err).
				Float64("start_ts", sorted[i].StartTS).
				Msg("Session lookup failed")
			continue
		}
		sorted[i].SessionIDs = ids
	}
}
