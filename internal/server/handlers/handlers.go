// Package handlers provides the REST handlers of the autonomy server.
package handlers

import (
	"context"
	"net/http"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/agentstation/autonomy/internal/backfill"
	"github.com/agentstation/autonomy/internal/server/cache"
	"github.com/agentstation/autonomy/internal/snapshot"
	"github.com/agentstation/autonomy/pkg/logging"
	"github.com/agentstation/autonomy/pkg/streaks"
)

// EventLog is the event log access the handlers need.
type EventLog interface {
	Path() string
	Ping(ctx context.Context) error
	Streaks(ctx context.Context, limit int) ([]streaks.Streak, error)
	StreakAt(ctx context.Context, rank int) (streaks.Streak, error)
}

// Backfiller recomputes the stored streaks.
type Backfiller interface {
	Run(ctx context.Context) (*backfill.Result, error)
}

// Forgetter drops remembered snapshot digests.
type Forgetter interface {
	Forget(name string)
}

// Deps are the collaborators of Handlers.
type Deps struct {
	EventLog EventLog
	Cache    *cache.Cache
	Backfill Backfiller
	// Digests is told to forget snapshots a backfill invalidates.
	Digests Forgetter
	// Clients reports the number of live stream clients.
	Clients func() int

	Stats  snapshot.Sampler
	Health snapshot.Sampler
	Signal snapshot.Sampler

	Version string
	// Clock stamps REST snapshots; defaults to the wall clock.
	Clock  clock.Clock
	Logger *zerolog.Logger
}

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	Deps
}

// New creates a new Handlers instance.
func New(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}
	if deps.Clients == nil {
		deps.Clients = func() int { return 0 }
	}
	return &Handlers{Deps: deps}
}

// log returns the request scoped logger, or the handlers' own logger.
func (h *Handlers) log(r *http.Request) *zerolog.Logger {
	return logging.FromContextOr(r.Context(), h.Logger)
}
