package snapshot

import (
	"context"
	"runtime"
	"time"

	"github.com/juju/clock"

	"github.com/agentstation/autonomy/internal/eventlog"
	"github.com/agentstation/autonomy/pkg/constants"
)

// Health status values.
const (
	StatusHealthy     = "healthy"
	StatusStale       = "stale"
	StatusUnavailable = "unavailable"
)

// HealthReader is the event log access the health source needs.
type HealthReader interface {
	Ping(ctx context.Context) error
	EventBounds(ctx context.Context) (eventlog.Bounds, error)
}

// HealthPayload reports process and event log health. Ages are whole
// minutes so the payload only changes when something meaningful does.
type HealthPayload struct {
	Status              string `json:"status"`
	EventLog            string `json:"event_log"`
	Events              int64  `json:"events"`
	LastEventAgeMinutes int64  `json:"last_event_age_minutes"`
	UptimeMinutes       int64  `json:"uptime_minutes"`
	Goroutines          int    `json:"goroutines"`
	Subscribers         int    `json:"subscribers"`
}

// Health samples event log reachability and freshness.
type Health struct {
	store       HealthReader
	clock       clock.Clock
	started     time.Time
	staleAfter  time.Duration
	subscribers func() int
}

// NewHealth returns the health sampler. subscribers may be nil.
func NewHealth(store HealthReader, clk clock.Clock, staleAfter time.Duration, subscribers func() int) *Health {
	if clk == nil {
		clk = clock.WallClock
	}
	if staleAfter <= 0 {
		staleAfter = constants.DefaultStaleAfter
	}
	if subscribers == nil {
		subscribers = func() int { return 0 }
	}
	return &Health{
		store:       store,
		clock:       clk,
		started:     clk.Now(),
		staleAfter:  staleAfter,
		subscribers: subscribers,
	}
}

// Name implements Sampler.
func (h *Health) Name() string {
	return constants.EventHealth
}

// Sample implements Sampler. An unreachable event log is reported in the
// payload rather than as an error.
func (h *Health) Sample(ctx context.Context) (any, error) {
	now := h.clock.Now()
	p := HealthPayload{
		Status:              StatusHealthy,
		EventLog:            "ok",
		LastEventAgeMinutes: -1,
		UptimeMinutes:       int64(now.Sub(h.started) / time.Minute),
		Goroutines:          runtime.NumGoroutine(),
		Subscribers:         h.subscribers(),
	}

	if err := h.store.Ping(ctx); err != nil {
		p.Status = StatusUnavailable
		p.EventLog = err.Error()
		return p, nil
	}

	b, err := h.store.EventBounds(ctx)
	if err != nil {
		return nil, err
	}
	p.Events = b.Count

	if b.Empty() {
		p.Status = StatusStale
		return p, nil
	}

	age := now.Sub(unixTime(b.Last))
	p.LastEventAgeMinutes = int64(age / time.Minute)
	if age > h.staleAfter {
		p.Status = StatusStale
	}
	return p, nil
}

func unixTime(ts float64) time.Time {
	return time.Unix(0, int64(ts*float64(time.Second)))
}
