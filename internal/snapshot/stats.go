package snapshot

import (
	"context"
	"time"

	"github.com/juju/clock"

	"github.com/agentstation/autonomy/internal/eventlog"
	"github.com/agentstation/autonomy/pkg/constants"
)

// UsageReader reads usage counters.
type UsageReader interface {
	UsageStats(ctx context.Context, now time.Time) (*eventlog.UsageStats, error)
}

// Stats samples usage counters from the event log.
type Stats struct {
	store UsageReader
	clock clock.Clock
}

// NewStats returns the stats sampler.
func NewStats(store UsageReader, clk clock.Clock) *Stats {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Stats{store: store, clock: clk}
}

// Name implements Sampler.
func (s *Stats) Name() string {
	return constants.EventStats
}

// Sample implements Sampler.
func (s *Stats) Sample(ctx context.Context) (any, error) {
	return s.store.UsageStats(ctx, s.clock.Now().Local())
}
