// Package poller runs the loop that samples snapshot sources and publishes
// changed snapshots to live clients.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/agentstation/autonomy/internal/server/digest"
	"github.com/agentstation/autonomy/internal/snapshot"
	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/errors"
	"github.com/agentstation/autonomy/pkg/logging"
)

// Publisher delivers named payloads to subscribers.
type Publisher interface {
	Publish(event string, payload any) error
	ClientCount() int
}

// Heartbeat is published on every active tick.
type Heartbeat struct {
	T   int64  `json:"t"`
	Seq uint64 `json:"seq"`
}

// Config configures a Loop.
type Config struct {
	// Interval between ticks.
	Interval time.Duration
	// SecondaryEvery publishes secondary sources on every Nth active tick.
	SecondaryEvery int
	// Primary is sampled on every active tick.
	Primary snapshot.Source
	// Secondary sources are sampled every SecondaryEvery active ticks.
	Secondary []snapshot.Source
	// Timeout bounds the sampling of a single tick. Zero means Interval.
	Timeout time.Duration
}

// Loop samples sources on a fixed interval while anyone is listening.
type Loop struct {
	cfg       Config
	publisher Publisher
	detector  *digest.Detector
	clock     clock.Clock
	logger    *zerolog.Logger

	active uint64
	seq    uint64
	idle   bool
}

// New creates a loop. A nil clock means the wall clock.
func New(cfg Config, publisher Publisher, detector *digest.Detector, clk clock.Clock, logger *zerolog.Logger) (*Loop, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = constants.DefaultPollInterval
	}
	if cfg.SecondaryEvery <= 0 {
		cfg.SecondaryEvery = constants.DefaultSecondaryEvery
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	if cfg.Primary == nil {
		return nil, errors.NewValidationError("primary", nil, "a primary source is required")
	}
	if detector == nil {
		detector = digest.NewDetector()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Loop{
		cfg:       cfg,
		publisher: publisher,
		detector:  detector,
		clock:     clk,
		logger:    logger,
		idle:      true,
	}, nil
}

// Run ticks until ctx is cancelled, then returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().
		Dur("interval", l.cfg.Interval).
		Int("secondary_every", l.cfg.SecondaryEvery).
		Msg("Poll loop started")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Uint64("ticks", l.seq).Msg("Poll loop stopped")
			return nil
		case <-l.clock.After(l.cfg.Interval):
			if err := l.Tick(ctx); err != nil {
				l.logger.Warn().Err(err).Msg("Poll tick failed")
			}
		}
	}
}

// Tick performs one iteration. It is a no-op while there are no clients.
// Panics are recovered and returned as errors.
func (l *Loop) Tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll tick panic: %v", r)
		}
	}()

	if l.publisher.ClientCount() == 0 {
		l.idle = true
		return nil
	}
	if l.idle {
		// Clients that joined while idle have not seen the secondary
		// snapshots yet.
		l.detector.Reset()
		l.idle = false
	}

	l.active++
	l.seq++

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	var errs []error
	if err := l.publishIfChanged(ctx, l.cfg.Primary); err != nil {
		errs = append(errs, err)
	}

	if l.active%uint64(l.cfg.SecondaryEvery) == 0 {
		for _, src := range l.cfg.Secondary {
			if err := l.publishIfChanged(ctx, src); err != nil {
				errs = append(errs, err)
			}
		}
	}

	hb := Heartbeat{T: l.clock.Now().Unix(), Seq: l.seq}
	if err := l.publisher.Publish(constants.EventHeartbeat, hb); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("tick %d: %w", l.seq, errors.Join(errs...))
	}
	return nil
}

func (l *Loop) publishIfChanged(ctx context.Context, src snapshot.Source) error {
	name := src.Name()
	payload := src.Sample(ctx)

	changed, err := l.detector.Changed(name, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !changed {
		return nil
	}

	if err := l.publisher.Publish(name, payload); err != nil {
		// Retry on the next tick.
		l.detector.Forget(name)
		return fmt.Errorf("%s: %w", name, err)
	}

	l.logger.Debug().Str("event", name).Msg("Published snapshot")
	return nil
}
