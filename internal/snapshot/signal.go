package snapshot

import (
	"context"
	"time"

	"github.com/juju/clock"

	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/streaks"
)

// SignalReader is the event log access the signal source needs.
type SignalReader interface {
	EventsSince(ctx context.Context, since float64) ([]streaks.Event, error)
	Streaks(ctx context.Context, limit int) ([]streaks.Streak, error)
	CountStreaks(ctx context.Context) (int64, error)
}

// CurrentRun describes the most recent run of activity.
type CurrentRun struct {
	Active    bool    `json:"active"`
	StartTS   float64 `json:"start_ts"`
	Duration  float64 `json:"duration_seconds"`
	ToolCount int     `json:"tool_count"`
	TopTool   string  `json:"top_tool,omitempty"`
}

// RecordStreak summarizes the longest stored streak.
type RecordStreak struct {
	StartTS   float64 `json:"start_ts"`
	Duration  float64 `json:"duration_seconds"`
	ToolCount int     `json:"tool_count"`
}

// SignalPayload is the composite autonomy signal.
type SignalPayload struct {
	Current       *CurrentRun   `json:"current"`
	Record        *RecordStreak `json:"record"`
	StoredStreaks int64         `json:"stored_streaks"`
	// Ratio is the current run as a percentage of the record.
	Ratio float64 `json:"ratio"`
}

// Signal combines the live run with the stored record.
type Signal struct {
	store  SignalReader
	clock  clock.Clock
	opts   streaks.Options
	window time.Duration
}

// NewSignal returns the signal sampler. Events older than window are not
// considered for the current run.
func NewSignal(store SignalReader, clk clock.Clock, opts streaks.Options, window time.Duration) *Signal {
	if clk == nil {
		clk = clock.WallClock
	}
	if window <= 0 {
		window = constants.DefaultSignalWindow
	}
	return &Signal{store: store, clock: clk, opts: opts, window: window}
}

// Name implements Sampler.
func (s *Signal) Name() string {
	return constants.EventSignal
}

// Sample implements Sampler.
func (s *Signal) Sample(ctx context.Context) (any, error) {
	now := s.clock.Now()
	since := float64(now.Add(-s.window).Unix())

	events, err := s.store.EventsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	p := SignalPayload{}

	seg := streaks.NewSegmenter(s.opts)
	for _, e := range events {
		seg.Add(e)
	}
	if run, ok := seg.Current(); ok {
		idle := float64(now.Unix()) - run.EndTS
		p.Current = &CurrentRun{
			Active:    idle <= s.opts.GapThreshold,
			StartTS:   run.StartTS,
			Duration:  run.Duration,
			ToolCount: run.ToolCount,
		}
		if len(run.TopTools) > 0 {
			p.Current.TopTool = run.TopTools[0].Name
		}
	}

	top, err := s.store.Streaks(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(top) > 0 {
		p.Record = &RecordStreak{
			StartTS:   top[0].StartTS,
			Duration:  top[0].Duration,
			ToolCount: top[0].ToolCount,
		}
		if p.Current != nil && top[0].Duration > 0 {
			p.Ratio = roundTenth(p.Current.Duration / top[0].Duration * 100)
		}
	}

	if p.StoredStreaks, err = s.store.CountStreaks(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func roundTenth(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
