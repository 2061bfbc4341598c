// Package streaks segments a time-ordered stream of tool events into
// autonomy streaks: contiguous runs of activity where no gap between
// consecutive events exceeds a threshold.
//
// The segmentation is a single forward pass and is available in two forms.
// Segment runs over a slice; Segmenter accepts events one at a time so large
// event logs can be streamed without being held in memory.
//
//	streaks := streaks.Segment(events, streaks.DefaultOptions())
//	streaks.SortByDuration(streaks)
package streaks

import (
	"math"
	"time"

	"github.com/agentstation/utc"

	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/errors"
)

// Event is a single tool invocation.
type Event struct {
	// Timestamp is seconds since the unix epoch.
	Timestamp float64 `json:"timestamp"`
	ToolName  string  `json:"tool_name"`
	// Context is an optional grouping label such as a project path.
	// An empty string means no context.
	Context string `json:"context,omitempty"`
}

// Streak is a maximal run of events with no interrupting gap.
type Streak struct {
	StartTS     float64  `json:"start_ts"`
	EndTS       float64  `json:"end_ts"`
	Duration    float64  `json:"duration_seconds"`
	ToolCount   int      `json:"tool_count"`
	AvgGap      float64  `json:"avg_gap_seconds"`
	TopTools    Ranking  `json:"top_tools"`
	TopContexts []string `json:"top_contexts"`
	SessionIDs  []string `json:"session_ids"`
	ComputedAt  utc.Time `json:"computed_at"`
}

// Start returns the streak start as a UTC time.
func (s Streak) Start() utc.Time {
	return fromUnix(s.StartTS)
}

// End returns the streak end as a UTC time.
func (s Streak) End() utc.Time {
	return fromUnix(s.EndTS)
}

// Length returns the streak duration.
func (s Streak) Length() time.Duration {
	return time.Duration(s.Duration * float64(time.Second))
}

// Options control segmentation.
type Options struct {
	// GapThreshold is the largest gap in seconds that still continues a run.
	GapThreshold float64
	// MinDuration is the shortest run in seconds that is emitted.
	MinDuration float64
}

// DefaultOptions returns the default segmentation options.
func DefaultOptions() Options {
	return Options{
		GapThreshold: constants.DefaultGapThreshold.Seconds(),
		MinDuration:  constants.DefaultMinDuration.Seconds(),
	}
}

// Validate reports whether the options can be used for segmentation.
func (o Options) Validate() error {
	if o.GapThreshold <= 0 || math.IsNaN(o.GapThreshold) {
		return errors.NewValidationError("gap_threshold", o.GapThreshold, "must be greater than zero")
	}
	if o.MinDuration < 0 || math.IsNaN(o.MinDuration) {
		return errors.NewValidationError("min_duration", o.MinDuration, "must not be negative")
	}
	return nil
}

func fromUnix(ts float64) utc.Time {
	sec, frac := math.Modf(ts)
	return utc.New(time.Unix(int64(sec), int64(frac*float64(time.Second))))
}

// round2 rounds half away from zero to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
