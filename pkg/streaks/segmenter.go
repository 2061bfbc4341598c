package streaks

import (
	"github.com/agentstation/autonomy/pkg/constants"
)

// Segmenter performs streaming segmentation. Feed events in ascending
// timestamp order with Add and collect the result with Finish.
// A Segmenter is not safe for concurrent use.
type Segmenter struct {
	opts    Options
	streaks []Streak
	events  int

	open     bool
	start    float64
	end      float64
	n        int
	tools    *counter
	contexts *counter
}

// NewSegmenter returns a segmenter for opts. Callers should validate opts
// first; invalid thresholds produce one run per event.
func NewSegmenter(opts Options) *Segmenter {
	return &Segmenter{opts: opts}
}

// Add feeds the next event.
func (s *Segmenter) Add(e Event) {
	s.events++
	if !s.open {
		s.begin(e)
		return
	}

	gap := e.Timestamp - s.end
	if gap >= 0 && gap <= s.opts.GapThreshold {
		s.end = e.Timestamp
		s.n++
		s.tools.add(e.ToolName)
		if e.Context != "" {
			s.contexts.add(e.Context)
		}
		return
	}

	s.close()
	s.begin(e)
}

// Finish closes the open run and returns every emitted streak in source
// order. The segmenter is reset and can be reused.
func (s *Segmenter) Finish() []Streak {
	if s.open {
		s.close()
	}
	out := s.streaks
	s.streaks = nil
	s.events = 0
	return out
}

// Events returns the number of events added since the last Finish.
func (s *Segmenter) Events() int {
	return s.events
}

// Current returns the run in progress, if any, without closing it.
// The returned streak ignores MinDuration.
func (s *Segmenter) Current() (Streak, bool) {
	if !s.open {
		return Streak{}, false
	}
	return s.build(), true
}

func (s *Segmenter) begin(e Event) {
	s.open = true
	s.start = e.Timestamp
	s.end = e.Timestamp
	s.n = 1
	s.tools = newCounter()
	s.tools.add(e.ToolName)
	s.contexts = newCounter()
	if e.Context != "" {
		s.contexts.add(e.Context)
	}
}

func (s *Segmenter) close() {
	s.open = false
	if s.end-s.start < s.opts.MinDuration {
		return
	}
	s.streaks = append(s.streaks, s.build())
}

func (s *Segmenter) build() Streak {
	duration := s.end - s.start
	return Streak{
		StartTS:     s.start,
		EndTS:       s.end,
		Duration:    duration,
		ToolCount:   s.n,
		AvgGap:      round2(duration / float64(max(s.n-1, 1))),
		TopTools:    s.tools.top(constants.TopToolsLimit),
		TopContexts: s.contexts.top(constants.TopContextsLimit).Names(),
		SessionIDs:  []string{},
	}
}

// Segment runs a full pass over events, which must be in ascending
// timestamp order.
func Segment(events []Event, opts Options) []Streak {
	seg := NewSegmenter(opts)
	for _, e := range events {
		seg.Add(e)
	}
	return seg.Finish()
}
