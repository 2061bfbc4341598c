package streaks

import "sort"

// SortByDuration sorts streaks longest first. Equal durations keep their
// relative order.
func SortByDuration(streaks []Streak) {
	sort.SliceStable(streaks, func(i, j int) bool {
		return streaks[i].Duration > streaks[j].Duration
	})
}

// Summary aggregates a set of streaks.
type Summary struct {
	Count int `json:"count"`
	// Autonomous is the total streak duration in seconds.
	Autonomous float64 `json:"autonomous_seconds"`
	// Span is the time between the first and last event in seconds.
	Span float64 `json:"span_seconds"`
	// Rate is Autonomous as a percentage of Span.
	Rate   float64 `json:"autonomy_rate"`
	Record *Streak `json:"record,omitempty"`
}

// Summarize aggregates streaks over an event span from first to last.
func Summarize(streaks []Streak, first, last float64) Summary {
	sum := Summary{Count: len(streaks), Span: last - first}
	for i := range streaks {
		sum.Autonomous += streaks[i].Duration
		if sum.Record == nil || streaks[i].Duration > sum.Record.Duration {
			rec := streaks[i]
			sum.Record = &rec
		}
	}
	if sum.Span > 0 {
		sum.Rate = sum.Autonomous / sum.Span * 100
	}
	return sum
}
