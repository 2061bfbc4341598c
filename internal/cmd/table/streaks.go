// Package table provides common table formatting utilities for CLI commands.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/autonomy/pkg/constants"
	"github.com/agentstation/autonomy/pkg/streaks"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data represents table formatting data to avoid import cycles.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align // Optional: column alignment
}

// StreaksToTableData converts streaks to table format. Wide adds the
// gap, context and session columns.
func StreaksToTableData(rows []streaks.Streak, wide bool) Data {
	headers := []string{"#", "Start", "Duration", "Tools", "Top Tools"}
	align := []Align{AlignRight, AlignLeft, AlignRight, AlignRight, AlignLeft}
	if wide {
		headers = append(headers, "Avg Gap", "Contexts", "Sessions")
		align = append(align, AlignRight, AlignLeft, AlignRight)
	}

	out := make([][]string, 0, len(rows))
	for i, st := range rows {
		row := []string{
			strconv.Itoa(i + 1),
			FormatTimestamp(st.StartTS),
			FormatDuration(st.Duration),
			FormatNumber(int64(st.ToolCount)),
			FormatRanking(st.TopTools, 3),
		}
		if wide {
			row = append(row,
				fmt.Sprintf("%.2fs", st.AvgGap),
				orDash(strings.Join(st.TopContexts, ", ")),
				strconv.Itoa(len(st.SessionIDs)),
			)
		}
		out = append(out, row)
	}

	return Data{
		Headers:         headers,
		Rows:            out,
		ColumnAlignment: align,
	}
}

// SummaryToTableData converts a streak summary to a key-value table.
func SummaryToTableData(events int, sum streaks.Summary, elapsed time.Duration) Data {
	rows := [][]string{
		{"Events", FormatNumber(int64(events))},
		{"Streaks", FormatNumber(int64(sum.Count))},
		{"Autonomous", FormatDuration(sum.Autonomous)},
		{"Span", FormatDuration(sum.Span)},
		{"Autonomy Rate", fmt.Sprintf("%.1f%%", sum.Rate)},
	}
	if sum.Record != nil {
		rows = append(rows,
			[]string{"Record", FormatDuration(sum.Record.Duration)},
			[]string{"Record Start", FormatTimestamp(sum.Record.StartTS)},
			[]string{"Record Tools", FormatNumber(int64(sum.Record.ToolCount))},
		)
	}
	rows = append(rows, []string{"Elapsed", elapsed.Round(time.Millisecond).String()})

	return Data{
		Headers:         []string{"Property", "Value"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignLeft, AlignRight},
	}
}

// FormatDuration renders seconds as a compact duration such as 1h02m or 45s.
func FormatDuration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return "0s"
	}
	total := int64(math.Round(seconds))
	h, m, s := total/3600, (total%3600)/60, total%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatTimestamp renders unix seconds in local time.
func FormatTimestamp(ts float64) string {
	if ts <= 0 {
		return "-"
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).Local().Format(constants.TimeFormatHuman)
}

// FormatRanking renders the first n entries of a ranking as "Edit×12, Bash×4".
func FormatRanking(r streaks.Ranking, n int) string {
	if len(r) == 0 {
		return "-"
	}
	if n > 0 && len(r) > n {
		r = r[:n]
	}
	parts := make([]string, len(r))
	for i, c := range r {
		parts[i] = fmt.Sprintf("%s×%d", c.Name, c.Count)
	}
	return strings.Join(parts, ", ")
}

// FormatNumber formats large numbers with comma separators.
func FormatNumber(n int64) string {
	str := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(str, "-")
	str = strings.TrimPrefix(str, "-")
	if len(str) <= 3 {
		if neg {
			return "-" + str
		}
		return str
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
