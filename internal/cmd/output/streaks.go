package output

import (
	"io"

	"github.com/agentstation/autonomy/internal/cmd/table"
	"github.com/agentstation/autonomy/pkg/streaks"
)

// FormatStreaks writes streaks in the given format. Table formats render
// a ranked listing; json and yaml emit the stored rows.
func FormatStreaks(w io.Writer, rows []streaks.Streak, format Format) error {
	if rows == nil {
		rows = []streaks.Streak{}
	}

	var data any
	switch format {
	case FormatTable, FormatWide, "":
		data = table.StreaksToTableData(rows, format == FormatWide)
	default:
		data = rows
	}

	return NewFormatter(format).Format(w, data)
}

// FormatAny writes data in the given format. This is useful for commands
// with custom data structures.
func FormatAny(w io.Writer, data any, format Format) error {
	return NewFormatter(format).Format(w, data)
}
