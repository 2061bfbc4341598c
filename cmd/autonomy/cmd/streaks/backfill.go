package streaks

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/autonomy/internal/backfill"
	"github.com/agentstation/autonomy/internal/cmd/application"
	"github.com/agentstation/autonomy/internal/cmd/emoji"
	"github.com/agentstation/autonomy/internal/cmd/output"
	"github.com/agentstation/autonomy/internal/cmd/table"
	"github.com/agentstation/autonomy/pkg/streaks"
)

// Report is the machine-readable backfill outcome.
type Report struct {
	Events    int             `json:"events" yaml:"events"`
	Streaks   int             `json:"streaks" yaml:"streaks"`
	Summary   streaks.Summary `json:"summary" yaml:"summary"`
	ElapsedMS int64           `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// NewBackfillCommand creates the streaks backfill subcommand.
func NewBackfillCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Recompute every streak from the activity log",
		Long: `Backfill scans the full tool activity log in timestamp order, splits it
into streaks at every gap longer than the threshold, resolves the sessions
behind the longest streaks and replaces all stored streaks atomically.`,
		Example: `  # Recompute with the configured settings
  autonomy streaks backfill

  # Allow two minute pauses and keep runs of at least five minutes
  autonomy streaks backfill --threshold 120 --min-duration 300`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBackfill(cmd, app)
		},
	}

	cmd.Flags().Float64("threshold", 0, "Largest gap in seconds that continues a streak (default from config)")
	cmd.Flags().Float64("min-duration", 0, "Shortest streak in seconds that is stored (default from config)")
	cmd.Flags().Int("top", 0, "Resolve sessions for this many of the longest streaks (default from config)")

	return cmd
}

func runBackfill(cmd *cobra.Command, app application.Application) error {
	cfg := app.Settings().Backfill
	if cmd.Flags().Changed("threshold") {
		cfg.Options.GapThreshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	if cmd.Flags().Changed("min-duration") {
		cfg.Options.MinDuration, _ = cmd.Flags().GetFloat64("min-duration")
	}
	if cmd.Flags().Changed("top") {
		cfg.TopK, _ = cmd.Flags().GetInt("top")
	}

	store, err := app.EventLog(cmd.Context())
	if err != nil {
		return err
	}

	logger := app.Logger()
	job, err := backfill.New(store, cfg, backfill.WithLogger(logger))
	if err != nil {
		return err
	}

	result, err := job.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	format := output.DetectFormat(app.OutputFormat())
	switch format {
	case output.FormatTable, output.FormatWide:
		return printSummary(cmd.OutOrStdout(), result, format)
	default:
		return output.FormatAny(cmd.OutOrStdout(), Report{
			Events:    result.Events,
			Streaks:   len(result.Streaks),
			Summary:   result.Summary,
			ElapsedMS: result.Elapsed.Milliseconds(),
		}, format)
	}
}

// printSummary writes the human-readable backfill outcome.
func printSummary(w io.Writer, result *backfill.Result, format output.Format) error {
	if len(result.Streaks) == 0 {
		fmt.Fprintf(w, "%s No streaks found in %s events\n", emoji.Warning, table.FormatNumber(int64(result.Events)))
		return nil
	}

	fmt.Fprintf(w, "%s Backfill complete: %s streaks from %s events in %s\n",
		emoji.Success,
		table.FormatNumber(int64(len(result.Streaks))),
		table.FormatNumber(int64(result.Events)),
		result.Elapsed.Round(time.Millisecond),
	)
	if rec := result.Summary.Record; rec != nil {
		fmt.Fprintf(w, "%s Record streak: %s starting %s (%s tools)\n",
			emoji.Record,
			table.FormatDuration(rec.Duration),
			table.FormatTimestamp(rec.StartTS),
			table.FormatNumber(int64(rec.ToolCount)),
		)
	}
	fmt.Fprintln(w)

	return output.NewFormatter(format).Format(w, table.SummaryToTableData(result.Events, result.Summary, result.Elapsed))
}
