// Package streaks provides the streaks command and its subcommands.
package streaks

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/autonomy/internal/cmd/application"
)

// NewCommand creates the streaks command using app context.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "streaks",
		GroupID: "core",
		Short:   "Compute and inspect autonomy streaks",
		Long: `Streaks are runs of tool activity where no gap between consecutive
tool calls exceeds the gap threshold. Backfill recomputes every streak
from the full activity log; list shows the stored streaks, longest first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(NewBackfillCommand(app))
	cmd.AddCommand(NewListCommand(app))

	return cmd
}
