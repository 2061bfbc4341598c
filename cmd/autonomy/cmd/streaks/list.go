package streaks

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/autonomy/internal/cmd/application"
	"github.com/agentstation/autonomy/internal/cmd/output"
	"github.com/agentstation/autonomy/pkg/errors"
)

// NewListCommand creates the streaks list subcommand.
func NewListCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored streaks, longest first",
		Example: `  autonomy streaks list
  autonomy streaks list --limit 5 -o wide
  autonomy streaks list -o json | jq '.[0].top_tools'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 1 {
				return errors.NewValidationError("limit", limit, "must be at least 1")
			}

			store, err := app.EventLog(cmd.Context())
			if err != nil {
				return err
			}

			rows, err := store.Streaks(cmd.Context(), limit)
			if err != nil {
				return err
			}

			return output.FormatStreaks(cmd.OutOrStdout(), rows, output.DetectFormat(app.OutputFormat()))
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum number of streaks to show")

	return cmd
}
