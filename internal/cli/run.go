package cli

import (
	"github.com/spf13/cobra"

	"plus-ev-alerts/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled evaluation loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var (
	evaluateSnapshot string
	evaluateOutput   string
	evaluateDryRun   bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run the pipeline once and print the positive EV lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Evaluate(cmd.Context(), app.EvaluateOptions{
			SnapshotPath: evaluateSnapshot,
			OutputPath:   evaluateOutput,
			DryRun:       evaluateDryRun,
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read API without running the loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateSnapshot, "snapshot", "", "Read input tables from a JSON snapshot instead of the database")
	evaluateCmd.Flags().StringVar(&evaluateOutput, "output", "", "Write the run result as JSON to this path")
	evaluateCmd.Flags().BoolVar(&evaluateDryRun, "dry-run", false, "Skip writes and notifications")
}
