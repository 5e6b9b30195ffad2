package cli

import (
	"github.com/spf13/cobra"

	"plus-ev-alerts/internal/app"
)

var (
	ingestSports    []string
	ingestTeams     string
	ingestTeamsOnly bool
	ingestDryRun    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch sportsbook quotes from The Odds API and seed team names",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Ingest(cmd.Context(), app.IngestOptions{
			Sports:    ingestSports,
			TeamsPath: ingestTeams,
			TeamsOnly: ingestTeamsOnly,
			DryRun:    ingestDryRun,
		})
	},
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestSports, "sports", nil, "Sport keys to fetch (defaults to config, then the consensus feed)")
	ingestCmd.Flags().StringVar(&ingestTeams, "teams", "", "TOML file of canonical team names to seed")
	ingestCmd.Flags().BoolVar(&ingestTeamsOnly, "teams-only", false, "Only seed team names")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Fetch without writing to storage")
}
