package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"plus-ev-alerts/internal/app"
)

var simulateOpts app.SimulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Push a synthetic positive EV line through the pipeline and alert on it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOpts.DecimalOdds <= 1 || simulateOpts.ConsensusOdds <= 1 {
			return errors.New("--odds and --consensus must be greater than 1")
		}
		if simulateOpts.StartsIn <= 0 {
			return errors.New("--starts-in must be positive")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateOpts)
	},
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simulateOpts.Sport, "sport", "basketball_nba", "Sport key")
	f.StringVar(&simulateOpts.HomeTeam, "home", "Boston Celtics", "Home team")
	f.StringVar(&simulateOpts.AwayTeam, "away", "Miami Heat", "Away team")
	f.StringVar(&simulateOpts.Outcome, "outcome", "", "Outcome to bet on (defaults to the home team)")
	f.StringVar(&simulateOpts.Sportsbook, "book", "DraftKings", "Sportsbook offering the price")
	f.Float64Var(&simulateOpts.DecimalOdds, "odds", 2.30, "Best decimal odds")
	f.Float64Var(&simulateOpts.ConsensusOdds, "consensus", 2.00, "Consensus decimal odds")
	f.DurationVar(&simulateOpts.StartsIn, "starts-in", 3*time.Hour, "Time until the event starts")
}
