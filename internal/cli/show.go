package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"plus-ev-alerts/internal/app"
)

var showOpts app.ShowOptions

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently recommended bets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showOpts.Limit <= 0 {
			return errors.New("--limit must be greater than zero")
		}
		return getApp().Show(cmd.Context(), showOpts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showOpts.Limit, "limit", 20, "Number of bets to display")
	showCmd.Flags().StringVar(&showOpts.Sport, "sport", "", "Only show bets for this sport key")
	showCmd.Flags().BoolVar(&showOpts.JSON, "json", false, "Print rows as JSON instead of a table")
}
