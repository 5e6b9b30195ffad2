package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"plus-ev-alerts/internal/app"
	"plus-ev-alerts/internal/config"
	"plus-ev-alerts/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "evwatcher",
	Short:         "Find positive expected value moneyline bets across sportsbooks",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// version needs no configuration
		if appHandle != nil || cmd == versionCmd {
			return nil
		}
		a, err := loadApp(cfgFile, logLevel)
		if err != nil {
			return err
		}
		appHandle = a
		return nil
	},
}

func loadApp(path, level string) (*app.App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if level != "" {
		cfg.Logging.Level = level
	}
	logger := logging.NewLogger(cfg.Logging).With().Str("app", cfg.App.Name).Str("env", cfg.App.Environment).Logger()
	return app.NewApp(cfg, logger), nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "evwatcher:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(
		runCmd,
		evaluateCmd,
		ingestCmd,
		showCmd,
		exportCmd,
		serveCmd,
		simulateCmd,
		migrateCmd,
		versionCmd,
	)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
