// Package cmd implements the screen-machine command line interface.
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/gjbm2/screen-machine/internal/cmn/config"
	"github.com/gjbm2/screen-machine/internal/cmn/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "screen-machine",
	Short: "Multi-tenant action scheduler for display destinations",
	Long: `screen-machine runs one cooperative scheduler per destination,
executing declarative schedules of timed triggers, events, and actions.`,
	SilenceUsage: true,
}

// Execute runs the CLI. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $XDG_CONFIG_HOME/screen-machine/screen-machine.yaml)")

	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(pauseCmd())
	rootCmd.AddCommand(unpauseCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(unloadCmd())
	rootCmd.AddCommand(throwCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(versionCmd())
}

// cmdContext loads configuration and attaches a configured logger to the
// command's context.
func cmdContext(cmd *cobra.Command) (context.Context, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	opts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if cfg.Debug {
		opts = append(opts, logger.WithDebug())
	}
	if cfg.Quiet {
		opts = append(opts, logger.WithQuiet())
	}
	return logger.WithLogger(cmd.Context(), logger.NewLogger(opts...)), cfg, nil
}
