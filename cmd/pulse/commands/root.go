// Package commands wires the pulse CLI.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/okian/pulse/internal/config"
	"github.com/okian/pulse/pkg/logger"
	"github.com/okian/pulse/pkg/metrics"
)

var cfg *config.Config

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Pulse - organizational health measurement pipeline",
	Long: `Pulse turns noisy weekly self-report signals into privacy-safe,
explainable organizational health indices. It tracks per-employee latent
states with a recursive Bayesian estimator and publishes k-anonymity-gated
team aggregates with full audit breakdowns.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := logger.Init(); err != nil {
			return err
		}
		c, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		if err := logger.SetLevelString(c.LogLevel); err != nil {
			logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
				logger.String("log_level", c.LogLevel))
		}
		metrics.Init()
		cfg = c
		return nil
	},
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}
