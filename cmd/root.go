package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "polymarket-autotrader",
	Short: "Polymarket auto-trader",
	Long: `Polymarket auto-trader running three strategies against shared risk limits:

- an AI trading loop that asks an LLM for decisions on monitored markets
- an arbitrage scanner that buys every outcome when prices sum below 1.0
- a copy-trader that mirrors the leaderboard's largest positions

All strategies draw on one daily budget stored with the risk config.
Orders are paper-simulated unless EXECUTION_MODE=live.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; the environment may already be set.
		_ = godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
