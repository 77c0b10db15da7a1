package cmd

import (
	"fmt"

	"github.com/mselser95/polymarket-autotrader/internal/app"
	"github.com/mselser95/polymarket-autotrader/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the auto-trader service",
	Long: `Starts the HTTP API, the websocket event stream and the arbitrage resolver.
Strategy loops start when their *_AUTO_START setting is true or when the
matching flag is given; they can also be started later through the API:

  POST /api/loops/{ai-trading|arbitrage-scan|copy-trade}/start`,
	Args: cobra.NoArgs,
	RunE: runService,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("trading", false, "Start the AI trading loop")
	runCmd.Flags().Bool("arbitrage", false, "Start the arbitrage scan loop")
	runCmd.Flags().Bool("copy", false, "Start the copy-trading loop")
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	applyAutoStartFlags(cmd, cfg)

	application, err := app.New(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}

// applyAutoStartFlags lets flags turn loops on; they never turn a configured loop off.
func applyAutoStartFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetBool("trading"); v {
		cfg.TradingAutoStart = true
	}
	if v, _ := cmd.Flags().GetBool("arbitrage"); v {
		cfg.ArbAutoStart = true
	}
	if v, _ := cmd.Flags().GetBool("copy"); v {
		cfg.CopyAutoStart = true
	}
}
