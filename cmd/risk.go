package cmd

import (
	"errors"
	"fmt"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

//nolint:gochecknoglobals // Cobra boilerplate
var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Show or change the risk limits shared by every strategy",
	Long: `Risk limits live in the store, not in the environment. Until they are set
no strategy places orders.`,
}

//nolint:gochecknoglobals // Cobra boilerplate
var riskShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current risk limits",
	Args:  cobra.NoArgs,
	RunE:  runRiskShow,
}

//nolint:gochecknoglobals // Cobra boilerplate
var riskSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set risk limits",
	Long: `Updates the given limits and keeps the rest. The first time, every limit
must be given.

Example:
  go run . risk set --max-bet 10 --daily-budget 50 --max-open 5 \
    --min-confidence 0.65 --max-exposure 25 --cooldown 30 --trading-enabled`,
	Args: cobra.NoArgs,
	RunE: runRiskSet,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(riskCmd)
	riskCmd.AddCommand(riskShowCmd, riskSetCmd)

	f := riskSetCmd.Flags()
	f.Float64("max-bet", 0, "Maximum USD per order")
	f.Float64("daily-budget", 0, "USD that may be spent per UTC day")
	f.Int("max-open", 0, "Maximum open AI trades")
	f.Float64("min-confidence", 0, "Minimum advisor confidence in [0, 1]")
	f.Float64("max-exposure", 0, "Maximum USD held in one market")
	f.Int("cooldown", 0, "Minutes between analyses of the same market")
	f.Bool("trading-enabled", false, "Allow the AI loop to trade")
}

func runRiskShow(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		cfg, err := s.app.RiskConfig(s.ctx)
		if errors.Is(err, types.ErrRiskConfigMissing) {
			fmt.Println("No risk config set. Trading is blocked until `risk set` is run.")
			return nil
		}
		if err != nil {
			return err
		}
		return printJSON(cfg)
	})
}

func runRiskSet(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		base, err := s.app.RiskConfig(s.ctx)
		if errors.Is(err, types.ErrRiskConfigMissing) {
			base = &types.RiskConfig{}
		} else if err != nil {
			return err
		}

		cfg := riskFromFlags(cmd.Flags(), base)
		err = s.app.SetRiskConfig(s.ctx, cfg)
		if err != nil {
			return err
		}
		return printJSON(cfg)
	})
}

// riskFromFlags overlays the flags that were set onto a copy of base.
func riskFromFlags(f *pflag.FlagSet, base *types.RiskConfig) *types.RiskConfig {
	cfg := *base
	if f.Changed("max-bet") {
		cfg.MaxBetSize, _ = f.GetFloat64("max-bet")
	}
	if f.Changed("daily-budget") {
		cfg.DailyBudget, _ = f.GetFloat64("daily-budget")
	}
	if f.Changed("max-open") {
		cfg.MaxOpenPositions, _ = f.GetInt("max-open")
	}
	if f.Changed("min-confidence") {
		cfg.MinConfidence, _ = f.GetFloat64("min-confidence")
	}
	if f.Changed("max-exposure") {
		cfg.MaxMarketExposure, _ = f.GetFloat64("max-exposure")
	}
	if f.Changed("cooldown") {
		cfg.AnalysisCooldownMinutes, _ = f.GetInt("cooldown")
	}
	if f.Changed("trading-enabled") {
		cfg.TradingEnabled, _ = f.GetBool("trading-enabled")
	}
	return &cfg
}
