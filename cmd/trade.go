package cmd

import (
	"fmt"
	"strconv"

	"github.com/mselser95/polymarket-autotrader/pkg/httpserver"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var tradeCmd = &cobra.Command{
	Use:   "trade <market-id> <yes|no> <size>",
	Short: "Buy an outcome on a monitored market through the risk gate",
	Long: `Places a manual BUY on a monitored market. The order passes the same risk
checks as the AI loop; the size may be reduced to fit the limits.

Example:
  go run . trade 3 yes 5 --confidence 0.8`,
	Args: cobra.ExactArgs(3),
	RunE: runTrade,
}

//nolint:gochecknoglobals // Cobra boilerplate
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one AI trading cycle over the monitored markets",
	Args:  cobra.NoArgs,
	RunE:  runCycle,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(tradeCmd)
	rootCmd.AddCommand(cycleCmd)

	tradeCmd.Flags().Float64P("confidence", "c", 0, "Confidence checked against min_confidence (default 1.0)")
}

func runTrade(cmd *cobra.Command, args []string) error {
	marketID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid market id %q: %w", args[0], err)
	}
	size, err := strconv.ParseFloat(args[2], 64)
	if err != nil || size <= 0 {
		return fmt.Errorf("invalid size %q", args[2])
	}
	confidence, _ := cmd.Flags().GetFloat64("confidence")

	return withSession(func(s *session) error {
		trade, err := s.app.Trade(s.ctx, httpserver.TradeRequest{
			MarketID:   marketID,
			Outcome:    args[1],
			Size:       size,
			Confidence: confidence,
		})
		if err != nil {
			return fmt.Errorf("trade: %w", err)
		}
		return printJSON(trade)
	})
}

func runCycle(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		return printJSON(s.app.RunTradingCycle(s.ctx))
	})
}
