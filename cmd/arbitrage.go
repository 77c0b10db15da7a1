package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one arbitrage scan and list active opportunities",
	Long: `Scans active markets (and events, with ARB_MULTI_OUTCOME=true) for outcome
sets whose prices sum below 1.0, stores what it finds and prints the active
opportunities ordered by spread.

Example:
  go run . scan --limit 10`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

//nolint:gochecknoglobals // Cobra boilerplate
var executeSpreadCmd = &cobra.Command{
	Use:   "execute-spread <opportunity-id>",
	Short: "Buy every outcome of an arbitrage opportunity",
	Long: `Splits the investment evenly across the opportunity's outcomes and buys each
one. The trade is held until its markets close and then settled by the resolver.

Example:
  go run . execute-spread 42 --amount 20`,
	Args: cobra.ExactArgs(1),
	RunE: runExecuteSpread,
}

//nolint:gochecknoglobals // Cobra boilerplate
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Settle every open spread trade whose markets have closed",
	Args:  cobra.NoArgs,
	RunE:  runResolve,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(executeSpreadCmd)
	rootCmd.AddCommand(resolveCmd)

	scanCmd.Flags().IntP("limit", "l", 20, "Maximum opportunities to print")
	executeSpreadCmd.Flags().Float64P("amount", "a", 0, "Total USD to invest (default ARB_DEFAULT_INVESTMENT)")
}

func runScan(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	return withSession(func(s *session) error {
		res, err := s.app.Scan(s.ctx)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}

		fmt.Printf("Scanned %d markets and %d events in %dms: %d found (%d new, %d updated, %d deactivated)\n\n",
			res.Markets, res.Events, res.DurationMS, res.Found, res.Inserted, res.Updated, res.Deactivated)

		spreads, err := s.app.Spreads(s.ctx, limit)
		if err != nil {
			return fmt.Errorf("list spreads: %w", err)
		}
		printSpreads(spreads)
		return nil
	})
}

func printSpreads(spreads []types.SpreadOpportunity) {
	if len(spreads) == 0 {
		fmt.Println("No active opportunities.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSPREAD\tCOST\tLIQUIDITY\tOUTCOMES\tTITLE")
	for _, o := range spreads {
		fmt.Fprintf(w, "%d\t%s\t%.2f%%\t%.4f\t%.0f\t%d\t%s\n",
			o.ID, o.Type, o.SpreadPct*100, o.TotalCost, o.Liquidity, len(o.Outcomes), truncate(o.Title, 60))
	}
	_ = w.Flush()
}

func runExecuteSpread(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid opportunity id %q: %w", args[0], err)
	}
	amount, _ := cmd.Flags().GetFloat64("amount")

	return withSession(func(s *session) error {
		trade, err := s.app.ExecuteSpread(s.ctx, id, amount)
		if err != nil {
			return fmt.Errorf("execute spread %d: %w", id, err)
		}
		return printJSON(trade)
	})
}

func runResolve(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		out, err := s.app.ResolveSpreads(s.ctx)
		if err != nil {
			return fmt.Errorf("resolve spreads: %w", err)
		}
		fmt.Printf("Checked %d, resolved %d, pending %d, still open %d\n",
			out.Checked, out.Resolved, out.Pending, out.Open)
		return nil
	})
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
