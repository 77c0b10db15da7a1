package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var snipeCmd = &cobra.Command{
	Use:   "snipe",
	Short: "Copy the leaderboard's largest open positions",
	Long: `Aggregates recent BUY activity of the top traders, ranks the positions by
size and copies each one not already held with COPY_SNIPE_SIZE USD, until the
daily budget runs out.`,
	Args: cobra.NoArgs,
	RunE: runSnipe,
}

//nolint:gochecknoglobals // Cobra boilerplate
var checkSnipesCmd = &cobra.Command{
	Use:   "check-snipes",
	Short: "Close copied positions that reached their profit target",
	Args:  cobra.NoArgs,
	RunE:  runCheckSnipes,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(snipeCmd)
	rootCmd.AddCommand(checkSnipesCmd)
}

func runSnipe(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		res, err := s.app.Snipe(s.ctx)
		if err != nil {
			return fmt.Errorf("snipe: %w", err)
		}
		fmt.Printf("Candidates %d, copied %d, skipped %d, failed %d\n",
			res.Candidates, len(res.Copied), res.Skipped, res.Failed)
		if res.BudgetExhausted {
			fmt.Println("Stopped early: daily budget exhausted.")
		}
		return nil
	})
}

func runCheckSnipes(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		res := s.app.CheckSnipes(s.ctx)
		fmt.Printf("Checked %d, closed %d, expired %d, errors %d, realized P&L $%.2f\n",
			res.Checked, res.Closed, res.Expired, res.Errors, res.RealizedPnL)
		return nil
	})
}
