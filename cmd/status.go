package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print risk limits, today's budget and open positions",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Int("days", 0, "Also print this many days of budget history")
}

func runStatus(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("days")

	return withSession(func(s *session) error {
		st, err := s.app.Status(s.ctx)
		if err != nil {
			return fmt.Errorf("get status: %w", err)
		}
		err = printJSON(st)
		if err != nil || days <= 0 {
			return err
		}

		budgets, err := s.app.Budgets(s.ctx, days)
		if err != nil {
			return fmt.Errorf("list budgets: %w", err)
		}
		return printJSON(budgets)
	})
}
