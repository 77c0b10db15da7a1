package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var cancelOrderCmd = &cobra.Command{
	Use:   "cancel-order <order-id>...",
	Short: "Cancel open orders on Polymarket",
	Long: `Cancels the given live orders. Paper orders fill immediately and cannot be
cancelled.

Example:
  go run . cancel-order 0xabc... 0xdef...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCancelOrder,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(cancelOrderCmd)
}

func runCancelOrder(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		if s.app.Orders().IsPaper() {
			return errors.New("cancel-order requires EXECUTION_MODE=live")
		}

		var failed int
		for _, id := range args {
			err := s.app.Orders().Cancel(s.ctx, id)
			if err != nil {
				failed++
				fmt.Printf("✗ %s: %v\n", id, err)
				continue
			}
			fmt.Printf("✓ %s cancelled\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d cancellations failed", failed, len(args))
		}
		return nil
	})
}
