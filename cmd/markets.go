package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "Manage the markets watched by the AI trading loop",
}

//nolint:gochecknoglobals // Cobra boilerplate
var marketsAddCmd = &cobra.Command{
	Use:   "add <condition-id>...",
	Short: "Start monitoring YES/NO markets",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMarketsAdd,
}

//nolint:gochecknoglobals // Cobra boilerplate
var marketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored markets",
	Args:  cobra.NoArgs,
	RunE:  runMarketsList,
}

//nolint:gochecknoglobals // Cobra boilerplate
var marketsRemoveCmd = &cobra.Command{
	Use:   "remove <market-id>",
	Short: "Stop monitoring a market",
	Args:  cobra.ExactArgs(1),
	RunE:  runMarketsRemove,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(marketsCmd)
	marketsCmd.AddCommand(marketsAddCmd, marketsListCmd, marketsRemoveCmd)
}

func runMarketsAdd(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		for _, conditionID := range args {
			m, err := s.app.AddMarket(s.ctx, conditionID)
			if err != nil {
				return fmt.Errorf("add %s: %w", conditionID, err)
			}
			fmt.Printf("Monitoring market %d: %s\n", m.ID, m.Question)
		}
		return nil
	})
}

func runMarketsList(cmd *cobra.Command, args []string) error {
	return withSession(func(s *session) error {
		markets, err := s.app.Markets(s.ctx)
		if err != nil {
			return fmt.Errorf("list markets: %w", err)
		}
		if len(markets) == 0 {
			fmt.Println("No monitored markets.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEND DATE\tLAST ANALYZED\tQUESTION")
		for _, m := range markets {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.ID, formatTime(m.EndDate), formatTime(m.LastAnalyzedAt), truncate(m.Question, 70))
		}
		_ = w.Flush()
		return nil
	})
}

func runMarketsRemove(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid market id %q: %w", args[0], err)
	}

	return withSession(func(s *session) error {
		err := s.app.RemoveMarket(s.ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("Market %d deactivated\n", id)
		return nil
	})
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
