package cmd

import (
	"errors"
	"fmt"

	"github.com/mselser95/polymarket-autotrader/pkg/wallet"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check the trading balance",
	Long: `Prints the collateral balance of the execution provider: the simulated
balance in paper mode or the CLOB balance in live mode.

With --onchain the wallet is read directly from Polygon:
- MATIC balance (for gas)
- USDC balance (for trading)
- USDC allowance (approved to CTF Exchange)`,
	Args: cobra.NoArgs,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().Bool("onchain", false, "Read balances from the Polygon RPC endpoint")
	balanceCmd.Flags().StringP("rpc", "r", "", "Polygon RPC endpoint (default POLYGON_RPC_URL)")
	balanceCmd.Flags().String("address", "", "Wallet address (default proxy, then signer address)")
}

func runBalance(cmd *cobra.Command, args []string) error {
	onchain, _ := cmd.Flags().GetBool("onchain")

	return withSession(func(s *session) error {
		if onchain {
			return printOnchainBalance(cmd, s)
		}

		bal, err := s.app.Orders().Balance(s.ctx)
		if err != nil {
			return fmt.Errorf("get balance: %w", err)
		}
		fmt.Printf("=== %s balance ===\n\n", modeName(s.app.Orders().IsPaper()))
		fmt.Printf("Available: $%.2f\n", bal.Available)
		fmt.Printf("Allowance: $%.2f\n", bal.Allowance)
		return nil
	})
}

func printOnchainBalance(cmd *cobra.Command, s *session) error {
	rpcURL, _ := cmd.Flags().GetString("rpc")
	if rpcURL == "" {
		rpcURL = s.cfg.PolygonRPCURL
	}
	if rpcURL == "" {
		return errors.New("no RPC endpoint: set POLYGON_RPC_URL or --rpc")
	}

	address, _ := cmd.Flags().GetString("address")
	if address == "" {
		address = s.cfg.PolymarketProxy
	}
	if address == "" {
		address = s.cfg.PolymarketAddress
	}

	client, err := wallet.NewClient(&wallet.Config{RPCURL: rpcURL, Address: address, Logger: s.logger})
	if err != nil {
		return err
	}
	b, err := client.GetBalances(s.ctx)
	if err != nil {
		return err
	}

	fmt.Printf("=== Wallet Balance Sheet ===\n\n")
	fmt.Printf("Address: %s\n\n", client.Address().Hex())
	fmt.Printf("MATIC:          %.4f\n", wallet.ToFloat(b.MATIC, 18))
	fmt.Printf("USDC:           $%.2f\n", wallet.ToFloat(b.USDC, 6))
	fmt.Printf("USDC allowance: $%.2f\n", wallet.ToFloat(b.USDCAllowance, 6))
	return nil
}

func modeName(paper bool) string {
	if paper {
		return "Paper"
	}
	return "Live"
}
