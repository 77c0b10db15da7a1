// Package wallet reads the trading wallet's on-chain balances on Polygon.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	polygonUSDC        = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	polygonCTFExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

	erc20ABI = `[
		{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
		{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}
	]`

	usdcDecimals  = 6
	maticDecimals = 18
)

// Client reads balances over JSON-RPC.
type Client struct {
	rpcURL  string
	address common.Address
	token   common.Address
	spender common.Address
	erc20   abi.ABI
	logger  *zap.Logger
}

// Config holds wallet client configuration.
type Config struct {
	RPCURL  string
	Address string
	// Token defaults to Polygon USDC.e.
	Token string
	// Spender defaults to the CTF exchange.
	Spender string
	Logger  *zap.Logger
}

// Balances holds on-chain token balances.
type Balances struct {
	MATIC         *big.Int // in wei
	USDC          *big.Int // in 6-decimal units
	USDCAllowance *big.Int // in 6-decimal units
}

// NewClient creates a new wallet client.
func NewClient(cfg *Config) (*Client, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("config cannot be nil")
	case cfg.RPCURL == "":
		return nil, errors.New("rpcURL cannot be empty")
	case cfg.Logger == nil:
		return nil, errors.New("logger cannot be nil")
	case !common.IsHexAddress(cfg.Address):
		return nil, fmt.Errorf("invalid wallet address %q", cfg.Address)
	}

	token := cfg.Token
	if token == "" {
		token = polygonUSDC
	}
	spender := cfg.Spender
	if spender == "" {
		spender = polygonCTFExchange
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	return &Client{
		rpcURL:  cfg.RPCURL,
		address: common.HexToAddress(cfg.Address),
		token:   common.HexToAddress(token),
		spender: common.HexToAddress(spender),
		erc20:   parsed,
		logger:  cfg.Logger,
	}, nil
}

// Address returns the wallet address.
func (c *Client) Address() common.Address {
	return c.address
}

// GetBalances fetches MATIC, USDC and the USDC allowance granted to the exchange.
func (c *Client) GetBalances(ctx context.Context) (*Balances, error) {
	start := time.Now()
	defer func() {
		UpdateDuration.Observe(time.Since(start).Seconds())
	}()

	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		UpdateErrorsTotal.Inc()
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	matic, err := client.BalanceAt(ctx, c.address, nil)
	if err != nil {
		UpdateErrorsTotal.Inc()
		return nil, fmt.Errorf("get MATIC balance: %w", err)
	}

	usdc, err := c.call(ctx, client, "balanceOf", c.address)
	if err != nil {
		UpdateErrorsTotal.Inc()
		return nil, fmt.Errorf("get USDC balance: %w", err)
	}

	allowance, err := c.call(ctx, client, "allowance", c.address, c.spender)
	if err != nil {
		UpdateErrorsTotal.Inc()
		return nil, fmt.Errorf("get USDC allowance: %w", err)
	}

	balances := &Balances{MATIC: matic, USDC: usdc, USDCAllowance: allowance}
	c.updateMetrics(balances)
	return balances, nil
}

// Balance reports the USDC balance and allowance in dollars. It satisfies
// the circuit breaker's balance source.
func (c *Client) Balance(ctx context.Context) (*types.Balance, error) {
	b, err := c.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	return &types.Balance{
		Available: ToFloat(b.USDC, usdcDecimals),
		Allowance: ToFloat(b.USDCAllowance, usdcDecimals),
	}, nil
}

// call invokes a uint256-returning ERC20 view method.
func (c *Client) call(ctx context.Context, client *ethclient.Client, method string, args ...interface{}) (*big.Int, error) {
	data, err := c.erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	return new(big.Int).SetBytes(result), nil
}

func (c *Client) updateMetrics(b *Balances) {
	MATICBalance.Set(ToFloat(b.MATIC, maticDecimals))
	USDCBalance.Set(ToFloat(b.USDC, usdcDecimals))
	USDCAllowance.Set(ToFloat(b.USDCAllowance, usdcDecimals))
	LastUpdateTimestamp.Set(float64(time.Now().Unix()))

	c.logger.Debug("wallet-balances-fetched",
		zap.String("address", c.address.Hex()),
		zap.String("usdc", decimal.NewFromBigInt(b.USDC, -usdcDecimals).StringFixed(2)))
}

// ToFloat converts integer token units to a float with the given decimals.
func ToFloat(v *big.Int, decimals int32) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, -decimals).InexactFloat64()
}
