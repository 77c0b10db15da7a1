package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAddress = "0x1111111111111111111111111111111111111111"

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newRPCServer answers eth_getBalance and the two ERC20 views by selector.
func newRPCServer(t *testing.T, matic, usdc, allowance *big.Int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var result string
		switch req.Method {
		case "eth_getBalance":
			result = fmt.Sprintf("0x%x", matic)
		case "eth_call":
			var call map[string]string
			_ = json.Unmarshal(req.Params[0], &call)
			data := call["input"]
			if data == "" {
				data = call["data"]
			}
			switch {
			case strings.HasPrefix(data, "0x70a08231"):
				result = fmt.Sprintf("0x%064x", usdc)
			case strings.HasPrefix(data, "0xdd62ed3e"):
				result = fmt.Sprintf("0x%064x", allowance)
			default:
				t.Errorf("unexpected call data %q", data)
			}
		default:
			t.Errorf("unexpected method %q", req.Method)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, req.ID, result)
	}))
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "nil-config", cfg: nil, wantErr: "config cannot be nil"},
		{name: "missing-rpc", cfg: &Config{Address: testAddress, Logger: zap.NewNop()}, wantErr: "rpcURL"},
		{name: "missing-logger", cfg: &Config{RPCURL: "http://x", Address: testAddress}, wantErr: "logger"},
		{name: "bad-address", cfg: &Config{RPCURL: "http://x", Address: "nope", Logger: zap.NewNop()}, wantErr: "invalid wallet address"},
		{name: "valid", cfg: &Config{RPCURL: "http://x", Address: testAddress, Logger: zap.NewNop()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, strings.ToLower(testAddress), strings.ToLower(client.Address().Hex()))
		})
	}
}

func TestClient_Balance(t *testing.T) {
	matic, _ := new(big.Int).SetString("2500000000000000000", 10)
	server := newRPCServer(t, matic, big.NewInt(123_450_000), big.NewInt(1_000_000_000))
	defer server.Close()

	client, err := NewClient(&Config{RPCURL: server.URL, Address: testAddress, Logger: zap.NewNop()})
	require.NoError(t, err)

	balances, err := client.GetBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, matic.Cmp(balances.MATIC))
	assert.Equal(t, int64(123_450_000), balances.USDC.Int64())

	balance, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 123.45, balance.Available, 1e-9)
	assert.InDelta(t, 1000.0, balance.Allowance, 1e-9)
}

func TestClient_BalanceRPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(&Config{RPCURL: server.URL, Address: testAddress, Logger: zap.NewNop()})
	require.NoError(t, err)

	_, err = client.Balance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MATIC")
}

func TestToFloat(t *testing.T) {
	assert.InDelta(t, 1.5, ToFloat(big.NewInt(1_500_000), 6), 1e-12)
	assert.Zero(t, ToFloat(nil, 6))
}
