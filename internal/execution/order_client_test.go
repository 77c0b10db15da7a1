package execution

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func newTestOrderClient(t *testing.T, baseURL string) *OrderClient {
	t.Helper()
	c, err := NewOrderClient(&OrderClientConfig{
		BaseURL:    baseURL,
		APIKey:     "api-key",
		Secret:     base64.URLEncoding.EncodeToString([]byte("test-secret")),
		Passphrase: "pass",
		PrivateKey: testPrivateKey,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

func TestNewOrderClient_RequiresCredentials(t *testing.T) {
	_, err := NewOrderClient(&OrderClientConfig{PrivateKey: testPrivateKey, Logger: zap.NewNop()})
	assert.Error(t, err)

	_, err = NewOrderClient(&OrderClientConfig{
		APIKey: "k", Secret: "s", Passphrase: "p", PrivateKey: "not-hex", Logger: zap.NewNop(),
	})
	assert.Error(t, err)
}

func TestOrderClient_PlaceMarketOrder(t *testing.T) {
	var client *OrderClient
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		wantSig, err := client.sign("1700000000", http.MethodPost, "/order", body)
		assert.NoError(t, err)
		assert.Equal(t, wantSig, r.Header.Get("POLY_SIGNATURE"))
		assert.Equal(t, "api-key", r.Header.Get("POLY_API_KEY"))
		assert.Equal(t, "1700000000", r.Header.Get("POLY_TIMESTAMP"))
		assert.Equal(t, "pass", r.Header.Get("POLY_PASSPHRASE"))
		assert.Equal(t, client.Address(), r.Header.Get("POLY_ADDRESS"))

		var sub types.OrderSubmissionRequest
		assert.NoError(t, json.Unmarshal(body, &sub))
		assert.Equal(t, "FOK", sub.OrderType)
		assert.Equal(t, "api-key", sub.Owner)
		assert.Equal(t, "BUY", sub.Order.Side)
		assert.Equal(t, "tok-1", sub.Order.TokenID)
		assert.Equal(t, "10000000", sub.Order.MakerAmount)
		assert.Equal(t, "25000000", sub.Order.TakerAmount)
		assert.NotEqual(t, "0x", sub.Order.Signature)

		_, _ = w.Write([]byte(`{"success":true,"orderId":"0xorder","status":"matched"}`))
	}))
	defer srv.Close()
	client = newTestOrderClient(t, srv.URL)

	res, err := client.PlaceMarketOrder(context.Background(), OrderRequest{
		TokenID: "tok-1", Side: types.SideBuy, Amount: 10, Price: 0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xorder", res.OrderID)
	assert.Equal(t, 10.0, res.Size)
	assert.Equal(t, 25.0, res.Shares)
	assert.False(t, res.Paper)
}

func TestOrderClient_PlaceMarketOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"errorMsg":"order couldn't be fully filled. FOK_ORDER_NOT_FILLED_ERROR"}`))
	}))
	defer srv.Close()
	client := newTestOrderClient(t, srv.URL)

	_, err := client.PlaceMarketOrder(context.Background(), OrderRequest{
		TokenID: "tok-1", Side: types.SideBuy, Amount: 10, Price: 0.4,
	})

	var orderErr *types.OrderError
	require.True(t, errors.As(err, &orderErr))
	assert.Equal(t, types.ErrCodeFOKNotFilled, orderErr.Code)
}

func TestOrderClient_InvalidRequestNeverSent(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()
	client := newTestOrderClient(t, srv.URL)

	for _, req := range []OrderRequest{
		{TokenID: "t", Side: types.SideBuy, Amount: 10, Price: 0},
		{TokenID: "t", Side: types.SideBuy, Amount: 10, Price: 1},
		{TokenID: "t", Side: types.SideBuy, Amount: 0, Price: 0.5},
	} {
		_, err := client.PlaceMarketOrder(context.Background(), req)
		assert.Error(t, err)
	}
	assert.False(t, called)
}

func TestOrderClient_SellAmounts(t *testing.T) {
	client := newTestOrderClient(t, "http://unused")

	data, err := client.buildOrderData(OrderRequest{TokenID: "t", Side: types.SideSell, Amount: 20, Price: 0.35})
	require.NoError(t, err)
	assert.Equal(t, "20000000", data.MakerAmount)
	assert.Equal(t, "7000000", data.TakerAmount)
}

func TestOrderClient_Balance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/balance-allowance", r.URL.Path)
		assert.Equal(t, "COLLATERAL", r.URL.Query().Get("asset_type"))
		assert.Equal(t, "0", r.URL.Query().Get("signature_type"))
		_, _ = w.Write([]byte(`{"balance":"31250000","allowances":{"0xexchange":"1000000000"}}`))
	}))
	defer srv.Close()
	client := newTestOrderClient(t, srv.URL)

	b, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 31.25, b.Available)
	assert.Equal(t, 1000.0, b.Allowance)
}

func TestOrderClient_CancelOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		var req types.CancelOrderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.OrderID == "0xgone" {
			_, _ = w.Write([]byte(`{"canceled":[],"not_canceled":{"0xgone":"order already matched"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"canceled":["` + req.OrderID + `"],"not_canceled":{}}`))
	}))
	defer srv.Close()
	client := newTestOrderClient(t, srv.URL)

	assert.NoError(t, client.CancelOrder(context.Background(), "0xlive"))
	assert.Error(t, client.CancelOrder(context.Background(), "0xgone"))
}

func TestOrderClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()
	client := newTestOrderClient(t, srv.URL)

	_, err := client.Balance(context.Background())
	assert.Error(t, err)
}
