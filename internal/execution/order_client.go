package execution

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	polygonChainID = 137
	zeroAddress    = "0x0000000000000000000000000000000000000000"
)

// OrderClient signs orders with the wallet key and submits them to the CLOB
// with L2 (HMAC) authentication.
type OrderClient struct {
	baseURL       string
	apiKey        string
	secret        string
	passphrase    string
	privateKey    *ecdsa.PrivateKey
	address       string // EOA address (signer)
	proxyAddress  string // Proxy address (maker/funder)
	signatureType model.SignatureType
	orderBuilder  builder.ExchangeOrderBuilder
	httpClient    *http.Client
	logger        *zap.Logger
	now           func() time.Time
}

// OrderClientConfig holds configuration for the order client.
type OrderClientConfig struct {
	BaseURL       string
	APIKey        string
	Secret        string
	Passphrase    string
	PrivateKey    string
	Address       string
	ProxyAddress  string
	SignatureType int
	Timeout       time.Duration
	Logger        *zap.Logger
}

// NewOrderClient creates a live order client.
func NewOrderClient(cfg *OrderClientConfig) (*OrderClient, error) {
	if cfg.APIKey == "" || cfg.Secret == "" || cfg.Passphrase == "" {
		return nil, fmt.Errorf("live execution requires API key, secret and passphrase")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	address := cfg.Address
	if address == "" {
		publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("derive address: unexpected public key type")
		}
		address = crypto.PubkeyToAddress(*publicKeyECDSA).Hex()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OrderClient{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		secret:        cfg.Secret,
		passphrase:    cfg.Passphrase,
		privateKey:    privateKey,
		address:       address,
		proxyAddress:  cfg.ProxyAddress,
		signatureType: model.SignatureType(cfg.SignatureType),
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
		httpClient:    &http.Client{Timeout: timeout},
		logger:        cfg.Logger,
		now:           time.Now,
	}, nil
}

// Address returns the signer address.
func (c *OrderClient) Address() string {
	return c.address
}

// IsPaper returns false.
func (c *OrderClient) IsPaper() bool {
	return false
}

// toRawAmount converts a USD or share amount to 6-decimal integer units.
func toRawAmount(v decimal.Decimal) string {
	return v.Shift(collateralDecimals).Truncate(0).String()
}

// buildOrderData computes maker/taker amounts. A BUY gives USD for shares,
// a SELL gives shares for USD.
func (c *OrderClient) buildOrderData(req OrderRequest) (*model.OrderData, error) {
	if req.Price <= 0 || req.Price >= 1 {
		return nil, fmt.Errorf("price %.4f outside (0,1)", req.Price)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	maker := c.address
	if c.proxyAddress != "" {
		maker = c.proxyAddress
	}

	amount := decimal.NewFromFloat(req.Amount)
	price := decimal.NewFromFloat(req.Price)

	data := &model.OrderData{
		Maker:         maker,
		Taker:         zeroAddress,
		TokenId:       req.TokenID,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.address,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}

	if req.Side == types.SideSell {
		data.Side = model.SELL
		data.MakerAmount = toRawAmount(amount)
		data.TakerAmount = toRawAmount(amount.Mul(price))
	} else {
		data.Side = model.BUY
		data.MakerAmount = toRawAmount(amount)
		data.TakerAmount = toRawAmount(amount.Div(price))
	}
	return data, nil
}

// PlaceMarketOrder signs and submits an order, fill-or-kill unless the
// request names another order type.
func (c *OrderClient) PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	data, err := c.buildOrderData(req)
	if err != nil {
		return nil, &types.OrderError{Code: types.ErrCodeRejected, Message: err.Error(), Side: string(req.Side)}
	}

	signed, err := c.orderBuilder.BuildSignedOrder(c.privateKey, data, model.CTFExchange)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = OrderTypeFOK
	}

	body, err := json.Marshal(types.OrderSubmissionRequest{
		Order:     signedOrderJSON(signed, req.Side),
		Owner:     c.apiKey,
		OrderType: orderType,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/order", nil, body)
	if err != nil {
		return nil, &types.OrderError{Code: types.ErrCodeRejected, Message: err.Error(), Side: string(req.Side)}
	}

	var resp types.OrderSubmissionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if !resp.Success {
		return nil, &types.OrderError{
			Code:    orderErrorCode(resp.ErrorMsg),
			Message: resp.ErrorMsg,
			OrderID: resp.OrderID,
			Side:    string(req.Side),
		}
	}

	size, shares := fill(req)
	c.logger.Info("live-order-placed",
		zap.String("order-id", resp.OrderID),
		zap.String("status", resp.Status),
		zap.String("token-id", req.TokenID),
		zap.String("side", string(req.Side)),
		zap.Float64("price", req.Price),
		zap.Float64("size", size))

	return &OrderResult{
		OrderID: resp.OrderID,
		Status:  resp.Status,
		Price:   req.Price,
		Size:    size,
		Shares:  shares,
	}, nil
}

func orderErrorCode(msg string) string {
	for _, code := range []string{types.ErrCodeNotEnoughBalance, types.ErrCodeFOKNotFilled, types.ErrCodeMarketNotReady} {
		if strings.Contains(msg, code) {
			return code
		}
	}
	return types.ErrCodeRejected
}

func signedOrderJSON(order *model.SignedOrder, side types.Side) types.SignedOrderJSON {
	return types.SignedOrderJSON{
		Salt:          order.Salt.Int64(),
		Maker:         order.Maker.Hex(),
		Signer:        order.Signer.Hex(),
		Taker:         order.Taker.Hex(),
		TokenID:       order.TokenId.String(),
		MakerAmount:   order.MakerAmount.String(),
		TakerAmount:   order.TakerAmount.String(),
		Side:          string(side),
		Expiration:    order.Expiration.String(),
		Nonce:         order.Nonce.String(),
		FeeRateBps:    order.FeeRateBps.String(),
		SignatureType: int(order.SignatureType.Int64()),
		Signature:     "0x" + common.Bytes2Hex(order.Signature),
	}
}

// CancelOrder cancels a resting order.
func (c *OrderClient) CancelOrder(ctx context.Context, orderID string) error {
	body, err := json.Marshal(types.CancelOrderRequest{OrderID: orderID})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodDelete, "/order", nil, body)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	var resp types.CancelOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if reason, ok := resp.NotCanceled[orderID]; ok {
		return fmt.Errorf("order %s not cancelled: %s", orderID, reason)
	}

	c.logger.Info("order-cancelled", zap.String("order-id", orderID))
	return nil
}

// Balance returns the collateral balance and exchange allowance.
func (c *OrderClient) Balance(ctx context.Context) (*types.Balance, error) {
	params := url.Values{}
	params.Set("asset_type", "COLLATERAL")
	params.Set("signature_type", strconv.Itoa(int(c.signatureType)))

	respBody, err := c.do(ctx, http.MethodGet, "/balance-allowance", params, nil)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return NormalizeBalance(respBody)
}

// sign computes the L2 HMAC over timestamp, method, path and body.
func (c *OrderClient) sign(timestamp, method, path string, body []byte) (string, error) {
	secret, err := base64.URLEncoding.DecodeString(c.secret)
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(timestamp + method + path + string(body)))
	return base64.URLEncoding.EncodeToString(h.Sum(nil)), nil
}

func (c *OrderClient) do(ctx context.Context, method, path string, params url.Values, body []byte) ([]byte, error) {
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	signature, err := c.sign(timestamp, method, path, body)
	if err != nil {
		return nil, err
	}

	requestURL := c.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", c.apiKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.passphrase)
	req.Header.Set("POLY_ADDRESS", c.address)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	RequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
