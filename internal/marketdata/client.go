// Package marketdata is the pull-based market-data provider: Gamma for
// markets and events, CLOB for quotes and price history, and the data API for
// trader leaderboards and activity.
package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

const (
	// MaxBatchSize is the maximum number of rows Gamma returns per request.
	MaxBatchSize = 100

	userAgent = "polymarket-autotrader/1.0"
)

// ClientConfig holds API endpoints.
type ClientConfig struct {
	GammaURL string
	CLOBURL  string
	DataURL  string
	Timeout  time.Duration
}

// Client talks to the Polymarket public APIs.
type Client struct {
	gammaURL   string
	clobURL    string
	dataURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a market-data client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		gammaURL: strings.TrimRight(cfg.GammaURL, "/"),
		clobURL:  strings.TrimRight(cfg.CLOBURL, "/"),
		dataURL:  strings.TrimRight(cfg.DataURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *Client) getJSON(ctx context.Context, api, endpoint string, params url.Values, out interface{}) error {
	requestURL := endpoint
	if len(params) > 0 {
		requestURL = fmt.Sprintf("%s?%s", endpoint, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	RequestDuration.WithLabelValues(api).Observe(time.Since(start).Seconds())
	if err != nil {
		RequestsTotal.WithLabelValues(api, "error").Inc()
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		RequestsTotal.WithLabelValues(api, "error").Inc()
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		RequestsTotal.WithLabelValues(api, "not_found").Inc()
		return fmt.Errorf("%s: %w", requestURL, types.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		RequestsTotal.WithLabelValues(api, "error").Inc()
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		RequestsTotal.WithLabelValues(api, "error").Inc()
		return fmt.Errorf("unmarshal response: %w", err)
	}

	RequestsTotal.WithLabelValues(api, "success").Inc()
	return nil
}

// GetMarket fetches one market by condition id.
func (c *Client) GetMarket(ctx context.Context, conditionID string) (*types.Market, error) {
	params := url.Values{}
	params.Set("condition_ids", conditionID)
	params.Set("limit", "1")

	var markets []types.Market
	if err := c.getJSON(ctx, "gamma", c.gammaURL+"/markets", params, &markets); err != nil {
		return nil, fmt.Errorf("get market %s: %w", conditionID, err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("market %s: %w", conditionID, types.ErrNotFound)
	}
	return &markets[0], nil
}

// ListActiveMarkets returns up to limit open markets ordered by 24h volume,
// paginating in MaxBatchSize pages.
func (c *Client) ListActiveMarkets(ctx context.Context, limit int) ([]types.Market, error) {
	return paginate(ctx, c.logger, limit, func(ctx context.Context, pageLimit, offset int) ([]types.Market, error) {
		params := url.Values{}
		params.Set("closed", "false")
		params.Set("active", "true")
		params.Set("limit", strconv.Itoa(pageLimit))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("order", "volume24hr")
		params.Set("ascending", "false")

		var page []types.Market
		if err := c.getJSON(ctx, "gamma", c.gammaURL+"/markets", params, &page); err != nil {
			return nil, err
		}
		return page, nil
	})
}

// ListActiveEvents returns up to limit open events with their markets.
func (c *Client) ListActiveEvents(ctx context.Context, limit int) ([]types.Event, error) {
	return paginate(ctx, c.logger, limit, func(ctx context.Context, pageLimit, offset int) ([]types.Event, error) {
		params := url.Values{}
		params.Set("closed", "false")
		params.Set("active", "true")
		params.Set("limit", strconv.Itoa(pageLimit))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("order", "volume")
		params.Set("ascending", "false")

		var page []types.Event
		if err := c.getJSON(ctx, "gamma", c.gammaURL+"/events", params, &page); err != nil {
			return nil, err
		}
		return page, nil
	})
}

// paginate fetches pages until limit rows were collected or a short page
// signals the end of the data.
func paginate[T any](ctx context.Context, logger *zap.Logger, limit int,
	fetch func(ctx context.Context, pageLimit, offset int) ([]T, error)) ([]T, error) {
	var all []T
	for page := 0; ; page++ {
		remaining := limit - len(all)
		if remaining <= 0 {
			break
		}
		pageLimit := min(remaining, MaxBatchSize)

		rows, err := fetch(ctx, pageLimit, page*MaxBatchSize)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}
		all = append(all, rows...)

		logger.Debug("fetched-page",
			zap.Int("page", page),
			zap.Int("rows", len(rows)),
			zap.Int("total", len(all)))

		if len(rows) < pageLimit {
			break
		}
	}
	return all, nil
}

// GetPrice returns the quoted price for buying or selling a token.
func (c *Client) GetPrice(ctx context.Context, tokenID string, side types.Side) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)
	params.Set("side", string(side))

	var resp types.PriceResponse
	if err := c.getJSON(ctx, "clob", c.clobURL+"/price", params, &resp); err != nil {
		return 0, fmt.Errorf("get price %s: %w", tokenID, err)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", resp.Price, err)
	}
	return price, nil
}

// GetPriceHistory returns the token's price history, oldest first.
// interval is e.g. "1d" or "1w"; fidelity is the resolution in minutes.
func (c *Client) GetPriceHistory(ctx context.Context, tokenID, interval string, fidelity int) ([]types.PricePoint, error) {
	params := url.Values{}
	params.Set("market", tokenID)
	params.Set("interval", interval)
	params.Set("fidelity", strconv.Itoa(fidelity))

	var resp types.PriceHistoryResponse
	if err := c.getJSON(ctx, "clob", c.clobURL+"/prices-history", params, &resp); err != nil {
		return nil, fmt.Errorf("get price history %s: %w", tokenID, err)
	}
	return resp.History, nil
}

// TokenMetadata holds per-token trading constraints.
type TokenMetadata struct {
	TickSize     float64
	MinOrderSize float64
	FetchedAt    time.Time
}

const (
	defaultTickSize     = 0.01
	defaultMinOrderSize = 5.0
)

// GetTokenMetadata fetches tick size and minimum order size, substituting
// exchange defaults for whatever the API does not report.
func (c *Client) GetTokenMetadata(ctx context.Context, tokenID string) (*TokenMetadata, error) {
	meta := &TokenMetadata{
		TickSize:     defaultTickSize,
		MinOrderSize: defaultMinOrderSize,
		FetchedAt:    time.Now(),
	}

	params := url.Values{}
	params.Set("token_id", tokenID)

	var tick types.TickSizeResponse
	if err := c.getJSON(ctx, "clob", c.clobURL+"/tick-size", params, &tick); err != nil {
		c.logger.Debug("tick-size-unavailable", zap.String("token-id", tokenID), zap.Error(err))
	} else if tick.MinimumTickSize > 0 {
		meta.TickSize = tick.MinimumTickSize
	}

	var book struct {
		MinSize json.Number `json:"min_order_size"`
	}
	if err := c.getJSON(ctx, "clob", c.clobURL+"/book", params, &book); err != nil {
		c.logger.Debug("order-book-unavailable", zap.String("token-id", tokenID), zap.Error(err))
	} else if v, err := book.MinSize.Float64(); err == nil && v > 0 {
		meta.MinOrderSize = v
	}

	return meta, nil
}

// GetLeaderboard returns the top traders by profit over the last week.
func (c *Client) GetLeaderboard(ctx context.Context, limit int) ([]types.Trader, error) {
	params := url.Values{}
	params.Set("timePeriod", "WEEK")
	params.Set("orderBy", "PNL")
	params.Set("limit", strconv.Itoa(limit))

	var traders []types.Trader
	if err := c.getJSON(ctx, "data", c.dataURL+"/v1/leaderboard", params, &traders); err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}
	return traders, nil
}

// GetActivity returns a trader's most recent trades.
func (c *Client) GetActivity(ctx context.Context, user string, limit int) ([]types.Activity, error) {
	params := url.Values{}
	params.Set("user", user)
	params.Set("type", "TRADE")
	params.Set("limit", strconv.Itoa(limit))

	var activity []types.Activity
	if err := c.getJSON(ctx, "data", c.dataURL+"/activity", params, &activity); err != nil {
		return nil, fmt.Errorf("get activity %s: %w", user, err)
	}
	return activity, nil
}
