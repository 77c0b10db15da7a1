package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mselser95/polymarket-autotrader/pkg/cache"
	"github.com/mselser95/polymarket-autotrader/pkg/types"
	"go.uber.org/zap"
)

const (
	nsMarket   = "market"
	nsHistory  = "history"
	nsMetadata = "metadata"

	metadataTTL = 24 * time.Hour
)

// CachedClient wraps Client with short-lived snapshots of markets, price
// history and token metadata. Quotes, listings and trader data are never cached.
type CachedClient struct {
	*Client
	cache      cache.Cache
	marketTTL  time.Duration
	historyTTL time.Duration
	logger     *zap.Logger
}

// CacheConfig holds cache TTLs.
type CacheConfig struct {
	MarketTTL  time.Duration
	HistoryTTL time.Duration
}

// NewCachedClient creates a CachedClient.
func NewCachedClient(client *Client, c cache.Cache, cfg CacheConfig, logger *zap.Logger) *CachedClient {
	return &CachedClient{
		Client:     client,
		cache:      c,
		marketTTL:  cfg.MarketTTL,
		historyTTL: cfg.HistoryTTL,
		logger:     logger,
	}
}

// GetMarket returns a cached market snapshot, fetching on a miss.
func (c *CachedClient) GetMarket(ctx context.Context, conditionID string) (*types.Market, error) {
	return cache.Fetch(c.cache, cache.Key(nsMarket, conditionID), c.marketTTL, func() (*types.Market, error) {
		return c.Client.GetMarket(ctx, conditionID)
	})
}

// InvalidateMarket drops a cached market so the next read is fresh.
func (c *CachedClient) InvalidateMarket(conditionID string) {
	c.cache.Delete(cache.Key(nsMarket, conditionID))
}

func historyKey(tokenID, interval string, fidelity int) string {
	return cache.Key(nsHistory, tokenID+"|"+interval+"|"+strconv.Itoa(fidelity))
}

// GetPriceHistory returns cached price history, fetching on a miss.
func (c *CachedClient) GetPriceHistory(ctx context.Context, tokenID, interval string, fidelity int) ([]types.PricePoint, error) {
	return cache.Fetch(c.cache, historyKey(tokenID, interval, fidelity), c.historyTTL, func() ([]types.PricePoint, error) {
		return c.Client.GetPriceHistory(ctx, tokenID, interval, fidelity)
	})
}

// RefreshPriceHistory refetches price history and replaces the cached copy.
// On failure the previous cached copy is kept.
func (c *CachedClient) RefreshPriceHistory(ctx context.Context, tokenID, interval string, fidelity int) ([]types.PricePoint, error) {
	points, err := c.Client.GetPriceHistory(ctx, tokenID, interval, fidelity)
	if err != nil {
		return nil, fmt.Errorf("refresh price history: %w", err)
	}
	c.cache.Set(historyKey(tokenID, interval, fidelity), points, c.historyTTL)

	c.logger.Debug("price-history-refreshed",
		zap.String("token-id", tokenID),
		zap.Int("points", len(points)))

	return points, nil
}

// GetTokenMetadata returns cached token metadata (24h), fetching on a miss.
func (c *CachedClient) GetTokenMetadata(ctx context.Context, tokenID string) (*TokenMetadata, error) {
	return cache.Fetch(c.cache, cache.Key(nsMetadata, tokenID), metadataTTL, func() (*TokenMetadata, error) {
		return c.Client.GetTokenMetadata(ctx, tokenID)
	})
}
