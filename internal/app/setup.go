package app

import (
	"context"
	"fmt"

	"github.com/mselser95/polymarket-autotrader/internal/arbitrage"
	"github.com/mselser95/polymarket-autotrader/internal/circuitbreaker"
	"github.com/mselser95/polymarket-autotrader/internal/copytrade"
	"github.com/mselser95/polymarket-autotrader/internal/execution"
	"github.com/mselser95/polymarket-autotrader/internal/marketdata"
	"github.com/mselser95/polymarket-autotrader/internal/resolution"
	"github.com/mselser95/polymarket-autotrader/internal/storage"
	"github.com/mselser95/polymarket-autotrader/internal/trading"
	"github.com/mselser95/polymarket-autotrader/pkg/cache"
	"github.com/mselser95/polymarket-autotrader/pkg/config"
	"github.com/mselser95/polymarket-autotrader/pkg/eventbus"
	"github.com/mselser95/polymarket-autotrader/pkg/healthprobe"
	"github.com/mselser95/polymarket-autotrader/pkg/httpserver"
	"github.com/mselser95/polymarket-autotrader/pkg/wallet"
	"go.uber.org/zap"
)

func setupHealthChecker(store storage.Store) *healthprobe.HealthChecker {
	h := healthprobe.New()
	h.AddCheck("storage", store.Ping)
	return h
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	ctrl httpserver.Controller,
	bus *eventbus.Bus,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Controller:    ctrl,
		Events:        bus,
	})
}

func setupStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.StorageMode == "postgres" {
		pgStore, err := storage.NewPostgresStore(ctx, &storage.PostgresConfig{
			DSN:    cfg.PostgresDSN(),
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStore, nil
	}

	logger.Info("using-memory-storage",
		zap.String("note", "state is lost on exit; risk config must be set through the API"))
	return storage.NewMemoryStore(logger), nil
}

func setupCache(logger *zap.Logger) (*cache.RistrettoCache, error) {
	return cache.NewRistrettoCache(cache.DefaultRistrettoConfig(logger))
}

func setupMarketData(cfg *config.Config, logger *zap.Logger, c cache.Cache) *marketdata.CachedClient {
	client := marketdata.NewClient(marketdata.ClientConfig{
		GammaURL: cfg.PolymarketGammaURL,
		CLOBURL:  cfg.PolymarketCLOBURL,
		DataURL:  cfg.PolymarketDataURL,
		Timeout:  cfg.HTTPTimeout,
	}, logger)

	return marketdata.NewCachedClient(client, c, marketdata.CacheConfig{
		MarketTTL:  cfg.MarketCacheTTL,
		HistoryTTL: cfg.HistoryCacheTTL,
	}, logger)
}

// setupExecution builds the shared order service. In live mode the balance
// circuit breaker guards it; the breaker is started by Run.
func setupExecution(cfg *config.Config, logger *zap.Logger) (
	*execution.Service, *execution.OrderClient, *circuitbreaker.BalanceCircuitBreaker, error,
) {
	paper := execution.NewPaperClient(cfg.PaperStartingBalance, logger)
	if cfg.IsPaper() {
		logger.Info("execution-mode-paper",
			zap.Float64("starting-balance", cfg.PaperStartingBalance))
		return execution.NewService(nil, paper, nil, logger), nil, nil, nil
	}

	live, err := execution.NewOrderClient(&execution.OrderClientConfig{
		BaseURL:       cfg.PolymarketCLOBURL,
		APIKey:        cfg.PolymarketAPIKey,
		Secret:        cfg.PolymarketSecret,
		Passphrase:    cfg.PolymarketPassphrase,
		PrivateKey:    cfg.PolymarketPrivateKey,
		Address:       cfg.PolymarketAddress,
		ProxyAddress:  cfg.PolymarketProxy,
		SignatureType: cfg.SignatureType,
		Timeout:       cfg.HTTPTimeout,
		Logger:        logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create order client: %w", err)
	}

	if !cfg.CircuitBreakerEnabled {
		logger.Warn("circuit-breaker-disabled")
		return execution.NewService(live, paper, nil, logger), live, nil, nil
	}

	fetcher, err := balanceFetcher(cfg, live, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		CheckInterval:   cfg.CircuitBreakerCheckInterval,
		TradeMultiplier: cfg.CircuitBreakerMultiplier,
		MinAbsolute:     cfg.CircuitBreakerMinAbsolute,
		HysteresisRatio: cfg.CircuitBreakerHysteresis,
		Fetcher:         fetcher,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create circuit breaker: %w", err)
	}

	logger.Info("circuit-breaker-enabled",
		zap.Duration("check-interval", cfg.CircuitBreakerCheckInterval),
		zap.Float64("trade-multiplier", cfg.CircuitBreakerMultiplier),
		zap.Float64("min-absolute", cfg.CircuitBreakerMinAbsolute),
		zap.Float64("hysteresis-ratio", cfg.CircuitBreakerHysteresis))

	return execution.NewService(live, paper, breaker, logger), live, breaker, nil
}

// balanceFetcher reads the balance on-chain when an RPC endpoint is
// configured and from the CLOB otherwise.
func balanceFetcher(cfg *config.Config, live *execution.OrderClient, logger *zap.Logger) (circuitbreaker.BalanceFetcher, error) {
	if cfg.PolygonRPCURL == "" {
		return live, nil
	}

	// Proxy wallets hold the collateral for signature types 1 and 2.
	address := live.Address()
	if cfg.PolymarketProxy != "" {
		address = cfg.PolymarketProxy
	}

	client, err := wallet.NewClient(&wallet.Config{
		RPCURL:  cfg.PolygonRPCURL,
		Address: address,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create wallet client: %w", err)
	}
	return client, nil
}

func (a *App) setupStrategies(policy execution.Policy, drift copytrade.DriftPolicy) {
	cfg := a.cfg

	a.resolver = arbitrage.NewResolver(a.store, a.markets, a.ledger, a.bus, resolution.Config{
		Buffer:        cfg.ArbResolutionBuffer,
		RetryInterval: cfg.ArbResolutionRetry,
	}, a.logger)

	a.executor = arbitrage.NewExecutor(a.store, a.orders, a.ledger, a.resolver, a.bus, policy, a.logger)

	a.scanner = arbitrage.NewScanner(a.markets, a.store, a.executor, a.bus, arbitrage.ScannerConfig{
		Interval:         cfg.ArbScanInterval,
		MinSpreadPct:     cfg.ArbMinSpreadPct,
		MinLiquidity:     cfg.ArbMinLiquidity,
		MultiOutcome:     cfg.ArbMultiOutcome,
		MarketLimit:      cfg.ArbMarketLimit,
		EventLimit:       cfg.ArbEventLimit,
		StaleAfter:       cfg.ArbStaleAfter,
		AutoExecute:      cfg.ArbAutoExecute,
		AutoMinSpreadPct: cfg.ArbAutoMinSpreadPct,
		AutoInvestment:   cfg.ArbAutoInvestment,
		AutoMaxPerScan:   cfg.ArbAutoMaxPerScan,
	}, a.logger)

	a.trader = trading.New(trading.Deps{
		Store:   a.store,
		Markets: a.markets,
		Advisor: a.advisor,
		Gate:    a.gate,
		Orders:  a.orders,
		Budget:  a.ledger,
		Bus:     a.bus,
	}, trading.Config{
		Interval:         cfg.TradingInterval,
		InterMarketDelay: cfg.InterMarketDelay,
		HistoryInterval:  cfg.PriceHistoryInterval,
		HistoryFidelity:  cfg.PriceHistoryFidelity,
		ResolutionBuffer: cfg.TradeResolutionBuffer,
	}, a.logger)

	a.copier = copytrade.New(copytrade.Deps{
		Store:   a.store,
		Markets: a.markets,
		Orders:  a.orders,
		Budget:  a.ledger,
		Bus:     a.bus,
		Drift:   drift,
	}, copytrade.Config{
		CheckInterval: cfg.CopyCheckInterval,
		TopTraders:    cfg.CopyTopTraders,
		ActivityLimit: cfg.CopyActivityLimit,
		TopPositions:  cfg.CopyTopPositions,
		SnipeSize:     cfg.CopySnipeSize,
		ProfitTarget:  cfg.CopyProfitTarget,
		OrderDelay:    cfg.CopyOrderDelay,
	}, a.logger)
}
