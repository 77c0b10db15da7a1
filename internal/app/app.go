// Package app wires the strategies, their shared services and the HTTP
// surface into one process.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/mselser95/polymarket-autotrader/internal/advisor"
	"github.com/mselser95/polymarket-autotrader/internal/arbitrage"
	"github.com/mselser95/polymarket-autotrader/internal/circuitbreaker"
	"github.com/mselser95/polymarket-autotrader/internal/copytrade"
	"github.com/mselser95/polymarket-autotrader/internal/execution"
	"github.com/mselser95/polymarket-autotrader/internal/ledger"
	"github.com/mselser95/polymarket-autotrader/internal/marketdata"
	"github.com/mselser95/polymarket-autotrader/internal/risk"
	"github.com/mselser95/polymarket-autotrader/internal/storage"
	"github.com/mselser95/polymarket-autotrader/internal/trading"
	"github.com/mselser95/polymarket-autotrader/pkg/cache"
	"github.com/mselser95/polymarket-autotrader/pkg/config"
	"github.com/mselser95/polymarket-autotrader/pkg/eventbus"
	"github.com/mselser95/polymarket-autotrader/pkg/healthprobe"
	"github.com/mselser95/polymarket-autotrader/pkg/httpserver"
	"go.uber.org/zap"
)

// Loop names accepted by StartLoop and StopLoop.
const (
	LoopTrading     = "ai-trading"
	LoopArbScan     = "arbitrage-scan"
	LoopArbResolver = "arbitrage-resolver"
	LoopCopyTrade   = "copy-trade"
)

// eventBufferSize is the per-subscriber buffer of the event bus.
const eventBufferSize = 256

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	store         storage.Store
	cache         *cache.RistrettoCache
	markets       *marketdata.CachedClient
	orders        *execution.Service
	live          *execution.OrderClient
	breaker       *circuitbreaker.BalanceCircuitBreaker
	ledger        *ledger.Ledger
	gate          *risk.Gate
	advisor       *advisor.Client
	bus           *eventbus.Bus
	resolver      *arbitrage.Resolver
	executor      *arbitrage.Executor
	scanner       *arbitrage.Scanner
	trader        *trading.Engine
	copier        *copytrade.Engine
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// Options holds application options.
type Options struct {
	// Store replaces the configured store. Used by tests.
	Store storage.Store
}

var _ httpserver.Controller = (*App)(nil)

// New creates a new application instance. Nothing runs until Run or one of
// the manual triggers is called.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	policy, err := execution.ParsePolicy(cfg.ArbExecutionPolicy)
	if err != nil {
		cancel()
		return nil, err
	}
	drift, err := copytrade.ParseDrift(cfg.CopyPaperDrift)
	if err != nil {
		cancel()
		return nil, err
	}

	store := opts.Store
	if store == nil {
		store, err = setupStore(ctx, cfg, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("setup storage: %w", err)
		}
	}

	marketCache, err := setupCache(logger)
	if err != nil {
		cancel()
		_ = store.Close()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	orders, live, breaker, err := setupExecution(cfg, logger)
	if err != nil {
		cancel()
		marketCache.Close()
		_ = store.Close()
		return nil, fmt.Errorf("setup execution: %w", err)
	}

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: setupHealthChecker(store),
		store:         store,
		cache:         marketCache,
		markets:       setupMarketData(cfg, logger, marketCache),
		orders:        orders,
		live:          live,
		breaker:       breaker,
		ledger:        ledger.New(store, logger),
		advisor:       advisor.NewFromConfig(cfg, logger),
		bus:           eventbus.New(eventBufferSize, logger),
		ctx:           ctx,
		cancel:        cancel,
	}
	a.gate = risk.NewGate(a.ledger, store, logger)
	a.setupStrategies(policy, drift)
	a.httpServer = setupHTTPServer(cfg, logger, a.healthChecker, a, a.bus)

	return a, nil
}

// Orders returns the shared execution service.
func (a *App) Orders() *execution.Service {
	return a.orders
}

// MarketData returns the cached market-data client.
func (a *App) MarketData() *marketdata.CachedClient {
	return a.markets
}

// Events returns the application event bus.
func (a *App) Events() *eventbus.Bus {
	return a.bus
}
