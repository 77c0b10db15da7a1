package app

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the HTTP server and the auto-start loops, then blocks until
// SIGINT, SIGTERM or Shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", mode(a.orders.IsPaper())),
		zap.String("storage", a.cfg.StorageMode),
		zap.Strings("providers", a.advisor.Providers()),
		zap.String("log-level", a.cfg.LogLevel))

	a.startComponents()

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Any("loops", a.loopStates()))

	return a.waitForShutdown()
}

func (a *App) startComponents() {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	if a.breaker != nil {
		a.breaker.Start(a.ctx)
	}

	// Open spread trades from a previous run still need settling.
	a.resolver.Start(a.ctx)

	if a.cfg.TradingAutoStart {
		a.trader.Start(a.ctx)
	}
	if a.cfg.ArbAutoStart {
		a.scanner.Start(a.ctx)
	}
	if a.cfg.CopyAutoStart {
		a.copier.Start(a.ctx)
	}
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
