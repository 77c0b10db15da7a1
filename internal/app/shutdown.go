package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. It is safe to call more
// than once.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Stop loops first so no new orders start.
	a.stopLoops()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	a.cancel()
	a.wg.Wait()

	err = a.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.logger.Info("application-shutdown-complete")

	return nil
}

func (a *App) stopLoops() {
	a.trader.Stop()
	a.scanner.Stop()
	a.copier.Stop()
	a.resolver.Stop()

	if a.breaker != nil {
		a.breaker.Stop()
	}
}

// Close releases the cache and the store without touching loops. One-shot
// commands call it directly.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.cancel()
		a.cache.Close()
		err = a.store.Close()
	})
	return err
}
