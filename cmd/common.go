package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/mselser95/polymarket-autotrader/internal/app"
	"github.com/mselser95/polymarket-autotrader/pkg/config"
	"go.uber.org/zap"
)

// session is a configured application for a one-shot command.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
	ctx    context.Context
	stop   context.CancelFunc
}

// newSession loads config, builds the logger and wires the application
// without starting any loop.
func newSession() (*session, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	application, err := app.New(cfg, logger, nil)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("create app: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &session{cfg: cfg, logger: logger, app: application, ctx: ctx, stop: stop}, nil
}

func (s *session) close() {
	s.stop()
	err := s.app.Close()
	if err != nil {
		s.logger.Error("app-close-error", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// withSession runs fn against a fresh session and closes it afterwards.
func withSession(fn func(s *session) error) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
