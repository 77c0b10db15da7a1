package advisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/polymarket-autotrader/pkg/config"
	"go.uber.org/zap"
)

// ErrNoProviders is returned when no advisory provider is configured.
var ErrNoProviders = errors.New("no advisory providers configured")

// Result is the outcome of one analysis. When every provider failed, Err is
// set and Decision is a safe HOLD.
type Result struct {
	Decision Decision
	Provider string
	Attempts int
	Err      error
}

// Client consults providers in priority order.
type Client struct {
	providers    []Completer
	parseRetries int
	timeout      time.Duration
	logger       *zap.Logger
}

// Options configures a Client.
type Options struct {
	// ParseRetries is how many times a provider is re-asked after an unparseable answer.
	ParseRetries int
	// Timeout bounds each provider call. Zero disables the per-call timeout.
	Timeout time.Duration
}

// New creates a Client over providers, tried in the given order.
func New(providers []Completer, opts Options, logger *zap.Logger) *Client {
	if opts.ParseRetries < 0 {
		opts.ParseRetries = 0
	}
	return &Client{
		providers:    providers,
		parseRetries: opts.ParseRetries,
		timeout:      opts.Timeout,
		logger:       logger,
	}
}

// NewFromConfig builds the provider chain from configured credentials:
// Anthropic, then OpenAI, then a local Ollama server.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) *Client {
	var providers []Completer
	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel))
	}
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, NewOpenAIProvider("openai", cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL))
	}
	if cfg.OllamaURL != "" {
		providers = append(providers, NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel))
	}

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	logger.Info("advisor-providers-configured", zap.Strings("providers", names))

	return New(providers, Options{ParseRetries: cfg.AdvisorParseRetries, Timeout: cfg.AdvisorTimeout}, logger)
}

// Providers returns the configured provider names in priority order.
func (c *Client) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Analyze asks each provider in turn for a decision. A parse failure is
// retried on the same provider; a transport failure moves to the next one.
// It never returns a nil-decision: on total failure the decision is SafeHold.
func (c *Client) Analyze(ctx context.Context, snapshot *Snapshot, constraints Constraints) Result {
	if len(c.providers) == 0 {
		AnalysesTotal.WithLabelValues("none", "failed").Inc()
		return Result{Decision: SafeHold(ErrNoProviders.Error()), Err: ErrNoProviders}
	}

	prompt := BuildPrompt(snapshot, constraints)
	holding := snapshot.Holding()
	attempts := 0
	var errs []error

	for _, p := range c.providers {
		for try := 0; try <= c.parseRetries; try++ {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				return c.failed(errs, attempts)
			}

			attempts++
			start := time.Now()
			text, err := c.complete(ctx, p, prompt)
			ProviderLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

			if err != nil {
				ProviderErrorsTotal.WithLabelValues(p.Name(), "transport").Inc()
				c.logger.Warn("advisor-provider-failed",
					zap.String("provider", p.Name()),
					zap.Int64("market-id", snapshot.MarketID),
					zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				break
			}

			decision, err := ParseDecision(text, holding)
			if err != nil {
				ProviderErrorsTotal.WithLabelValues(p.Name(), "parse").Inc()
				c.logger.Warn("advisor-parse-failed",
					zap.String("provider", p.Name()),
					zap.Int("attempt", try+1),
					zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				continue
			}

			AnalysesTotal.WithLabelValues(p.Name(), string(decision.Decision)).Inc()
			c.logger.Debug("advisor-decision",
				zap.String("provider", p.Name()),
				zap.Int64("market-id", snapshot.MarketID),
				zap.String("decision", string(decision.Decision)),
				zap.Float64("confidence", decision.Confidence))

			return Result{Decision: decision, Provider: p.Name(), Attempts: attempts}
		}
	}

	return c.failed(errs, attempts)
}

func (c *Client) failed(errs []error, attempts int) Result {
	err := errors.Join(errs...)
	AnalysesTotal.WithLabelValues("none", "failed").Inc()
	c.logger.Error("advisor-all-providers-failed", zap.Int("attempts", attempts), zap.Error(err))
	return Result{Decision: SafeHold(err.Error()), Attempts: attempts, Err: err}
}

// complete calls a provider under the per-call timeout and converts panics
// into errors.
func (c *Client) complete(ctx context.Context, p Completer, prompt string) (text string, err error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()

	return p.Complete(ctx, systemPrompt, prompt)
}
