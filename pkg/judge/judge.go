// Package judge wraps the text-generation backends used for clinical
// judgments. Callers get a plain-text completion back and own the parsing;
// this package never interprets model output.
package judge

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the judgment operations used by the pipeline.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is a single judgment call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// Config selects and configures a judgment backend.
type Config struct {
	// Provider is "anthropic" or "openai". The openai provider speaks
	// any OpenAI-compatible endpoint, including a local Ollama.
	Provider string

	Model   string
	APIKey  string
	BaseURL string

	Timeout time.Duration

	// RateLimitRPS throttles calls across the process; zero disables
	// throttling.
	RateLimitRPS float64
}

// New builds a judgment client for the configured provider.
func New(cfg Config) (Client, error) {
	var inner Client
	switch cfg.Provider {
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, eris.New("judge: anthropic api key is required")
		}
		inner = newAnthropicClient(cfg)
	case "openai":
		inner = newOpenAIClient(cfg)
	default:
		return nil, eris.Errorf("judge: unknown provider %q", cfg.Provider)
	}

	if cfg.RateLimitRPS > 0 {
		inner = &limitedClient{
			inner:   inner,
			limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1),
		}
	}
	return inner, nil
}

// limitedClient throttles judgment calls with a token bucket.
type limitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

func (c *limitedClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "judge: rate limit wait")
	}
	return c.inner.Complete(ctx, req)
}
