// Package llm provides a uniform chat interface over named text-generation
// backends, with jittered retries for transient failures and provider
// fallback on rate limits.
package llm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/planforge/planforge/internal/backoff"
)

// ChatRequest is the single-prompt request every provider accepts
type ChatRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Provider is one named generation backend. Adding a backend means adding an
// implementation and registering it; the client's control flow never changes.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Options are per-call overrides
type Options struct {
	// Provider selects a backend by name; empty uses the client default
	Provider string
	// Model overrides the provider's configured model
	Model string
}

// ClientConfig configures retry and fallback behavior
type ClientConfig struct {
	DefaultProvider  string
	FallbackProvider string
	// MaxRetries is the per-backend retry budget for transient errors
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Client routes chat calls to providers and applies the resilience policy:
// transient network/server errors retry with full-jitter backoff, rate
// limits fail fast and divert to the fallback provider if one is configured.
type Client struct {
	providers map[string]Provider
	cfg       ClientConfig
	sleep     func(time.Duration)
}

// NewClient creates a client over the given providers
func NewClient(cfg ClientConfig, providers ...Provider) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 8 * time.Second
	}
	c := &Client{
		providers: make(map[string]Provider, len(providers)),
		cfg:       cfg,
	}
	for _, p := range providers {
		c.providers[p.Name()] = p
	}
	return c
}

// Register adds a provider to the lookup table
func (c *Client) Register(p Provider) {
	c.providers[p.Name()] = p
}

// Chat sends a prompt to the resolved backend and returns the generated text.
// On a rate limit it immediately tries the fallback backend, which gets its
// own retry budget.
func (c *Client) Chat(ctx context.Context, prompt string, opts Options) (string, error) {
	name := opts.Provider
	if name == "" {
		name = c.cfg.DefaultProvider
	}
	p, ok := c.providers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	text, err := c.chatWith(ctx, p, prompt, opts)
	if err == nil || !IsRateLimit(err) {
		return text, err
	}

	fb := c.cfg.FallbackProvider
	if fb == "" || fb == name {
		return "", fmt.Errorf("%s: %w", name, ErrRateLimited)
	}
	fp, ok := c.providers[fb]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrRateLimited)
	}
	log.Printf("llm: %s rate limited, falling back to %s", name, fb)
	return c.chatWith(ctx, fp, prompt, opts)
}

// chatWith calls one provider under the retry policy. Rate limits are
// excluded from the retry predicate so they fail fast against this backend.
func (c *Client) chatWith(ctx context.Context, p Provider, prompt string, opts Options) (string, error) {
	req := ChatRequest{Prompt: prompt, Model: opts.Model}

	var text string
	op := func() error {
		var err error
		text, err = p.Chat(ctx, req)
		return err
	}
	err := backoff.WithRetry(op, backoff.Options{
		MaxRetries: c.cfg.MaxRetries,
		Base:       c.cfg.BackoffBase,
		Max:        c.cfg.BackoffMax,
		RetryIf: func(err error) bool {
			return IsRetryable(err) && !IsRateLimit(err)
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			log.Printf("llm: %s attempt %d failed (%v), retrying in %v", p.Name(), attempt, err, delay)
		},
		Sleep: c.sleep,
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
