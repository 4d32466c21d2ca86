// Package llm provides text-generation provider adapters and the
// fallback chain that sequences them.
package llm

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// TextGenerationProvider is the port every provider adapter implements.
type TextGenerationProvider interface {
	// Name identifies the provider ("anthropic", "openai", ...).
	Name() string

	// Model returns the configured model identifier.
	Model() string

	// Generate produces a completion for the system/user prompt pair.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Chain tries providers in order and returns the first successful
// completion. Provider order is the configured preference order.
type Chain struct {
	providers []TextGenerationProvider
	logger    hclog.Logger
}

func NewChain(providers []TextGenerationProvider, logger hclog.Logger) *Chain {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Chain{providers: providers, logger: logger}
}

// Providers returns the configured providers in preference order.
func (c *Chain) Providers() []TextGenerationProvider {
	return c.providers
}

func (c *Chain) Name() string {
	if len(c.providers) == 0 {
		return "none"
	}
	return c.providers[0].Name()
}

func (c *Chain) Model() string {
	if len(c.providers) == 0 {
		return ""
	}
	return c.providers[0].Model()
}

// Generate walks the chain. A provider error is logged and the next
// provider is tried; context cancellation stops the walk immediately.
func (c *Chain) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if len(c.providers) == 0 {
		return "", fmt.Errorf("no text generation providers configured")
	}

	var lastErr error
	for _, provider := range c.providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := provider.Generate(ctx, systemPrompt, userPrompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.logger.Warn("provider failed, trying next",
			"provider", provider.Name(),
			"model", provider.Model(),
			"error", err,
		)
	}
	return "", fmt.Errorf("all providers failed: %w", lastErr)
}
