package ai

import (
	"fmt"
	"time"

	"github.com/kolosalai/kolosal-agentd/core"
)

// NewClient builds an AIConfig from opts and resolves it to a concrete
// client via the provider registry: an explicit WithProvider wins outright
// (an unregistered or empty name fails fast rather than silently falling
// back), otherwise the highest-priority available provider is used.
func NewClient(opts ...AIOption) (core.AIClient, error) {
	cfg := &AIConfig{
		Provider:    ProviderAuto,
		MaxRetries:  3,
		Timeout:     30 * time.Second,
		Temperature: 0.7,
		MaxTokens:   1000,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	name := cfg.Provider
	if !cfg.explicitProvider {
		detected, err := detectBestProvider(cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("no AI provider available: %w", err)
		}
		name = detected
	}

	factory, ok := GetProvider(name)
	if !ok {
		return nil, fmt.Errorf("provider '%s' not registered", name)
	}
	return factory.Create(cfg), nil
}

// MustNewClient is NewClient but panics instead of returning an error, for
// callers during startup that treat a missing AI provider as fatal.
func MustNewClient(opts ...AIOption) core.AIClient {
	client, err := NewClient(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create AI client: %v", err))
	}
	return client
}
