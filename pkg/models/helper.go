package models

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultMaxTokens bounds a single completion.
const DefaultMaxTokens = 1024

// Config selects a completion provider.
type Config struct {
	// Provider is one of offline, openai, anthropic, gemini or ollama.
	Provider  string
	Model     string
	MaxTokens int
}

// New builds the configured completer. Credentials come from each provider's
// usual environment variables.
func New(ctx context.Context, cfg Config) (Completer, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "offline", "dummy":
		return NewOffline(""), nil
	case "openai":
		return NewOpenAI(cfg.Model, maxTokens), nil
	case "anthropic", "claude":
		return NewAnthropic(cfg.Model, maxTokens), nil
	case "gemini", "google":
		return NewGemini(ctx, cfg.Model, maxTokens)
	case "ollama":
		return NewOllama(cfg.Model)
	default:
		return nil, goerr.Wrap(ErrUnknownProvider, "cannot build completer", goerr.V("provider", cfg.Provider))
	}
}
