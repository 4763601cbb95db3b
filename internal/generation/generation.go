// Package generation calls the language-model backend that turns a prompt
// into raw site text.
package generation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/config"
	"github.com/bizmatters/agent-builder/pages-builder/internal/prompt"
)

var (
	// ErrMissingCredential is returned before any network call when no API
	// key is configured.
	ErrMissingCredential = errors.New("generation credential not configured")

	// ErrNoContent is returned when a successful response carries no message.
	ErrNoContent = errors.New("generation response has no message content")
)

// Generator produces the raw response for a prompt.
type Generator interface {
	Generate(ctx context.Context, p prompt.Prompt) (string, error)
}

// New returns the generator for the configured provider.
func New(cfg config.GenerationConfig, logger *zap.Logger) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenRouter, "":
		return NewOpenRouterClient(cfg, logger), nil
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
