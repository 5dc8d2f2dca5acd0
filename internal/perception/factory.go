// File: internal/perception/factory.go
package perception

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nelieo/superagent/api/schemas"
	"github.com/nelieo/superagent/internal/config"
)

// UnknownProviderError reports a perception.provider value outside the
// supported set.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown perception provider %q (supported: gemini, openrouter, ollama)", e.Provider)
}

// New builds the configured perception port: a provider generator wrapped
// in the retry/fallback policy layer.
func New(cfg config.PerceptionConfig, logger *zap.Logger) (schemas.PerceptionPort, error) {
	var (
		gen generator
		err error
	)
	switch cfg.Provider {
	case "gemini":
		gen, err = newGeminiGenerator(cfg, logger)
	case "openrouter":
		gen, err = newOpenRouterGenerator(cfg, logger)
	case "ollama":
		gen = newOllamaGenerator(cfg, logger)
	default:
		return nil, &UnknownProviderError{Provider: cfg.Provider}
	}
	if err != nil {
		return nil, fmt.Errorf("building %s provider: %w", cfg.Provider, err)
	}
	return NewPort(gen, cfg, logger), nil
}
