package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/config"
)

// ProviderGemini is the only supported completion provider today.
const ProviderGemini = "gemini"

// NewProvider builds a TextCompletionProvider from configuration. Returns
// nil (no provider, AI extraction disabled) when no provider is configured.
func NewProvider(cfg config.AIConfig, logger *zap.Logger) (schemas.TextCompletionProvider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case ProviderGemini:
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown completion provider %q, supported: [%s]", cfg.Provider, ProviderGemini)
	}
}
