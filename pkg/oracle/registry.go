package oracle

import (
	"fmt"

	"github.com/kadirpekel/upchain/pkg/config"
)

// New creates the configured oracle provider.
func New(cfg *config.OracleConfig) (Provider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "gemini":
		return NewGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown oracle type: %q", cfg.Type)
	}
}
