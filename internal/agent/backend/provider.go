package backend

import (
	"context"
	"fmt"

	"github.com/saulini100/AI-Library--sub001/config"
)

// LLMProvider generates text against an API model name and reports
// input/output token usage.
type LLMProvider interface {
	GenerateWithTokens(ctx context.Context, prompt string, apiModel string, options map[string]interface{}) (string, int64, int64, error)
}

// NewLLMProvider creates an LLM provider based on configuration.
func NewLLMProvider(cfg config.ProviderConfig) (LLMProvider, error) {
	switch cfg.Type {
	case "", "openai":
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Type)
	}
}
