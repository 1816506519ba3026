package oracle

import (
	"context"
	"fmt"
	"time"

	"battlescribe/internal/config"
)

// NewClient builds the backend selected by cfg.Provider.
func NewClient(ctx context.Context, cfg config.LLMConfig, timeout time.Duration) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		})
	case config.ProviderOpenAI:
		oc := DefaultOpenAIConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		oc.Timeout = timeout
		return NewOpenAIClient(oc)
	case config.ProviderAzure:
		if cfg.AzureDeployment == "" {
			return nil, fmt.Errorf("azure provider requires a deployment name")
		}
		return NewOpenAIClient(OpenAIConfig{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			Model:           cfg.Model,
			Timeout:         timeout,
			AzureInstance:   cfg.AzureInstance,
			AzureDeployment: cfg.AzureDeployment,
			AzureAPIVersion: cfg.AzureAPIVersion,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %q (valid: %v)", cfg.Provider, config.ValidProviders)
	}
}
