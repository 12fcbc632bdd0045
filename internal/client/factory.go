package client

import (
	"context"
	"fmt"
	"net/http"

	"zarz/internal/config"
	"zarz/internal/logging"
)

// NewProvider creates the provider selected by cfg, wrapped with retries.
func NewProvider(ctx context.Context, cfg *config.Config) (CompletionProvider, error) {
	provider, err := newBaseProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.API.Retry.MaxRetries
	if cfg.API.Retry.RetryDelay > 0 {
		retry.RetryDelay = cfg.API.Retry.RetryDelay
	}
	return WithRetry(provider, retry), nil
}

func newBaseProvider(ctx context.Context, cfg *config.Config) (CompletionProvider, error) {
	pc := ProviderConfig{
		Name:       cfg.Provider,
		APIKey:     cfg.APIKey(cfg.Provider),
		HTTPClient: &http.Client{Timeout: cfg.API.Timeout},
	}

	logging.Debug("creating provider", "provider", cfg.Provider, "model", cfg.ResolvedModel())

	switch cfg.Provider {
	case config.ProviderAnthropic:
		pc.BaseURL = cfg.API.AnthropicBaseURL
		return NewAnthropicProvider(pc)
	case config.ProviderOpenAI:
		pc.BaseURL = cfg.API.OpenAIBaseURL
		return NewOpenAIProvider(pc)
	case config.ProviderGLM:
		// GLM speaks the OpenAI Chat Completions protocol.
		pc.BaseURL = cfg.API.GLMBaseURL
		if pc.BaseURL == "" {
			pc.BaseURL = config.DefaultGLMBaseURL
		}
		return NewOpenAIProvider(pc)
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, pc)
	case config.ProviderOllama:
		pc.BaseURL = cfg.API.OllamaBaseURL
		if pc.BaseURL == "" {
			pc.BaseURL = config.DefaultOllamaBaseURL
		}
		return NewOllamaProvider(pc)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Provider)
	}
}
