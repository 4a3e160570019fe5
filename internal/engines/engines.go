// Package engines builds the configured provider and the OCR service on top of it.
package engines

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/config"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/gemini"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/ocr"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/ollama"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/openai"
	"github.com/sanghyo-net/classcard-text-to-image-demo/internal/providers"
)

// New returns the provider selected by cfg and a release func that must be
// called on shutdown.
func New(ctx context.Context, cfg config.Config) (providers.Provider, func(), error) {
	if missing := cfg.Missing(); missing != "" {
		return nil, nil, fmt.Errorf("missing %s", missing)
	}

	noop := func() {}
	model := cfg.ResolvedModel()

	switch cfg.Provider {
	case config.ProviderGeminiOpenAI:
		return openai.New(openai.Options{
			Name:            config.ProviderGeminiOpenAI,
			APIKey:          cfg.GeminiAPIKey,
			BaseURL:         cfg.ResolvedBaseURL(),
			Model:           model,
			ReasoningEffort: cfg.ReasoningEffort,
		}), noop, nil

	case config.ProviderOpenAI:
		return openai.New(openai.Options{
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.ResolvedBaseURL(),
			Model:           model,
			ReasoningEffort: cfg.ReasoningEffort,
		}), noop, nil

	case config.ProviderOpenAIResponses:
		return openai.NewResponses(openai.Options{
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.ResolvedBaseURL(),
			Model:           model,
			ReasoningEffort: cfg.ReasoningEffort,
		}, cfg.PromptID, cfg.PromptVersion), noop, nil

	case config.ProviderGemini:
		g, err := gemini.New(ctx, cfg.GeminiAPIKey, model)
		if err != nil {
			return nil, nil, err
		}
		return g, func() {
			if err := g.Close(); err != nil {
				slog.Warn("Failed to close gemini client", "err", err)
			}
		}, nil

	case config.ProviderOllama:
		return ollama.New(cfg.ResolvedBaseURL(), model), noop, nil

	default:
		return nil, nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// NewService wires the provider into an OCR service using cfg's limits
func NewService(ctx context.Context, cfg config.Config) (*ocr.Service, func(), error) {
	p, release, err := New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("OCR provider ready", "provider", p.Name(), "model", p.Model())

	return ocr.NewService(p, ocr.Options{
		SystemPrompt:    cfg.SystemPrompt,
		MaxRounds:       cfg.MaxRounds,
		Timeout:         cfg.Timeout,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}), release, nil
}
