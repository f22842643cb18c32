package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/cardscan/internal/config"
	"github.com/lehigh-university-libraries/cardscan/internal/gemini"
	"github.com/lehigh-university-libraries/cardscan/internal/models"
	"github.com/lehigh-university-libraries/cardscan/internal/ollama"
	"github.com/lehigh-university-libraries/cardscan/internal/openai"
	"github.com/lehigh-university-libraries/cardscan/internal/providers"
)

// Service sends card images to a vision model
type Service struct {
	provider    providers.Provider
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// NewService wraps a provider with fixed model parameters
func NewService(p providers.Provider, model string, temperature float64, maxTokens int, timeout time.Duration) *Service {
	return &Service{
		provider:    p,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
	}
}

// NewFromConfig builds the provider selected by cfg
func NewFromConfig(cfg config.ExtractionConfig) (*Service, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		p := openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.Timeout)
		return NewService(p, cfg.OpenAIModel, cfg.Temperature, cfg.MaxTokens, cfg.Timeout), nil
	case config.ProviderGemini:
		p := gemini.New(cfg.GeminiKey)
		return NewService(p, cfg.GeminiModel, cfg.Temperature, cfg.MaxTokens, cfg.Timeout), nil
	case config.ProviderOllama:
		p := ollama.New(cfg.OllamaURL, cfg.Timeout)
		return NewService(p, cfg.OllamaModel, cfg.Temperature, cfg.MaxTokens, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// Provider returns the name of the wrapped provider
func (s *Service) Provider() string {
	return s.provider.Name()
}

// Extract makes exactly one provider call for the image and returns the raw reply
func (s *Service) Extract(ctx context.Context, img models.ImageBuffer, side models.Side) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := s.provider.ExtractText(ctx, providers.Request{
		Model:       s.model,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		Prompt:      BuildPrompt(side),
		Image:       img,
	})
	if err != nil {
		slog.Error("Extraction failed", "provider", s.provider.Name(), "model", s.model, "side", side, "err", err)
		return "", err
	}

	slog.Info("Extraction complete",
		"provider", s.provider.Name(),
		"model", s.model,
		"side", side,
		"image_bytes", len(img.Data),
		"length", len(reply),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return reply, nil
}
