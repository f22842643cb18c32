package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/lehigh-university-libraries/cardscan/internal/apperr"
	"github.com/lehigh-university-libraries/cardscan/internal/providers"
	"google.golang.org/api/option"
)

// Gemini is a provider for Google Gemini
type Gemini struct {
	apiKey string
	opts   []option.ClientOption
}

// New returns a new Gemini provider. Extra client options are appended
// after the API key.
func New(apiKey string, opts ...option.ClientOption) *Gemini {
	return &Gemini{apiKey: apiKey, opts: opts}
}

func (g *Gemini) Name() string { return "gemini" }

// ExtractText sends the prompt and the image as an inline blob
func (g *Gemini) ExtractText(ctx context.Context, req providers.Request) (string, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(g.apiKey)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(req.Model)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx,
		genai.Text(req.Prompt),
		genai.ImageData(imageFormat(req.Image.MIMEType), req.Image.Data),
	)
	if err != nil {
		return "", apperr.Upstream(0, "", fmt.Errorf("failed to generate content: %w", err))
	}

	if len(resp.Candidates) == 0 {
		return "", apperr.Upstream(0, "", fmt.Errorf("no candidates returned from Gemini"))
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", apperr.Upstream(0, "", fmt.Errorf("empty content returned from Gemini"))
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", apperr.Upstream(0, "", fmt.Errorf("unexpected response format from Gemini"))
	}

	slog.Info("Received Gemini reply", "model", req.Model, "length", b.Len())
	return b.String(), nil
}

// imageFormat maps a MIME type to the subtype genai.ImageData expects
func imageFormat(mimeType string) string {
	format := strings.TrimPrefix(strings.ToLower(mimeType), "image/")
	switch format {
	case "", "jpg":
		return "jpeg"
	default:
		return format
	}
}
