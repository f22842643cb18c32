package providers

import (
	"context"
	"encoding/base64"

	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

// Request is a single vision extraction call
type Request struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Prompt      string
	Image       models.ImageBuffer
}

// DataURI returns the image as a base64 data URI
func (r Request) DataURI() string {
	mimeType := r.Image.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(r.Image.Data)
}

// Provider defines the interface for a vision-capable LLM provider
type Provider interface {
	Name() string
	ExtractText(ctx context.Context, req Request) (string, error)
}
