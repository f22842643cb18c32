package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/cardscan/internal/apperr"
	"github.com/lehigh-university-libraries/cardscan/internal/models"
	"github.com/lehigh-university-libraries/cardscan/internal/providers"
)

func TestExtractText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if images, ok := body["images"].([]any); !ok || len(images) != 1 {
			t.Errorf("Expected one image, got %v", body["images"])
		}
		if body["format"] != "json" || body["stream"] != false {
			t.Errorf("Unexpected request flags: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"response": `{"email":"a@b.com"}`})
	}))
	defer server.Close()

	o := New(server.URL, time.Second)
	got, err := o.ExtractText(context.Background(), providers.Request{
		Model: "llava",
		Image: models.ImageBuffer{Data: []byte("img"), MIMEType: "image/png"},
	})
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if got != `{"email":"a@b.com"}` {
		t.Errorf("Unexpected response %q", got)
	}
}

func TestExtractTextNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, time.Second).ExtractText(context.Background(), providers.Request{Model: "missing"})
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.UpstreamError || e.Status != http.StatusNotFound {
		t.Errorf("Expected UpstreamError 404, got %v", err)
	}
}
