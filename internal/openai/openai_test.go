package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/cardscan/internal/apperr"
	"github.com/lehigh-university-libraries/cardscan/internal/models"
	"github.com/lehigh-university-libraries/cardscan/internal/providers"
)

func testRequest() providers.Request {
	return providers.Request{
		Model:       "gpt-4o",
		Temperature: 0.1,
		MaxTokens:   1000,
		Prompt:      "Extract the card",
		Image:       models.ImageBuffer{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"},
	}
}

func TestExtractTextSendsVisionRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Expected path /v1/chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Expected bearer token, got %q", got)
		}

		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if body.Model != "gpt-4o" || body.MaxTokens != 1000 || body.Temperature != 0.1 {
			t.Errorf("Unexpected parameters: %+v", body)
		}
		if len(body.Messages) != 1 || len(body.Messages[0].Content) != 2 {
			t.Errorf("Expected one message with two parts, got %+v", body.Messages)
			return
		}
		img := body.Messages[0].Content[1].ImageURL
		if img == nil || img.Detail != "high" || !strings.HasPrefix(img.URL, "data:image/jpeg;base64,") {
			t.Errorf("Unexpected image part: %+v", img)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": `{"full_name":"Jane Doe"}`}},
			},
		})
	}))
	defer server.Close()

	o := New("sk-test", server.URL+"/v1/", 5*time.Second)
	got, err := o.ExtractText(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if got != `{"full_name":"Jane Doe"}` {
		t.Errorf("Unexpected content %q", got)
	}
}

func TestExtractTextUpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, http.StatusTooManyRequests},
		{"no choices", http.StatusOK, `{"choices":[]}`, http.StatusOK},
		{"garbage body", http.StatusOK, `not json`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := New("sk-test", server.URL, time.Second).ExtractText(context.Background(), testRequest())
			e, ok := apperr.As(err)
			if !ok || e.Kind != apperr.UpstreamError {
				t.Fatalf("Expected UpstreamError, got %v", err)
			}
			if e.Status != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, e.Status)
			}
			if tt.status != http.StatusOK && e.Raw != tt.body {
				t.Errorf("Expected upstream body %q, got %q", tt.body, e.Raw)
			}
		})
	}
}

func TestExtractTextTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New("sk-test", url, time.Second).ExtractText(context.Background(), testRequest())
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.UpstreamError || e.Status != 0 {
		t.Errorf("Expected UpstreamError with status 0, got %v", err)
	}
}
