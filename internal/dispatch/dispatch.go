// Package dispatch forwards normalized card fields to the automation webhook.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/cardscan/internal/apperr"
	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

// Dispatcher delivers a record somewhere. Send never returns an error;
// failures are described by the result.
type Dispatcher interface {
	Send(ctx context.Context, fields models.FieldMap) models.DispatchResult
}

// Client posts records to a single webhook URL
type Client struct {
	url        string
	httpClient *http.Client
}

// New returns a webhook client with the given request timeout
func New(url string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Send posts fields as a JSON object. Any 2xx status counts as delivered.
// There is no retry.
func (c *Client) Send(ctx context.Context, fields models.FieldMap) models.DispatchResult {
	body, err := json.Marshal(fields)
	if err != nil {
		return failed(0, apperr.New(apperr.WebhookError, "failed to encode record", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return failed(0, apperr.New(apperr.WebhookError, "failed to create request", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failed(0, apperr.New(apperr.WebhookError, "request failed", err))
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(resp.StatusCode, &apperr.Error{
			Kind:    apperr.WebhookError,
			Message: "webhook rejected the record",
			Status:  resp.StatusCode,
		})
	}

	slog.Info("Webhook delivered", "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
	return models.DispatchResult{
		Delivered:  true,
		StatusCode: resp.StatusCode,
		Message:    "Data sent to webhook",
	}
}

func failed(status int, err error) models.DispatchResult {
	slog.Error("Webhook dispatch failed", "status", status, "err", err)
	return models.DispatchResult{
		Delivered:  false,
		StatusCode: status,
		Message:    fmt.Sprintf("Webhook failed: %v", err),
	}
}
