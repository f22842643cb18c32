package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/cardscan/internal/apperr"
	"github.com/lehigh-university-libraries/cardscan/internal/ingest"
	"github.com/lehigh-university-libraries/cardscan/internal/pipeline"
)

// Processor runs one upload through the card pipeline
type Processor interface {
	Process(ctx context.Context, upload *ingest.Upload) (*pipeline.Result, error)
}

type Handler struct {
	processor      Processor
	ingestOpts     ingest.Options
	maxUploadBytes int64
}

// New returns a handler. maxUploadBytes caps the request body; zero means
// no limit.
func New(p Processor, opts ingest.Options, maxUploadBytes int64) *Handler {
	return &Handler{
		processor:      p,
		ingestOpts:     opts,
		maxUploadBytes: maxUploadBytes,
	}
}

type errorResponse struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	Message        string `json:"message"`
	RequestID      string `json:"request_id,omitempty"`
	RawReply       string `json:"raw_reply,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	resp := errorResponse{
		Error:     "InternalError",
		Message:   err.Error(),
		RequestID: RequestID(r.Context()),
	}
	if e, ok := apperr.As(err); ok {
		resp.Error = string(e.Kind)
		resp.Message = e.Error()
		switch e.Kind {
		case apperr.UnparsableReply:
			resp.RawReply = e.Raw
		case apperr.UpstreamError:
			resp.UpstreamStatus = e.Status
		}
	}

	slog.Error("Request failed", "request_id", resp.RequestID, "kind", resp.Error, "status", status, "err", err)
	h.writeJSON(w, status, resp)
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	slog.Warn("Method not allowed", "request_id", RequestID(r.Context()), "method", r.Method, "path", r.URL.Path)
	h.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
}
