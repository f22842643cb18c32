package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/cardscan/internal/ingest"
	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

type uploadResponse struct {
	Success        bool                  `json:"success"`
	Message        string                `json:"message"`
	Data           models.FieldMap       `json:"data"`
	ProcessingMode models.ProcessingMode `json:"processing_mode"`
	Webhook        models.DispatchResult `json:"webhook"`
	Warnings       []string              `json:"warnings,omitempty"`
	RequestID      string                `json:"request_id"`
	RawReply       string                `json:"raw_reply,omitempty"`
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	requestID := RequestID(r.Context())
	start := time.Now()

	upload, err := ingest.FromRequest(r, h.ingestOpts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	slog.Info("Processing business card",
		"request_id", requestID,
		"mode", upload.Mode,
		"front_bytes", len(upload.Front.Data),
		"reencoded", upload.Front.Reencoded,
	)

	result, err := h.processor.Process(r.Context(), upload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	message := "Business card processed successfully"
	if result.Mode == models.ModeDouble {
		message = "Business card (front and back) processed successfully"
	}
	if !result.Webhook.Delivered {
		message += "; " + result.Webhook.Message
	}

	slog.Info("Business card processed",
		"request_id", requestID,
		"mode", result.Mode,
		"delivered", result.Webhook.Delivered,
		"warnings", len(result.Warnings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	h.writeJSON(w, http.StatusOK, uploadResponse{
		Success:        true,
		Message:        message,
		Data:           result.Fields,
		ProcessingMode: result.Mode,
		Webhook:        result.Webhook,
		Warnings:       result.Warnings,
		RequestID:      requestID,
		RawReply:       result.RawReply,
	})
}
