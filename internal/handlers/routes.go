package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// UploadPaths are the routes accepting card uploads
var UploadPaths = []string{"/api/upload", "/upload", "/api/scan"}

type contextKey struct{}

// RequestID returns the id assigned to the request, or ""
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Router registers the upload routes, CORS preflight and the healthcheck
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(withRequestID, withCORS)

	for _, path := range UploadPaths {
		router.HandleFunc(path, h.HandleUpload).Methods(http.MethodPost)
		router.HandleFunc(path, handlePreflight).Methods(http.MethodOptions)
		router.HandleFunc(path, h.methodNotAllowed)
	}

	router.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	}).Methods(http.MethodGet)

	router.MethodNotAllowedHandler = withRequestID(withCORS(http.HandlerFunc(h.methodNotAllowed)))
	return router
}

func handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		next.ServeHTTP(w, r)
	})
}

// withRequestID keeps an incoming X-Request-ID when it parses as a UUID
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		slog.Debug("Request received", "request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, id)))
	})
}
