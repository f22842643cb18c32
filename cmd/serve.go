package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/cardscan/internal/config"
	"github.com/lehigh-university-libraries/cardscan/internal/handlers"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string
	var noDispatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the business card upload API",
		Long: `Starts the card upload API on the specified port.

Uploaded cards are sent to the configured vision model, normalized, and
forwarded to MAKE_WEBHOOK_URL. The webhook URL is required unless
--no-dispatch is given.`,
		Example: `  # Start server on default port 8888
  cardscan serve

  # Start server on custom port without forwarding records
  cardscan serve --port 3000 --no-dispatch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if noDispatch {
				cfg.Dispatch.Disabled = true
			}

			p, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			handler := handlers.New(p, ingestOptions(cfg), cfg.Server.MaxUploadBytes)

			addr := ":" + cfg.Server.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Router(),
				ReadHeaderTimeout: 15 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Cardscan API available", "addr", addr, "url", "http://localhost"+addr+"/api/upload")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on (overrides PORT)")
	cmd.Flags().BoolVar(&noDispatch, "no-dispatch", false, "Do not forward records to the webhook")

	return cmd
}
