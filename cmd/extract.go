package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/lehigh-university-libraries/cardscan/internal/config"
	"github.com/lehigh-university-libraries/cardscan/internal/ingest"
	"github.com/spf13/cobra"
)

func newExtractCmd() *cobra.Command {
	var backPath string
	var send bool

	cmd := &cobra.Command{
		Use:   "extract <front-image>",
		Short: "Extract contact fields from a local business card image",
		Long: `Runs one card through the extraction pipeline and prints the normalized
record as JSON. Pass --back for two-sided cards.

Records are only forwarded to MAKE_WEBHOOK_URL when --dispatch is set.`,
		Example: `  cardscan extract card.jpg
  cardscan extract front.jpg --back back.jpg --dispatch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			cfg.Dispatch.Disabled = !send

			p, err := buildPipeline(cfg)
			if err != nil {
				return err
			}

			front, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read front image: %w", err)
			}
			var back []byte
			if backPath != "" {
				if back, err = os.ReadFile(backPath); err != nil {
					return fmt.Errorf("failed to read back image: %w", err)
				}
			}

			upload, err := ingest.FromBytes(front, back, ingestOptions(cfg))
			if err != nil {
				return err
			}

			result, err := p.Process(cmd.Context(), upload)
			if err != nil {
				return err
			}
			for _, w := range result.Warnings {
				slog.Warn(w)
			}
			if send {
				slog.Info("Webhook result", "delivered", result.Webhook.Delivered, "status", result.Webhook.StatusCode, "message", result.Webhook.Message)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result.Fields)
		},
	}

	cmd.Flags().StringVar(&backPath, "back", "", "Image of the back of the card")
	cmd.Flags().BoolVar(&send, "dispatch", false, "Forward the record to the webhook")

	return cmd
}
