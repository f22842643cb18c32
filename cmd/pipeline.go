package cmd

import (
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/cardscan/internal/config"
	"github.com/lehigh-university-libraries/cardscan/internal/dispatch"
	"github.com/lehigh-university-libraries/cardscan/internal/extraction"
	"github.com/lehigh-university-libraries/cardscan/internal/ingest"
	"github.com/lehigh-university-libraries/cardscan/internal/normalize"
	"github.com/lehigh-university-libraries/cardscan/internal/pipeline"
)

// buildPipeline validates cfg and wires the extraction, normalization and
// dispatch clients. Dispatch is left out when cfg.Dispatch.Disabled is set.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	extractor, err := extraction.NewFromConfig(cfg.Extraction)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction service: %w", err)
	}

	var dispatcher dispatch.Dispatcher
	if !cfg.Dispatch.Disabled {
		dispatcher = dispatch.New(cfg.Dispatch.WebhookURL, cfg.WebhookTimeout())
	}

	slog.Info("Pipeline configured",
		"provider", extractor.Provider(),
		"dispatch", !cfg.Dispatch.Disabled,
		"lenient_parse", cfg.Extraction.LenientParse,
	)
	return pipeline.New(extractor, normalize.New(), dispatcher, pipeline.Options{
		LenientParse: cfg.Extraction.LenientParse,
	}), nil
}

func ingestOptions(cfg *config.Config) ingest.Options {
	opts := ingest.DefaultOptions()
	opts.MaxBytes = cfg.Ingest.MaxBytes
	opts.MaxDimension = cfg.Ingest.MaxDimension
	opts.JPEGQuality = cfg.Ingest.JPEGQuality
	return opts
}
