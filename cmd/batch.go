package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/cardscan/internal/config"
	"github.com/lehigh-university-libraries/cardscan/internal/export"
	"github.com/lehigh-university-libraries/cardscan/internal/ingest"
	"github.com/lehigh-university-libraries/cardscan/internal/pipeline"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff"}

func newBatchCmd() *cobra.Command {
	var dir, output, resume string
	var concurrency int
	var send bool

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Scan every card image in a directory into a spreadsheet",
		Long: fmt.Sprintf(`Scans each image in --dir as a one-sided card and writes all records to
--output. The format follows the output extension (%s).

A card that fails is recorded with its error and does not stop the batch.
With --resume, cards that already succeeded in a previous .parquet or .jsonl
export are copied from it instead of being scanned again.`, strings.Join(export.Formats(), ", ")),
		Example: `  cardscan batch --dir ./cards --output cards.xlsx
  cardscan batch --dir ./cards --output cards.parquet --concurrency 8
  cardscan batch --dir ./cards --output cards.parquet --resume cards.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}

			cfg := config.Load()
			cfg.Dispatch.Disabled = !send

			p, err := buildPipeline(cfg)
			if err != nil {
				return err
			}

			files, err := listImages(dir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no images found in %s", dir)
			}

			done := map[string]export.Record{}
			if resume != "" {
				if done, err = resumable(resume); err != nil {
					return err
				}
			}
			todo := pending(files, done)
			slog.Info("Batch starting", "files", len(files), "resumed", len(files)-len(todo))

			start := time.Now()
			fresh := runBatch(cmd.Context(), p, ingestOptions(cfg), todo, concurrency)
			records := mergeRecords(files, done, fresh)

			failed := 0
			for _, r := range records {
				if r.Error != "" {
					failed++
				}
			}
			slog.Info("Batch complete", "files", len(files), "failed", failed, "elapsed_ms", time.Since(start).Milliseconds())

			return export.Write(output, records)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory of card images")
	cmd.Flags().StringVarP(&output, "output", "o", "cards.xlsx", "Output file")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "Cards processed in parallel")
	cmd.Flags().BoolVar(&send, "dispatch", false, "Forward each record to the webhook")
	cmd.Flags().StringVar(&resume, "resume", "", "Previous .parquet or .jsonl export whose successful cards are kept")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}

// listImages returns the image files directly under dir in name order
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// resumable returns the error-free records of a previous export keyed by source
func resumable(path string) (map[string]export.Record, error) {
	records, err := export.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load --resume export: %w", err)
	}
	done := make(map[string]export.Record, len(records))
	for _, r := range records {
		if r.Error == "" && r.Source != "" {
			done[r.Source] = r
		}
	}
	return done, nil
}

// pending returns the files with no record in done
func pending(files []string, done map[string]export.Record) []string {
	var todo []string
	for _, f := range files {
		if _, ok := done[f]; !ok {
			todo = append(todo, f)
		}
	}
	return todo
}

// mergeRecords lays resumed and freshly scanned records out in files order.
// fresh must be in the order pending returned.
func mergeRecords(files []string, done map[string]export.Record, fresh []export.Record) []export.Record {
	records := make([]export.Record, 0, len(files))
	next := 0
	for _, f := range files {
		if r, ok := done[f]; ok {
			records = append(records, r)
			continue
		}
		if next < len(fresh) {
			records = append(records, fresh[next])
			next++
		}
	}
	return records
}

// processor is the part of the pipeline the batch runner needs
type processor interface {
	Process(ctx context.Context, upload *ingest.Upload) (*pipeline.Result, error)
}

// runBatch processes files with at most limit in flight. Records keep the
// order of files.
func runBatch(ctx context.Context, p processor, opts ingest.Options, files []string, limit int) []export.Record {
	records := make([]export.Record, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range files {
		g.Go(func() error {
			records[i] = processFile(gctx, p, opts, path)
			return nil
		})
	}
	_ = g.Wait()

	return records
}

func processFile(ctx context.Context, p processor, opts ingest.Options, path string) export.Record {
	rec := export.Record{Source: path}

	data, err := os.ReadFile(path)
	if err != nil {
		rec.Error = fmt.Sprintf("failed to read file: %v", err)
		return rec
	}

	upload, err := ingest.FromBytes(data, nil, opts)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	result, err := p.Process(ctx, upload)
	if err != nil {
		slog.Error("Card failed", "source", path, "err", err)
		rec.Error = err.Error()
		return rec
	}

	rec.Fields = result.Fields
	slog.Debug("Card processed", "source", path, "delivered", result.Webhook.Delivered)
	return rec
}
