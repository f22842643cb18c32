// Package export writes batches of scanned cards to spreadsheet and
// columnar formats.
package export

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

// Record is one scanned card. Error is set instead of Fields when the card
// could not be processed.
type Record struct {
	Source string
	Fields models.FieldMap
	Error  string
}

const (
	SourceColumn = "source"
	ErrorColumn  = "error"
)

// Columns returns the output column order: card keys, back-only keys,
// timestamp, then back_side_processed, source and error
func Columns() []string {
	cols := make([]string, 0, len(models.CardKeys)+10)
	cols = append(cols, models.CardKeys...)
	cols = append(cols,
		models.AdditionalEmail,
		models.AdditionalPhone,
		models.AdditionalWebsite,
		models.Services,
		models.Timestamp,
		models.BackSideProcessed,
		SourceColumn,
		ErrorColumn,
	)
	return cols
}

// value returns the cell for column, or nil when empty
func (r Record) value(column string) any {
	switch column {
	case SourceColumn:
		return r.Source
	case ErrorColumn:
		if r.Error == "" {
			return nil
		}
		return r.Error
	case models.BackSideProcessed:
		if v, ok := r.Fields[column].(bool); ok {
			return v
		}
		return nil
	default:
		if s := r.Fields.Get(column); s != "" {
			return s
		}
		return nil
	}
}

type writerFunc func(io.Writer, []Record) error

var writers = map[string]writerFunc{
	".xlsx":    WriteXLSX,
	".parquet": WriteParquet,
	".yaml":    WriteYAML,
	".yml":     WriteYAML,
	".jsonl":   WriteJSONL,
}

// Formats lists the supported file extensions
func Formats() []string {
	return []string{".xlsx", ".parquet", ".yaml", ".yml", ".jsonl"}
}

// Write creates path and writes records in the format chosen by its extension
func Write(path string, records []Record) error {
	ext := strings.ToLower(filepath.Ext(path))
	write, ok := writers[ext]
	if !ok {
		return fmt.Errorf("unsupported export format %q (supported: %s)", ext, strings.Join(Formats(), ", "))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := write(f, records); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", ext, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}

	slog.Info("Export written", "path", path, "format", ext, "records", len(records))
	return nil
}

var readers = map[string]func(string) ([]Record, error){
	".parquet": ReadParquet,
	".jsonl":   ReadJSONL,
}

// Read loads a previous export. Only the formats that round-trip every
// column can be read back.
func Read(path string) ([]Record, error) {
	ext := strings.ToLower(filepath.Ext(path))
	read, ok := readers[ext]
	if !ok {
		return nil, fmt.Errorf("cannot read %q exports (readable: .parquet, .jsonl)", ext)
	}
	records, err := read(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("Export loaded", "path", path, "records", len(records))
	return records, nil
}
