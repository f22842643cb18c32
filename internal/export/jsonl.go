package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

// WriteJSONL writes one JSON object per line
func WriteJSONL(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for i, rec := range records {
		obj := make(map[string]any, len(Columns()))
		for _, c := range Columns() {
			obj[c] = rec.value(c)
		}
		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	return nil
}

// ReadJSONL loads records written by WriteJSONL, skipping malformed lines
func ReadJSONL(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		var obj map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &obj); err != nil {
			slog.Warn("Failed to parse JSONL line", "line", lineNum, "err", err)
			continue
		}

		rec := Record{Fields: models.FieldMap{}}
		for k, v := range obj {
			switch k {
			case SourceColumn:
				rec.Source, _ = v.(string)
			case ErrorColumn:
				rec.Error, _ = v.(string)
			default:
				if v != nil {
					rec.Fields[k] = v
				}
			}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading JSONL file: %w", err)
	}
	return records, nil
}
