package cmd

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/lehigh-university-libraries/cardscan/internal/export"
	"github.com/lehigh-university-libraries/cardscan/internal/ingest"
	"github.com/lehigh-university-libraries/cardscan/internal/models"
	"github.com/lehigh-university-libraries/cardscan/internal/pipeline"
)

type fakeProcessor struct {
	calls atomic.Int32
}

func (f *fakeProcessor) Process(ctx context.Context, upload *ingest.Upload) (*pipeline.Result, error) {
	f.calls.Add(1)
	if bytes.Equal(upload.Front.Data, failingImage) {
		return nil, errors.New("extraction failed")
	}
	return &pipeline.Result{Fields: models.FieldMap{"full_name": "Jane Doe"}, Mode: upload.Mode}, nil
}

var failingImage []byte

func writePNG(t *testing.T, path string, w int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return buf.Bytes()
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 4)
	writePNG(t, filepath.Join(dir, "a.JPG"), 4)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0755); err != nil {
		t.Fatal(err)
	}

	files, err := listImages(dir)
	if err != nil {
		t.Fatalf("listImages failed: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.JPG" || filepath.Base(files[1]) != "b.png" {
		t.Errorf("Expected [a.JPG b.png], got %v", files)
	}

	if _, err := listImages(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	bad := filepath.Join(dir, "bad.png")
	notImage := filepath.Join(dir, "broken.png")
	writePNG(t, good, 4)
	failingImage = writePNG(t, bad, 6)
	if err := os.WriteFile(notImage, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	p := &fakeProcessor{}
	files := []string{good, bad, notImage, filepath.Join(dir, "gone.png")}
	records := runBatch(context.Background(), p, ingest.DefaultOptions(), files, 2)

	if len(records) != len(files) {
		t.Fatalf("Expected %d records, got %d", len(files), len(records))
	}
	for i, r := range records {
		if r.Source != files[i] {
			t.Errorf("Expected record %d source %s, got %s", i, files[i], r.Source)
		}
	}
	if records[0].Error != "" || records[0].Fields.Get("full_name") != "Jane Doe" {
		t.Errorf("Expected first record to succeed, got %+v", records[0])
	}
	if !strings.Contains(records[1].Error, "extraction failed") {
		t.Errorf("Expected extraction error, got %q", records[1].Error)
	}
	if !strings.Contains(records[2].Error, "InvalidPayload") {
		t.Errorf("Expected InvalidPayload, got %q", records[2].Error)
	}
	if !strings.Contains(records[3].Error, "failed to read file") {
		t.Errorf("Expected read error, got %q", records[3].Error)
	}
	if p.calls.Load() != 2 {
		t.Errorf("Expected 2 pipeline calls, got %d", p.calls.Load())
	}
}

func TestResumeSkipsSucceededCards(t *testing.T) {
	dir := t.TempDir()
	done := filepath.Join(dir, "done.png")
	retry := filepath.Join(dir, "retry.png")
	added := filepath.Join(dir, "added.png")
	writePNG(t, done, 4)
	writePNG(t, retry, 5)
	writePNG(t, added, 7)
	failingImage = nil

	previous := filepath.Join(dir, "previous.jsonl")
	err := export.Write(previous, []export.Record{
		{Source: done, Fields: models.FieldMap{"full_name": "Old Record"}},
		{Source: retry, Error: "UpstreamError: timeout"},
	})
	if err != nil {
		t.Fatalf("write previous export: %v", err)
	}

	resumed, err := resumable(previous)
	if err != nil {
		t.Fatalf("resumable failed: %v", err)
	}
	files := []string{added, done, retry}
	todo := pending(files, resumed)
	if len(todo) != 2 || todo[0] != added || todo[1] != retry {
		t.Fatalf("Expected [added retry] pending, got %v", todo)
	}

	p := &fakeProcessor{}
	records := mergeRecords(files, resumed, runBatch(context.Background(), p, ingest.DefaultOptions(), todo, 2))

	if p.calls.Load() != 2 {
		t.Errorf("Expected 2 pipeline calls, got %d", p.calls.Load())
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for i, r := range records {
		if r.Source != files[i] {
			t.Errorf("Expected record %d source %s, got %s", i, files[i], r.Source)
		}
		if r.Error != "" {
			t.Errorf("Expected record %d to succeed, got %q", i, r.Error)
		}
	}
	if got := records[1].Fields.Get("full_name"); got != "Old Record" {
		t.Errorf("Expected resumed record kept, got %q", got)
	}
	if got := records[2].Fields.Get("full_name"); got != "Jane Doe" {
		t.Errorf("Expected failed card rescanned, got %q", got)
	}

	if _, err := resumable(filepath.Join(dir, "previous.xlsx")); err == nil {
		t.Error("Expected error for an unreadable export format")
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "extract", "batch"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("Expected subcommand %s, got %v (%v)", name, c, err)
		}
	}
}
