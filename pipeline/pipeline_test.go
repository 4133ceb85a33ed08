package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/google/uuid"
)

type recordingWriter struct {
	rows      int
	date      time.Time
	closed    bool
	writeErr  error
	closeErr  error
	validated bool
}

func (w *recordingWriter) Write(results []models.ScrapeResult, scrapeDate time.Time) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.rows += len(results)
	w.date = scrapeDate
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func (w *recordingWriter) Validate() error {
	w.validated = true
	return nil
}

func TestExportStampsCompletionTime(t *testing.T) {
	w := &recordingWriter{}
	batch := &models.Batch{
		ID:          uuid.New(),
		Results:     testResults(),
		CompletedAt: testScrapeDate,
	}

	if err := Export(w, batch); err != nil {
		t.Fatalf("export: %v", err)
	}
	if w.rows != 2 || !w.date.Equal(testScrapeDate) {
		t.Fatalf("rows=%d date=%v", w.rows, w.date)
	}
	if !w.validated || !w.closed {
		t.Fatalf("writer should be validated and closed")
	}
}

func TestExportClosesOnFailure(t *testing.T) {
	w := &recordingWriter{}
	if err := Export(w, &models.Batch{}); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if !w.closed {
		t.Fatalf("writer should be closed")
	}

	failing := &recordingWriter{writeErr: errors.New("disk full")}
	batch := &models.Batch{Results: testResults()}
	if err := Export(failing, batch); err == nil {
		t.Fatalf("expected write error")
	}
	if !failing.closed || failing.validated {
		t.Fatalf("failed write should close without validating")
	}
}

func TestNewOutputWriter(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		format string
		file   string
		extra  []string
	}{
		{format: "csv", file: "out.csv"},
		{format: "json", file: "out.jsonl"},
		{format: "xlsx", file: "out.xlsx"},
		{format: "dual", file: "dual.csv", extra: []string{"dual.jsonl"}},
		{format: "all", file: "all.csv", extra: []string{"all.jsonl", "all.xlsx"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			w, err := NewOutputWriter(tt.format, path)
			if err != nil {
				t.Fatalf("new writer: %v", err)
			}
			batch := &models.Batch{ID: uuid.New(), Results: testResults(), CompletedAt: testScrapeDate}
			if err := Export(w, batch); err != nil {
				t.Fatalf("export: %v", err)
			}
			if _, err := os.Stat(path); err != nil {
				t.Fatalf("output missing: %v", err)
			}
			for _, extra := range tt.extra {
				if _, err := os.Stat(filepath.Join(dir, extra)); err != nil {
					t.Fatalf("sibling output missing: %v", err)
				}
			}
		})
	}

	if _, err := NewOutputWriter("yaml", filepath.Join(dir, "out.yaml")); err == nil {
		t.Fatalf("unknown format should fail")
	}
}

func TestSiblingPath(t *testing.T) {
	if got := SiblingPath("output/scraped_data.csv", ".jsonl"); got != "output/scraped_data.jsonl" {
		t.Fatalf("SiblingPath = %q", got)
	}
	if got := SiblingPath("data", ".jsonl"); got != "data.jsonl" {
		t.Fatalf("SiblingPath = %q", got)
	}
}

func TestMultiWriterFansOut(t *testing.T) {
	first, second := &recordingWriter{}, &recordingWriter{}
	mw := NewMultiWriter(first, second)

	if err := mw.Write(testResults(), testScrapeDate); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mw.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for i, w := range []*recordingWriter{first, second} {
		if w.rows != 2 || !w.validated || !w.closed {
			t.Fatalf("writer %d: rows=%d validated=%v closed=%v", i, w.rows, w.validated, w.closed)
		}
	}
}

func TestMultiWriterErrors(t *testing.T) {
	diskFull := errors.New("disk full")
	failing := &recordingWriter{writeErr: diskFull}
	after := &recordingWriter{}
	mw := NewMultiWriter(failing, after)

	if err := mw.Write(testResults(), testScrapeDate); !errors.Is(err, diskFull) {
		t.Fatalf("expected disk full, got %v", err)
	}
	if after.rows != 0 {
		t.Fatalf("writes should stop at the first failure")
	}

	closeA, closeB := errors.New("close a"), errors.New("close b")
	mw = NewMultiWriter(&recordingWriter{closeErr: closeA}, &recordingWriter{closeErr: closeB})
	err := mw.Close()
	if !errors.Is(err, closeA) || !errors.Is(err, closeB) {
		t.Fatalf("close should join every error, got %v", err)
	}
}
