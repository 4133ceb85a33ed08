package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-products/models"
)

var (
	// ErrEmptyBatch is returned when there is nothing to export.
	ErrEmptyBatch = errors.New("pipeline: empty batch")
)

// OutputWriter defines the interface for result output.
type OutputWriter interface {
	Write(results []models.ScrapeResult, scrapeDate time.Time) error
	Close() error
	Validate() error
}

// NewOutputWriter opens the writer for format at filename. The dual format
// writes CSV to filename and JSONL next to it; all adds XLSX.
func NewOutputWriter(format, filename string) (OutputWriter, error) {
	var (
		w   OutputWriter
		err error
	)
	switch format {
	case "csv":
		w, err = NewCSVWriter(filename)
	case "json":
		w, err = NewJSONWriter(filename)
	case "xlsx":
		w, err = NewXLSXWriter(filename)
	case "dual":
		w, err = NewDualWriter(filename, SiblingPath(filename, ".jsonl"))
	case "all":
		w, err = NewAllWriter(filename)
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// SiblingPath swaps the extension of filename for ext.
func SiblingPath(filename, ext string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}

// Export writes every result in the batch, stamped with the batch
// completion time, then validates and closes w. w is closed on every path.
func Export(w OutputWriter, batch *models.Batch) (err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if batch == nil || len(batch.Results) == 0 {
		return ErrEmptyBatch
	}

	scrapeDate := batch.CompletedAt
	if scrapeDate.IsZero() {
		scrapeDate = time.Now()
	}

	if err := w.Write(batch.Results, scrapeDate); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("validate output: %w", err)
	}

	slog.Info("results exported",
		slog.String("batch_id", batch.ID.String()),
		slog.Int("rows", len(batch.Results)),
		slog.Int("errors", batch.ErrorCount()),
	)
	return nil
}
