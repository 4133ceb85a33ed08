// Package pipeline exports scrape results as CSV, JSONL and XLSX.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-products/models"
)

// MultiWriter fans every call out to a fixed set of writers.
type MultiWriter struct {
	writers []OutputWriter
	mu      sync.Mutex
}

// NewMultiWriter combines writers. Writes go to each writer in order.
func NewMultiWriter(writers ...OutputWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// openMulti runs each opener in order. Writers opened before a failure are
// closed again.
func openMulti(opens ...func() (OutputWriter, error)) (*MultiWriter, error) {
	writers := make([]OutputWriter, 0, len(opens))
	for _, open := range opens {
		w, err := open()
		if err != nil {
			for _, opened := range writers {
				opened.Close()
			}
			return nil, err
		}
		writers = append(writers, w)
	}
	return NewMultiWriter(writers...), nil
}

// NewDualWriter writes CSV to csvFilename and JSONL to jsonFilename.
func NewDualWriter(csvFilename, jsonFilename string) (*MultiWriter, error) {
	return openMulti(
		func() (OutputWriter, error) { return NewCSVWriter(csvFilename) },
		func() (OutputWriter, error) { return NewJSONWriter(jsonFilename) },
	)
}

// NewAllWriter writes CSV to filename plus JSONL and XLSX siblings.
func NewAllWriter(filename string) (*MultiWriter, error) {
	return openMulti(
		func() (OutputWriter, error) { return NewCSVWriter(filename) },
		func() (OutputWriter, error) { return NewJSONWriter(SiblingPath(filename, ".jsonl")) },
		func() (OutputWriter, error) { return NewXLSXWriter(SiblingPath(filename, ".xlsx")) },
	)
}

// Write stops at the first writer that fails.
func (mw *MultiWriter) Write(results []models.ScrapeResult, scrapeDate time.Time) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	for i, w := range mw.writers {
		if err := w.Write(results, scrapeDate); err != nil {
			return fmt.Errorf("writer %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every writer and joins their errors.
func (mw *MultiWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for i, w := range mw.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks every writer and joins their errors.
func (mw *MultiWriter) Validate() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	var errs []error
	for i, w := range mw.writers {
		if err := w.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("validate writer %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
