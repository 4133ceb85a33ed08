// Package models defines data structures for the scraper.
package models

import (
	"time"

	"github.com/google/uuid"
)

// NotFound is the placeholder for any field that was not positively resolved.
const NotFound = "Not found"

// FieldName identifies one extracted product field. The value doubles as the
// column label used in exports.
type FieldName string

const (
	ProductTitle    FieldName = "Product Title"
	BrandStore      FieldName = "Brand Store"
	BrandStoreURL   FieldName = "Brand Store URL"
	ItemModelNumber FieldName = "Item model number"
	Manufacturer    FieldName = "Manufacturer"
)

// FieldNames lists every field in export order.
var FieldNames = []FieldName{
	ProductTitle,
	BrandStore,
	BrandStoreURL,
	ItemModelNumber,
	Manufacturer,
}

// Fields maps each field to its resolved value.
type Fields map[FieldName]string

// NewFields returns a field set with every field at NotFound.
func NewFields() Fields {
	f := make(Fields, len(FieldNames))
	for _, name := range FieldNames {
		f[name] = NotFound
	}
	return f
}

// Get returns the value for name, treating missing and empty values as NotFound.
func (f Fields) Get(name FieldName) string {
	if v, ok := f[name]; ok && v != "" {
		return v
	}
	return NotFound
}

// Complete reports whether every field was resolved.
func (f Fields) Complete() bool {
	for _, name := range FieldNames {
		if f.Get(name) == NotFound {
			return false
		}
	}
	return true
}

// Resolved reports whether at least one field was resolved.
func (f Fields) Resolved() bool {
	for _, name := range FieldNames {
		if f.Get(name) != NotFound {
			return true
		}
	}
	return false
}

// Clone returns an independent copy with every known field present.
func (f Fields) Clone() Fields {
	out := NewFields()
	for _, name := range FieldNames {
		out[name] = f.Get(name)
	}
	return out
}

// ScrapeResult is the terminal outcome for one input URL.
type ScrapeResult struct {
	URL       string    `json:"url"`
	Fields    Fields    `json:"fields"`
	Error     string    `json:"error,omitempty"`
	Cached    bool      `json:"cached"`
	Retries   int       `json:"retries"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// Failed reports whether the URL ended in an error.
func (r ScrapeResult) Failed() bool {
	return r.Error != ""
}

// Batch holds the results of one orchestration run, in input order.
type Batch struct {
	ID          uuid.UUID      `json:"id"`
	Results     []ScrapeResult `json:"results"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}

// ErrorCount returns the number of failed results.
func (b *Batch) ErrorCount() int {
	n := 0
	for _, r := range b.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// CachedCount returns the number of results served from cache.
func (b *Batch) CachedCount() int {
	n := 0
	for _, r := range b.Results {
		if r.Cached {
			n++
		}
	}
	return n
}
