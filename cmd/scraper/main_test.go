package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/google/uuid"
)

func testBatch() *models.Batch {
	start := time.Date(2025, 11, 4, 13, 9, 0, 0, time.UTC)
	return &models.Batch{
		ID: uuid.New(),
		Results: []models.ScrapeResult{
			{
				URL: "https://www.amazon.co.uk/dp/B1",
				Fields: models.Fields{
					models.ProductTitle:    "Acme Widget",
					models.BrandStore:      "Visit the Acme Store",
					models.BrandStoreURL:   "https://www.amazon.co.uk/stores/Acme",
					models.ItemModelNumber: "XZ-100",
					models.Manufacturer:    "Acme Corp",
				},
				Retries: 2,
			},
			{
				URL:    "not a url",
				Fields: models.NewFields(),
				Error:  "Invalid URL format.",
			},
		},
		StartedAt:   start,
		CompletedAt: start.Add(3 * time.Second),
	}
}

func TestRenderResults(t *testing.T) {
	var buf bytes.Buffer
	renderResults(&buf, testBatch())

	out := buf.String()
	for _, want := range []string{"Acme Corp", "XZ-100", "Invalid URL format.", models.NotFound} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, testBatch(), "output/products.csv")

	out := buf.String()
	for _, want := range []string{
		"Total URLs:    2",
		"Success rate:  50.00%",
		"Errors:        1",
		"Retries:       2",
		"Duration:      3s",
		"output/products.csv",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestReadURLs(t *testing.T) {
	urls, err := readURLs("", []string{"https://www.amazon.co.uk/dp/A", " ", "https://www.amazon.co.uk/dp/B"})
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("urls = %v, want 2 entries", urls)
	}

	path := filepath.Join(t.TempDir(), "urls.csv")
	if err := os.WriteFile(path, []byte("url\nhttps://www.amazon.co.uk/dp/C\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	urls, err = readURLs(path, []string{"ignored"})
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://www.amazon.co.uk/dp/C" {
		t.Fatalf("urls = %v", urls)
	}
}

func TestRootCmdFlagsOverrideConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.APIKey = "from-env"

	cmd := newRootCmd(cfg)
	if err := cmd.ParseFlags([]string{"--api-key", "from-flag", "-c", "4", "--initial-delay=false", "--format", "xlsx"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	if cfg.APIKey != "from-flag" || cfg.Concurrency != 4 || cfg.UseInitialDelay || cfg.OutputFormat != "xlsx" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.CachePath != config.DefaultConfig().CachePath {
		t.Fatalf("unset flags should keep config values, cache = %q", cfg.CachePath)
	}
}

func TestRootCmdRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.APIKey = "key"

	cmd := newRootCmd(cfg)
	cmd.SetArgs([]string{"-c", "11", "https://www.amazon.co.uk/dp/A"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("concurrency above the limit should fail")
	}
}
