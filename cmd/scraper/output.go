package main

import (
	"fmt"
	"io"

	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	urlColumnWidth   = 48
	valueColumnWidth = 32
)

func resultsTable(out io.Writer, batch *models.Batch) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Product URL", WidthMax: urlColumnWidth},
		{Name: string(models.ProductTitle), WidthMax: valueColumnWidth},
		{Name: string(models.BrandStore), WidthMax: valueColumnWidth},
		{Name: string(models.BrandStoreURL), WidthMax: urlColumnWidth},
		{Name: "Error", WidthMax: valueColumnWidth},
	})

	header := table.Row{"#", "Product URL"}
	for _, name := range models.FieldNames {
		header = append(header, string(name))
	}
	t.AppendHeader(append(header, "Error"))

	for i, result := range batch.Results {
		row := table.Row{i + 1, result.URL}
		for _, name := range models.FieldNames {
			row = append(row, result.Fields.Get(name))
		}
		t.AppendRow(append(row, result.Error))
	}

	t.AppendFooter(table.Row{"Total", len(batch.Results), "", "", "", "", "", fmt.Sprintf("%d errors", batch.ErrorCount())})
	return t
}

func renderResults(out io.Writer, batch *models.Batch) {
	fmt.Fprintln(out)
	resultsTable(out, batch).Render()
}

func printSummary(out io.Writer, batch *models.Batch, outputFile string) {
	separator := "--------------------------------------------------"
	duration := batch.CompletedAt.Sub(batch.StartedAt)
	total := len(batch.Results)
	errCount := batch.ErrorCount()

	successRate := 0.0
	if total > 0 {
		successRate = float64(total-errCount) / float64(total) * 100
	}
	retries := 0
	for _, r := range batch.Results {
		retries += r.Retries
	}

	fmt.Fprintln(out, "\n"+separator)
	fmt.Fprintln(out, "Scrape complete")
	fmt.Fprintf(out, "  Batch:         %s\n", batch.ID)
	fmt.Fprintf(out, "  Total URLs:    %d\n", total)
	fmt.Fprintf(out, "  Success rate:  %.2f%%\n", successRate)
	fmt.Fprintf(out, "  Errors:        %d\n", errCount)
	fmt.Fprintf(out, "  From cache:    %d\n", batch.CachedCount())
	fmt.Fprintf(out, "  Retries:       %d\n", retries)
	fmt.Fprintf(out, "  Duration:      %v\n", duration)
	fmt.Fprintf(out, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(out, separator)
}
