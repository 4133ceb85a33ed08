package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-products/models"
	"github.com/xuri/excelize/v2"
)

// ScrapeDateLayout formats the Scrape Date column.
const ScrapeDateLayout = "2006-01-02 15:04:05"

// Header returns the export column labels in order.
func Header() []string {
	header := make([]string, 0, len(models.FieldNames)+3)
	header = append(header, "Product URL")
	for _, name := range models.FieldNames {
		header = append(header, string(name))
	}
	return append(header, "Error", "Scrape Date")
}

// Row renders one result as an export row stamped with scrapeDate.
func Row(result models.ScrapeResult, scrapeDate time.Time) []string {
	row := make([]string, 0, len(models.FieldNames)+3)
	row = append(row, result.URL)
	for _, name := range models.FieldNames {
		row = append(row, result.Fields.Get(name))
	}
	return append(row, result.Error, scrapeDate.Format(ScrapeDateLayout))
}

// CSVWriter writes results to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(Header()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends results to the CSV output.
func (cw *CSVWriter) Write(results []models.ScrapeResult, scrapeDate time.Time) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, result := range results {
		if err := cw.writer.Write(Row(result, scrapeDate)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// jsonRecord is the JSONL shape of one exported row.
type jsonRecord struct {
	URL        string        `json:"url"`
	Fields     models.Fields `json:"fields"`
	Error      string        `json:"error,omitempty"`
	Cached     bool          `json:"cached"`
	Retries    int           `json:"retries"`
	ScrapeDate string        `json:"scrape_date"`
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends results in JSONL format.
func (jw *JSONWriter) Write(results []models.ScrapeResult, scrapeDate time.Time) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	stamp := scrapeDate.Format(ScrapeDateLayout)
	for _, result := range results {
		record := jsonRecord{
			URL:        result.URL,
			Fields:     result.Fields.Clone(),
			Error:      result.Error,
			Cached:     result.Cached,
			Retries:    result.Retries,
			ScrapeDate: stamp,
		}
		if err := jw.encoder.Encode(record); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

const xlsxSheet = "Results"

// XLSXWriter writes results to a single-sheet workbook. Rows are buffered in
// memory and the file is saved on Close.
type XLSXWriter struct {
	filename string
	book     *excelize.File
	stream   *excelize.StreamWriter
	row      int
	mu       sync.Mutex
}

// NewXLSXWriter initialises the workbook and writes the header row.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	book := excelize.NewFile()
	if err := book.SetSheetName(book.GetSheetName(0), xlsxSheet); err != nil {
		book.Close()
		return nil, fmt.Errorf("rename xlsx sheet: %w", err)
	}
	stream, err := book.NewStreamWriter(xlsxSheet)
	if err != nil {
		book.Close()
		return nil, fmt.Errorf("create xlsx stream: %w", err)
	}

	xw := &XLSXWriter{filename: filename, book: book, stream: stream, row: 1}
	if err := xw.writeRow(Header()); err != nil {
		book.Close()
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}
	return xw, nil
}

func (xw *XLSXWriter) writeRow(values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, xw.row)
	if err != nil {
		return err
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := xw.stream.SetRow(cell, row); err != nil {
		return err
	}
	xw.row++
	return nil
}

// Write appends results to the sheet.
func (xw *XLSXWriter) Write(results []models.ScrapeResult, scrapeDate time.Time) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	for _, result := range results {
		if err := xw.writeRow(Row(result, scrapeDate)); err != nil {
			return fmt.Errorf("write xlsx row: %w", err)
		}
	}
	return nil
}

// Close flushes the sheet and saves the workbook.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	defer xw.book.Close()
	if err := xw.stream.Flush(); err != nil {
		return fmt.Errorf("flush xlsx stream: %w", err)
	}
	if err := xw.book.SaveAs(xw.filename); err != nil {
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return nil
}

// Validate ensures the sheet has data rows. Call before Close.
func (xw *XLSXWriter) Validate() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	if xw.row <= 2 {
		return fmt.Errorf("xlsx sheet has no rows")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
