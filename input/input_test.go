package input

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func equalURLs(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("urls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("urls[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFromText(t *testing.T) {
	text := "https://www.amazon.co.uk/dp/A\n\n   \n  https://www.amazon.co.uk/dp/B  \r\nnot a url\n"
	urls, err := FromText(strings.NewReader(text))
	if err != nil {
		t.Fatalf("from text: %v", err)
	}
	// Invalid lines are kept so the scraper can report them.
	equalURLs(t, urls, []string{
		"https://www.amazon.co.uk/dp/A",
		"https://www.amazon.co.uk/dp/B",
		"not a url",
	})
}

func TestFromCSV(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "header row dropped",
			body: "url,note\nhttps://www.amazon.co.uk/dp/A,first\nhttps://www.amazon.co.uk/dp/B,second\n",
			want: []string{"https://www.amazon.co.uk/dp/A", "https://www.amazon.co.uk/dp/B"},
		},
		{
			name: "no header",
			body: "https://www.amazon.co.uk/dp/A\nhttps://www.amazon.co.uk/dp/B\n",
			want: []string{"https://www.amazon.co.uk/dp/A", "https://www.amazon.co.uk/dp/B"},
		},
		{
			name: "ragged rows and blanks",
			body: "Product URL\n\nhttps://www.amazon.co.uk/dp/A,x,y\n ,\nbad-entry\n",
			want: []string{"https://www.amazon.co.uk/dp/A", "bad-entry"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			urls, err := FromCSV(strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("from csv: %v", err)
			}
			equalURLs(t, urls, tt.want)
		})
	}
}

func writeWorkbook(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()

	sheet := book.GetSheetName(0)
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := book.SetCellValue(sheet, cell, value); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestFromXLSX(t *testing.T) {
	buf := writeWorkbook(t, [][]string{
		{"URL", "Notes"},
		{"https://www.amazon.co.uk/dp/A", "first"},
		{"https://www.amazon.co.uk/dp/B"},
	})

	urls, err := FromXLSX(buf)
	if err != nil {
		t.Fatalf("from xlsx: %v", err)
	}
	equalURLs(t, urls, []string{"https://www.amazon.co.uk/dp/A", "https://www.amazon.co.uk/dp/B"})
}

func TestFromXLSXRejectsGarbage(t *testing.T) {
	if _, err := FromXLSX(strings.NewReader("definitely not a zip")); err == nil {
		t.Fatalf("expected error for invalid workbook")
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	textPath := filepath.Join(dir, "urls.txt")
	if err := os.WriteFile(textPath, []byte("https://www.amazon.co.uk/dp/A\n"), 0o644); err != nil {
		t.Fatalf("write text: %v", err)
	}
	csvPath := filepath.Join(dir, "urls.CSV")
	if err := os.WriteFile(csvPath, []byte("url\nhttps://www.amazon.co.uk/dp/B\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	xlsxPath := filepath.Join(dir, "urls.xlsx")
	buf := writeWorkbook(t, [][]string{{"https://www.amazon.co.uk/dp/C"}})
	if err := os.WriteFile(xlsxPath, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	tests := []struct {
		path string
		want string
	}{
		{path: textPath, want: "https://www.amazon.co.uk/dp/A"},
		{path: csvPath, want: "https://www.amazon.co.uk/dp/B"},
		{path: xlsxPath, want: "https://www.amazon.co.uk/dp/C"},
	}
	for _, tt := range tests {
		urls, err := FromFile(tt.path)
		if err != nil {
			t.Fatalf("from file %s: %v", tt.path, err)
		}
		equalURLs(t, urls, []string{tt.want})
	}

	xlsPath := filepath.Join(dir, "legacy.xls")
	if err := os.WriteFile(xlsPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write xls: %v", err)
	}
	if _, err := FromFile(xlsPath); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := FromFile(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
