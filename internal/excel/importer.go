package excel

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// maxDocumentSize limits uploads read into memory
const maxDocumentSize = 10 << 20

// ImportConfig defines which cells are turned into text
type ImportConfig struct {
	SheetName string   // Name of the sheet to import; empty means every sheet
	Columns   []string // Column letters to read; empty means every column
	StartRow  int      // The row to start importing from (1-based index)
}

// DefaultImportConfig reads every cell of every sheet
func DefaultImportConfig() ImportConfig {
	return ImportConfig{StartRow: 1}
}

// ImportResult holds the extracted text
type ImportResult struct {
	Text  string
	Rows  int
	Cells int
}

// SupportedExtension reports whether a document name can be imported
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm", ".csv", ".txt":
		return true
	}
	return false
}

// Import reads text from a document; the format is chosen by the file name
func Import(name string, r io.Reader, config ImportConfig) (*ImportResult, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("document is larger than %d MB", maxDocumentSize>>20)
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return importFromExcel(data, config)
	case ".csv":
		return importFromCSV(data, config)
	case ".txt":
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("text file is not valid UTF-8")
		}
		text := string(data)
		return &ImportResult{Text: text, Rows: strings.Count(text, "\n") + 1}, nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(name))
	}
}

// importFromExcel joins the selected cells of the workbook
func importFromExcel(data []byte, config ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if config.SheetName != "" {
		sheets = []string{config.SheetName}
	}

	columns, err := columnIndexes(config.Columns)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	var b strings.Builder
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to get rows of %s: %w", sheet, err)
		}
		appendRows(&b, rows, columns, config.StartRow, result)
	}

	result.Text = b.String()
	return result, nil
}

// importFromCSV joins the selected fields of a CSV file
func importFromCSV(data []byte, config ImportConfig) (*ImportResult, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	columns, err := columnIndexes(config.Columns)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	var b strings.Builder
	appendRows(&b, rows, columns, config.StartRow, result)
	result.Text = b.String()
	return result, nil
}

func appendRows(b *strings.Builder, rows [][]string, columns []int, startRow int, result *ImportResult) {
	for i, row := range rows {
		// Skip header rows
		if i < startRow-1 {
			continue
		}

		var cells []string
		if len(columns) == 0 {
			cells = row
		} else {
			for _, col := range columns {
				if col < len(row) {
					cells = append(cells, row[col])
				}
			}
		}

		written := false
		for _, cell := range cells {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if written {
				b.WriteString(" ")
			}
			b.WriteString(cell)
			written = true
			result.Cells++
		}
		if written {
			b.WriteString("\n")
			result.Rows++
		}
	}
}

// columnIndexes converts column letters like "A" or "AB" to zero-based indexes
func columnIndexes(letters []string) ([]int, error) {
	indexes := make([]int, 0, len(letters))
	for _, l := range letters {
		n, err := excelize.ColumnNameToNumber(strings.TrimSpace(l))
		if err != nil {
			return nil, fmt.Errorf("invalid column %q: %w", l, err)
		}
		indexes = append(indexes, n-1)
	}
	return indexes, nil
}
