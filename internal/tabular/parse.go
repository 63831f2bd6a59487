// Package tabular turns uploaded CSV and spreadsheet files into dataset
// rows and checks their columns against the target dataset.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/JaimeStill/reconify/internal/datasets"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Extensions lists the file extensions Parse accepts.
var Extensions = []string{".csv", ".txt", ".xlsx", ".xlsm"}

// Supported reports whether filename has a parseable extension.
func Supported(filename string) bool {
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(filename)))
}

// Parse reads the first table in data. Headers are trimmed and
// lower-cased, cells are trimmed and blank rows are skipped. Every row
// carries every header column in header order.
func Parse(filename string, data []byte) ([]datasets.Row, error) {
	var (
		records [][]string
		err     error
	)

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		records, err = readCSV(data)
	case ".xlsx", ".xlsm":
		records, err = readSheet(data)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if err != nil {
		return nil, &ParseError{Filename: filename, Err: err}
	}

	rows, err := toRows(records)
	if err != nil {
		return nil, &ParseError{Filename: filename, Err: err}
	}
	return rows, nil
}

// readCSV decodes UTF-8 when valid and Windows-1252 otherwise, the
// encoding spreadsheet tools commonly export.
func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode text: %w", err)
		}
		data = decoded
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return records, nil
}

func readSheet(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func toRows(records [][]string) ([]datasets.Row, error) {
	start := 0
	for start < len(records) && blank(records[start]) {
		start++
	}
	if start == len(records) {
		return nil, errors.New("file is empty")
	}

	header, err := normalizeHeader(records[start])
	if err != nil {
		return nil, err
	}

	var rows []datasets.Row
	for _, rec := range records[start+1:] {
		if blank(rec) {
			continue
		}
		row := make(datasets.Row, len(header))
		for i, col := range header {
			var v string
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			row[i] = datasets.Cell{Column: col, Value: v}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, errors.New("file has a header but no data rows")
	}
	return rows, nil
}

func normalizeHeader(raw []string) ([]string, error) {
	// Trailing empty header cells are common in spreadsheet exports.
	end := len(raw)
	for end > 0 && strings.TrimSpace(raw[end-1]) == "" {
		end--
	}

	header := make([]string, end)
	seen := make(map[string]bool, end)
	for i, h := range raw[:end] {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			return nil, fmt.Errorf("empty column name at position %d", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate column %q", h)
		}
		seen[h] = true
		header[i] = h
	}
	return header, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
