package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned by ReadFile for unknown file extensions.
var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

// ReadFile loads every sheet of a workbook (.xlsx, .xlsm, .xltx) or the
// single table of a .csv file. The first non-blank row of each sheet is
// taken as its header.
func ReadFile(path string) ([]Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return readWorkbook(path)
	case ".csv":
		return readCSV(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func readWorkbook(path string) ([]Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var tables []Table
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		if tbl, ok := toTable(name, rows); ok {
			tables = append(tables, tbl)
		}
	}
	return tables, nil
}

func readCSV(path string) ([]Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, filepath.Base(path))
}

// ReadCSV parses comma separated rows from r. A leading UTF-8 byte order
// mark, as written by spreadsheet exports, is dropped.
func ReadCSV(r io.Reader, name string) ([]Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}

	tbl, ok := toTable(name, rows)
	if !ok {
		return nil, nil
	}
	return []Table{tbl}, nil
}

func toTable(name string, rows [][]string) (Table, bool) {
	for i, row := range rows {
		if blank(row) {
			continue
		}
		return Table{
			Name:      name,
			HeaderRow: i + 1,
			Header:    row,
			Rows:      rows[i+1:],
		}, true
	}
	return Table{}, false
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
