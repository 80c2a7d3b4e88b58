// Package sheet turns spreadsheet rows into labelled time segments.
package sheet

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rainyday01/video-cutter/internal/timeparse"
)

var (
	// ErrNoTimeColumn is returned when no header matches an accepted time header.
	ErrNoTimeColumn = errors.New("no time column found")

	// ErrNoLabelColumn is returned when no header matches an accepted label header.
	ErrNoLabelColumn = errors.New("no label column found")
)

// DefaultTimeHeaders are the accepted headers of the time-range column.
var DefaultTimeHeaders = []string{
	"起始时间点", "起始时间", "开始时间", "时间段", "时间",
	"start/end time", "time range", "start time", "time",
}

// DefaultLabelHeaders are the accepted headers of the description column.
var DefaultLabelHeaders = []string{
	"问题描述", "片段名称", "描述", "标题", "问题",
	"description", "label", "title", "name",
}

// HeaderConfig lists accepted header strings per column role.
type HeaderConfig struct {
	TimeHeaders  []string `yaml:"time" json:"time"`
	LabelHeaders []string `yaml:"label" json:"label"`
}

// DefaultHeaderConfig returns the built-in header lists.
func DefaultHeaderConfig() HeaderConfig {
	return HeaderConfig{
		TimeHeaders:  append([]string(nil), DefaultTimeHeaders...),
		LabelHeaders: append([]string(nil), DefaultLabelHeaders...),
	}
}

// Merge returns a config whose lists hold extra's entries ahead of c's.
func (c HeaderConfig) Merge(extra HeaderConfig) HeaderConfig {
	return HeaderConfig{
		TimeHeaders:  dedupe(append(append([]string(nil), extra.TimeHeaders...), c.TimeHeaders...)),
		LabelHeaders: dedupe(append(append([]string(nil), extra.LabelHeaders...), c.LabelHeaders...)),
	}
}

// Table is one sheet: a header row followed by data rows.
type Table struct {
	Name      string
	HeaderRow int // 1-based row number of Header; 0 means the first row
	Header    []string
	Rows      [][]string
}

// Segment is a requested clip.
type Segment struct {
	Sheet string          `json:"sheet,omitempty"`
	Row   int             `json:"row"` // 1-based spreadsheet row, header included
	Label string          `json:"label"`
	Range timeparse.Range `json:"range"`
}

// SkippedRow records a data row that produced no segment.
type SkippedRow struct {
	Sheet  string `json:"sheet,omitempty"`
	Row    int    `json:"row"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Result is the outcome of an extraction.
type Result struct {
	Segments []Segment    `json:"segments"`
	Skipped  []SkippedRow `json:"skipped,omitempty"`
}

// Extractor resolves the time and label columns and parses each row.
type Extractor struct {
	cfg    HeaderConfig
	logger *slog.Logger
}

// NewExtractor creates an Extractor. Empty lists fall back to the defaults.
func NewExtractor(cfg HeaderConfig, logger *slog.Logger) *Extractor {
	if len(cfg.TimeHeaders) == 0 {
		cfg.TimeHeaders = DefaultTimeHeaders
	}
	if len(cfg.LabelHeaders) == 0 {
		cfg.LabelHeaders = DefaultLabelHeaders
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract walks every table in order and returns the segments in row order.
// A table whose headers cannot be resolved is skipped as long as another
// table resolves; when none does, the first table's error is returned.
// Rows whose time cell does not parse are skipped with a warning.
func (e *Extractor) Extract(tables []Table) (*Result, error) {
	res := &Result{Segments: []Segment{}}
	var firstErr error
	resolved := 0

	for _, tbl := range tables {
		timeCol, labelCol, err := e.Columns(tbl.Header)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("sheet %q: %w", tbl.Name, err)
			}
			e.logger.Debug("sheet skipped", "sheet", tbl.Name, "error", err)
			continue
		}
		resolved++

		e.logger.Info("sheet columns resolved",
			"sheet", tbl.Name,
			"time_header", tbl.Header[timeCol],
			"label_header", tbl.Header[labelCol],
			"rows", len(tbl.Rows),
		)

		headerRow := tbl.HeaderRow
		if headerRow < 1 {
			headerRow = 1
		}
		for i, row := range tbl.Rows {
			rowNum := headerRow + i + 1
			text := strings.TrimSpace(cell(row, timeCol))
			if text == "" {
				continue
			}

			r, err := timeparse.ParseRange(text)
			if err != nil {
				e.logger.Warn("row skipped: unparseable time cell",
					"sheet", tbl.Name, "row", rowNum, "text", text, "error", err)
				res.Skipped = append(res.Skipped, SkippedRow{
					Sheet: tbl.Name, Row: rowNum, Text: text, Reason: err.Error(),
				})
				continue
			}

			label := strings.TrimSpace(cell(row, labelCol))
			if label == "" {
				label = fmt.Sprintf("segment_%d", rowNum)
				e.logger.Warn("row has no label, using fallback",
					"sheet", tbl.Name, "row", rowNum, "label", label)
			}

			res.Segments = append(res.Segments, Segment{
				Sheet: tbl.Name,
				Row:   rowNum,
				Label: label,
				Range: r,
			})
		}
	}

	if resolved == 0 {
		if firstErr == nil {
			firstErr = ErrNoTimeColumn
		}
		return nil, firstErr
	}
	return res, nil
}

// Columns returns the indices of the time and label columns. Exact header
// matches are preferred over containment matches; within a pass the
// leftmost column wins. The label column is never the time column.
func (e *Extractor) Columns(header []string) (timeCol, labelCol int, err error) {
	timeCol = findColumn(header, e.cfg.TimeHeaders, -1)
	if timeCol < 0 {
		return -1, -1, ErrNoTimeColumn
	}
	labelCol = findColumn(header, e.cfg.LabelHeaders, timeCol)
	if labelCol < 0 {
		return -1, -1, ErrNoLabelColumn
	}
	return timeCol, labelCol, nil
}

func findColumn(header, accepted []string, exclude int) int {
	want := make([]string, 0, len(accepted))
	for _, a := range accepted {
		if n := normalizeHeader(a); n != "" {
			want = append(want, n)
		}
	}

	for i, h := range header {
		if i == exclude {
			continue
		}
		n := normalizeHeader(h)
		for _, w := range want {
			if n == w {
				return i
			}
		}
	}
	for i, h := range header {
		if i == exclude {
			continue
		}
		n := normalizeHeader(h)
		if n == "" {
			continue
		}
		for _, w := range want {
			if strings.Contains(n, w) {
				return i
			}
		}
	}
	return -1
}

// normalizeHeader lowercases and drops all whitespace, including the
// full-width space common in CJK spreadsheets.
func normalizeHeader(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', '\u3000', '\u00a0':
			return -1
		}
		return r
	}, strings.ToLower(s))
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		k := normalizeHeader(s)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
