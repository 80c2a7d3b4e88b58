package sheet

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtractor_Columns(t *testing.T) {
	e := NewExtractor(DefaultHeaderConfig(), testLogger())

	tests := []struct {
		name      string
		header    []string
		wantTime  int
		wantLabel int
		wantErr   error
	}{
		{"chinese exact", []string{"序号", "起始时间点", "问题描述"}, 1, 2, nil},
		{"label left of time", []string{"标题", "开始时间"}, 1, 0, nil},
		{"containment", []string{"编号", "录像 起始时间 (北京)", "问题描述及备注"}, 1, 2, nil},
		{"exact beats containment", []string{"time of day note", "time", "label"}, 1, 2, nil},
		{"leftmost wins", []string{"描述", "标题", "起始时间"}, 2, 0, nil},
		{"english with spacing", []string{"Start Time", " Description "}, 0, 1, nil},
		{"no time", []string{"问题描述", "备注"}, -1, -1, ErrNoTimeColumn},
		{"no label", []string{"起始时间点", "备注"}, -1, -1, ErrNoLabelColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotTime, gotLabel, err := e.Columns(tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Columns() error = %v, want %v", err, tt.wantErr)
			}
			if gotTime != tt.wantTime || gotLabel != tt.wantLabel {
				t.Errorf("Columns() = (%d, %d), want (%d, %d)", gotTime, gotLabel, tt.wantTime, tt.wantLabel)
			}
		})
	}
}

func TestExtractor_Extract(t *testing.T) {
	e := NewExtractor(DefaultHeaderConfig(), testLogger())

	tables := []Table{{
		Name:   "Sheet1",
		Header: []string{"起始时间点", "问题描述"},
		Rows: [][]string{
			{"起 2026-01-15 10:45:02 止 2026-01-15 10:46:00", "刹车异常"},
			{"", ""},
			{"not a time", "broken row"},
			{"起 2026-01-15 11:00:00 止 2026-01-15 11:00:30", ""},
			{"起 2026-01-15 12:00:00 止 2026-01-15 12:01:00", "车道偏离"},
		},
	}}

	res, err := e.Extract(tables)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(res.Segments) != 3 {
		t.Fatalf("len(Segments) = %d, want 3", len(res.Segments))
	}
	wantLabels := []string{"刹车异常", "segment_5", "车道偏离"}
	for i, want := range wantLabels {
		if res.Segments[i].Label != want {
			t.Errorf("Segments[%d].Label = %q, want %q", i, res.Segments[i].Label, want)
		}
	}
	if res.Segments[0].Row != 2 {
		t.Errorf("Segments[0].Row = %d, want 2", res.Segments[0].Row)
	}
	if got := res.Segments[0].Range.Duration(); got != 58*time.Second {
		t.Errorf("Segments[0] duration = %v, want 58s", got)
	}

	if len(res.Skipped) != 1 || res.Skipped[0].Row != 4 {
		t.Errorf("Skipped = %+v, want one entry for row 4", res.Skipped)
	}
}

func TestExtractor_Extract_MultipleSheets(t *testing.T) {
	e := NewExtractor(DefaultHeaderConfig(), testLogger())

	tables := []Table{
		{Name: "Notes", Header: []string{"备注"}, Rows: [][]string{{"nothing"}}},
		{
			Name:   "Clips",
			Header: []string{"time", "title"},
			Rows:   [][]string{{"from 2026-01-15 10:00:00 to 2026-01-15 10:00:20", "a"}},
		},
	}
	res, err := e.Extract(tables)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(res.Segments) != 1 || res.Segments[0].Sheet != "Clips" {
		t.Errorf("Segments = %+v, want one from sheet Clips", res.Segments)
	}
}

func TestExtractor_Extract_NoUsableSheet(t *testing.T) {
	e := NewExtractor(DefaultHeaderConfig(), testLogger())

	_, err := e.Extract([]Table{{Name: "S", Header: []string{"起始时间点", "备注"}}})
	if !errors.Is(err, ErrNoLabelColumn) {
		t.Errorf("Extract() error = %v, want ErrNoLabelColumn", err)
	}

	_, err = e.Extract(nil)
	if !errors.Is(err, ErrNoTimeColumn) {
		t.Errorf("Extract(nil) error = %v, want ErrNoTimeColumn", err)
	}
}

func TestHeaderConfig_Merge(t *testing.T) {
	base := DefaultHeaderConfig()
	merged := base.Merge(HeaderConfig{TimeHeaders: []string{"录像时间", "Time"}})

	if merged.TimeHeaders[0] != "录像时间" {
		t.Errorf("TimeHeaders[0] = %q, want extra header first", merged.TimeHeaders[0])
	}
	count := 0
	for _, h := range merged.TimeHeaders {
		if normalizeHeader(h) == "time" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("\"time\" appears %d times after merge, want 1", count)
	}
	if len(merged.LabelHeaders) != len(DefaultLabelHeaders) {
		t.Errorf("LabelHeaders changed: %v", merged.LabelHeaders)
	}
}

func TestReadCSV(t *testing.T) {
	data := "\ufeff起始时间点,问题描述\n\"起 2026-01-15 10:45:02\n止 2026-01-15 10:46:00\",刹车\n"
	tables, err := ReadCSV(strings.NewReader(data), "clips.csv")
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("len(tables) = %d, want 1", len(tables))
	}
	if tables[0].Header[0] != "起始时间点" {
		t.Errorf("Header[0] = %q, BOM not stripped", tables[0].Header[0])
	}

	res, err := NewExtractor(HeaderConfig{}, testLogger()).Extract(tables)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(res.Segments) != 1 {
		t.Errorf("len(Segments) = %d, want 1", len(res.Segments))
	}
}

func TestReadFile_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clips.xlsx")

	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A3", "起始时间")
	f.SetCellValue("Sheet1", "B3", "标题")
	f.SetCellValue("Sheet1", "A4", "起 2026-01-15 10:45:02 止 2026-01-15 10:46:00")
	f.SetCellValue("Sheet1", "B4", "first")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	f.Close()

	tables, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("len(tables) = %d, want 1", len(tables))
	}
	if tables[0].HeaderRow != 3 {
		t.Errorf("HeaderRow = %d, want 3", tables[0].HeaderRow)
	}

	res, err := NewExtractor(DefaultHeaderConfig(), testLogger()).Extract(tables)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(res.Segments) != 1 || res.Segments[0].Row != 4 || res.Segments[0].Label != "first" {
		t.Errorf("Segments = %+v", res.Segments)
	}
}

func TestReadFile_Unsupported(t *testing.T) {
	_, err := ReadFile("clips.ods")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ReadFile() error = %v, want ErrUnsupportedFormat", err)
	}
}
