package timeparse

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func at(y int, mo time.Month, d, h, mi, s int) time.Time {
	return time.Date(y, mo, d, h, mi, s, 0, time.UTC)
}

func TestParseFileTimestamp(t *testing.T) {
	tests := []struct {
		name string
		path string
		want time.Time
	}{
		{"strict dash", "/rec/2024-01-05 10-30-07.mkv", at(2024, 1, 5, 10, 30, 7)},
		{"strict dot underscore", "2024.01.05_10.30.07.mp4", at(2024, 1, 5, 10, 30, 7)},
		{"strict with prefix", "Replay 2024-12-31 23-59-59.mkv", at(2024, 12, 31, 23, 59, 59)},
		{"strict no seconds", "2024-01-05 10-30.mkv", at(2024, 1, 5, 10, 30, 0)},
		{"compact seconds", "cam_20240105_103007.mp4", at(2024, 1, 5, 10, 30, 7)},
		{"compact minutes", "cam_20240105_1030_front.mp4", at(2024, 1, 5, 10, 30, 0)},
		{"compact at start", "20240105_103007.MP4", at(2024, 1, 5, 10, 30, 7)},
		{"path in directories", "/media/2024/1/5 9:03:04.mp4", at(2024, 1, 5, 9, 3, 4)},
		{"path without seconds", "/media/2024/11/25 17:45.mov", at(2024, 11, 25, 17, 45, 0)},
		{"path date dirs", "/media/2024/3/7/8:15:00.mov", at(2024, 3, 7, 8, 15, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFileTimestamp(tt.path)
			if err != nil {
				t.Fatalf("ParseFileTimestamp(%q) error: %v", tt.path, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseFileTimestamp(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseFileTimestamp_Rejects(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"no digits", "holiday.mp4"},
		{"single digit month strict", "2024-1-05 10-30-07.mkv"},
		{"single digit second strict", "2024-01-05 10-30-7.mkv"},
		{"compact not after underscore", "cam20240105_103007.mp4"},
		{"compact too many digits", "cam_20240105_1030071.mp4"},
		{"month out of range", "2024-13-05 10-30-07.mkv"},
		{"february 30", "cam_20240230_103007.mp4"},
		{"hour out of range", "2024-01-05 25-30-07.mkv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFileTimestamp(tt.path)
			if !errors.Is(err, ErrUnrecognizedFormat) {
				t.Errorf("ParseFileTimestamp(%q) = %v, %v; want ErrUnrecognizedFormat", tt.path, got, err)
			}
		})
	}
}

func TestParseFileTimestamp_StrictWinsOverCompact(t *testing.T) {
	// Both grammars can see a timestamp here; the strict one must win.
	path := "_20230101_000000 2024-06-07 08-09-10.mkv"
	got, err := ParseFileTimestamp(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := at(2024, 6, 7, 8, 9, 10); !got.Equal(want) {
		t.Errorf("got %v, want strict parse %v", got, want)
	}
}

func TestParseFileTimestamp_BaseNameBeforePath(t *testing.T) {
	path := "/archive/2020/1/1 0:00/cam_20240105_103007.mp4"
	got, err := ParseFileTimestamp(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := at(2024, 1, 5, 10, 30, 7); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	formats := []struct {
		name   string
		format func(time.Time) string
	}{
		{"strict", func(t time.Time) string { return t.Format("2006-01-02 15-04-05") + ".mkv" }},
		{"strict dot", func(t time.Time) string { return t.Format("2006.01.02_15.04.05") + ".mkv" }},
		{"compact", func(t time.Time) string { return "rec_" + t.Format("20060102_150405") + ".mp4" }},
		{"path", func(t time.Time) string {
			return fmt.Sprintf("/data/%d/%d/%d %d:%02d:%02d.mp4",
				t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second())
		}},
	}
	samples := []time.Time{
		at(2024, 1, 5, 0, 0, 0),
		at(2024, 2, 29, 9, 8, 7),
		at(1999, 12, 31, 23, 59, 59),
		at(2026, 10, 16, 12, 34, 56),
	}
	for _, f := range formats {
		for _, want := range samples {
			text := f.format(want)
			got, err := ParseFileTimestamp(text)
			if err != nil {
				t.Errorf("%s: ParseFileTimestamp(%q) error: %v", f.name, text, err)
				continue
			}
			if !got.Equal(want) {
				t.Errorf("%s: ParseFileTimestamp(%q) = %v, want %v", f.name, text, got, want)
			}
		}
	}
}

func TestParseRange(t *testing.T) {
	start := at(2026, 1, 15, 10, 45, 2)
	end := at(2026, 1, 15, 11, 30, 0)

	tests := []struct {
		name string
		text string
	}{
		{"chinese markers", "起 2026-01-15 10:45:02 止 2026-01-15 11:30:00"},
		{"reversed order", "止 2026-01-15 11:30:00 起 2026-01-15 10:45:02"},
		{"no separator", "起2026-01-15 10:45:02止2026-01-15 11:30:00"},
		{"crlf", "起始: 2026-01-15 10:45:02\r\n结束: 2026-01-15 11:30:00"},
		{"mixed date separators", "起 2026/1/15 10:45:02 止 2026.01.15 11:30:00"},
		{"english", "Start: 2026-01-15 10:45:02\nEnd: 2026-01-15 11:30:00"},
		{"english reversed", "to 2026-01-15 11:30:00 from 2026-01-15 10:45:02"},
		{"unmarked", "2026-01-15 10:45:02 ~ 2026-01-15 11:30:00"},
		{"one marker", "2026-01-15 10:45:02 至 2026-01-15 11:30:00"},
		{"marker inside word", "Start (extended) 2026-01-15 10:45:02 End 2026-01-15 11:30:00"},
		{"weekend", "Start of weekend shift 2026-01-15 10:45:02 End 2026-01-15 11:30:00"},
		{"tomorrow", "Start tomorrow 2026-01-15 10:45:02 End 2026-01-15 11:30:00"},
		{"latin marker touching digits", "start2026-01-15 10:45:02end2026-01-15 11:30:00"},
		{"repeated start marker", "起 2026-01-15 10:45:02 起 2026-01-15 11:30:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.text)
			if err != nil {
				t.Fatalf("ParseRange(%q) error: %v", tt.text, err)
			}
			if !got.Start.Equal(start) || !got.End.Equal(end) {
				t.Errorf("ParseRange(%q) = %v, want %v ~ %v", tt.text, got, start, end)
			}
		})
	}
}

func TestParseRange_OptionalSeconds(t *testing.T) {
	got, err := ParseRange("起 2026-01-15 9:05 止 2026-01-15 9:06")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Duration() != time.Minute {
		t.Errorf("Duration() = %v, want 1m", got.Duration())
	}
}

func TestParseRange_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"empty", "", ErrUnrecognizedFormat},
		{"single timestamp", "起 2026-01-15 10:45:02", ErrUnrecognizedFormat},
		{"garbage", "see attached notes", ErrUnrecognizedFormat},
		{"inverted", "起 2026-01-15 11:30:00 止 2026-01-15 10:45:02", ErrInvertedRange},
		{"invalid day", "起 2026-02-30 10:45:02 止 2026-02-30 11:30:00", ErrUnrecognizedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRange(tt.text)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseRange(%q) error = %v, want %v", tt.text, err, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	v, err := Parse("起 2026-01-15 10:45:02 止 2026-01-15 11:30:00")
	if err != nil {
		t.Fatalf("Parse range error: %v", err)
	}
	if !v.IsRange {
		t.Error("expected a range")
	}

	v, err = Parse("cam_20240105_103007.mp4")
	if err != nil {
		t.Fatalf("Parse file name error: %v", err)
	}
	if ts, ok := v.Instant(); !ok || !ts.Equal(at(2024, 1, 5, 10, 30, 7)) {
		t.Errorf("Instant() = %v, %v", ts, ok)
	}

	v, err = Parse("2026-01-15 10:45:02")
	if err != nil {
		t.Fatalf("Parse single error: %v", err)
	}
	if ts, _ := v.Instant(); !ts.Equal(at(2026, 1, 15, 10, 45, 2)) {
		t.Errorf("Instant() = %v", ts)
	}

	if _, err := Parse("nothing here"); !errors.Is(err, ErrUnrecognizedFormat) {
		t.Errorf("Parse(garbage) error = %v, want ErrUnrecognizedFormat", err)
	}
}
