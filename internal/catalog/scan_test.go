package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.mp4", true},
		{"a.MKV", true},
		{"a.Webm", true},
		{"a.wmv", true},
		{"a.flv", true},
		{"a.avi", true},
		{"a.mov", true},
		{"a.txt", false},
		{"mp4", false},
		{"a.mp4.part", false},
	}
	for _, tt := range tests {
		if got := IsVideoFile(tt.name); got != tt.want {
			t.Errorf("IsVideoFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "2024-01-05 11-00-00.mkv"))
	touch(t, filepath.Join(root, "cam", "cam_20240105_100000.MP4"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "holiday.mp4"))
	touch(t, filepath.Join(root, ".trash", "2024-01-05 09-00-00.mkv"))

	s := NewScanner(nil, testLogger())
	inv, err := s.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if inv.Len() != 2 {
		t.Fatalf("Len() = %d, want 2: %+v", inv.Len(), inv.Files)
	}
	if filepath.Base(inv.Files[0].Path) != "cam_20240105_100000.MP4" {
		t.Errorf("Files[0] = %s, want the 10:00 recording", inv.Files[0].Path)
	}
	want := time.Date(2024, 1, 5, 11, 0, 0, 0, time.UTC)
	if !inv.Files[1].Start.Equal(want) {
		t.Errorf("Files[1].Start = %v, want %v", inv.Files[1].Start, want)
	}
	if len(inv.Skipped) != 1 || filepath.Base(inv.Skipped[0]) != "holiday.mp4" {
		t.Errorf("Skipped = %v, want [holiday.mp4]", inv.Skipped)
	}
}

func TestScanner_Scan_CustomExtensions(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "2024-01-05 11-00-00.ts"))
	touch(t, filepath.Join(root, "2024-01-05 12-00-00.mp4"))

	inv, err := NewScanner([]string{"TS"}, testLogger()).Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if inv.Len() != 1 || filepath.Ext(inv.Files[0].Path) != ".ts" {
		t.Errorf("Files = %+v, want only the .ts file", inv.Files)
	}
}

func TestScanner_Scan_Empty(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "holiday.mp4"))

	_, err := NewScanner(nil, testLogger()).Scan(context.Background(), root)
	if !errors.Is(err, ErrEmptyInventory) {
		t.Errorf("Scan() error = %v, want ErrEmptyInventory", err)
	}
}

func TestScanner_Scan_NotDirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "x.mp4")
	touch(t, file)

	if _, err := NewScanner(nil, testLogger()).Scan(context.Background(), file); err == nil {
		t.Error("Scan() should fail for a file path")
	}
	if _, err := NewScanner(nil, testLogger()).Scan(context.Background(), filepath.Join(root, "missing")); err == nil {
		t.Error("Scan() should fail for a missing path")
	}
}

func TestScanner_Scan_Cancelled(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "2024-01-05 11-00-00.mkv"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewScanner(nil, testLogger()).Scan(ctx, root); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
}
