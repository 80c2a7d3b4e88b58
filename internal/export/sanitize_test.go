package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Lane change", "Lane change"},
		{"cjk kept", "刹车异常（右侧）", "刹车异常（右侧）"},
		{"reserved punctuation", `a<b>c:d"e/f\g|h?i*j`, "a_b_c_d_e_f_g_h_i_j"},
		{"control chars", " A\nB\rC\tD\x00 ", "ABCD"},
		{"trailing dots", "ends with dots...", "ends with dots"},
		{"empty", "   ", "clip"},
		{"only dots", "..", "clip"},
		{"windows device", "con", "_con"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in, 100); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeName_MaxLength(t *testing.T) {
	got := SanitizeName("abcdefghijklmnopqrstuvwxyz", 10)
	if len([]rune(got)) != 10 {
		t.Fatalf("expected length 10, got %d (%q)", len([]rune(got)), got)
	}
	if strings.ContainsAny(SanitizeName(strings.Repeat("路", 300), DefaultNameLength), "�") {
		t.Fatal("truncation split a rune")
	}
}

func TestPrepareOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	got, err := PrepareOutputDir(dir)
	if err != nil {
		t.Fatalf("PrepareOutputDir(%q) error = %v", dir, err)
	}
	if got != dir {
		t.Errorf("PrepareOutputDir() = %q, want %q", got, dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("write probe left behind: %v", entries)
	}
}

func TestPrepareOutputDir_Rejects(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "file.txt")
	if err := os.WriteFile(filePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	for _, dir := range []string{"", "  ", "/tmp/../etc", filePath} {
		if _, err := PrepareOutputDir(dir); err == nil {
			t.Errorf("PrepareOutputDir(%q) expected error", dir)
		}
	}
}

func TestNamer_Reserve(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	n := NewNamer(dir, ".mp4")
	tests := []struct {
		label string
		want  string
	}{
		{"a/b", "a_b.mp4"},
		{"a:b", "a_b_1.mp4"},
		{"a_b", "a_b_2.mp4"},
		{"existing", "existing_1.mp4"},
		{"", "clip.mp4"},
	}
	for _, tt := range tests {
		got := n.Reserve(tt.label)
		if got != filepath.Join(dir, tt.want) {
			t.Errorf("Reserve(%q) = %q, want %q", tt.label, filepath.Base(got), tt.want)
		}
	}
}
