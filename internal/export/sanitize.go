// Package export names and places the files a run produces.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// DefaultNameLength caps sanitised labels, in runes.
const DefaultNameLength = 120

// fallbackName replaces labels that sanitise to nothing.
const fallbackName = "clip"

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// SanitizeName turns a free-text label into a base file name that is valid
// on Windows, macOS and Linux. Control characters are dropped, reserved
// punctuation becomes '_', and trailing dots and spaces are trimmed.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isReservedNameRune(r) {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	cleaned = strings.TrimRight(cleaned, ". ")

	if cleaned == "" {
		return fallbackName
	}
	if reservedNames[strings.ToUpper(cleaned)] {
		cleaned = "_" + cleaned
	}
	return cleaned
}

func isReservedNameRune(r rune) bool {
	switch r {
	case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
		return true
	default:
		return false
	}
}

// PrepareOutputDir validates dir, creates it when missing and checks that
// files can be written there. It returns the absolute directory.
func PrepareOutputDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("output directory is required")
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return "", errors.New("output directory cannot contain path traversal")
		}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid output directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", fmt.Errorf("cannot create output directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("invalid output directory: %w", err)
	}
	if !info.IsDir() {
		return "", errors.New("output directory is not a directory")
	}

	probe, err := os.CreateTemp(abs, ".clipper-write-*")
	if err != nil {
		return "", fmt.Errorf("output directory is not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return abs, nil
}
