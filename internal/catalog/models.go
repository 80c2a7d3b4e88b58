package catalog

import (
	"path/filepath"
	"strings"
	"time"
)

// SourceFile is one recording and the instant it starts.
type SourceFile struct {
	Path  string    `json:"path"`
	Start time.Time `json:"start"`
}

// DefaultVideoExtensions are the media extensions considered by a scan.
var DefaultVideoExtensions = []string{".mkv", ".mp4", ".mov", ".avi", ".wmv", ".flv", ".webm"}

// VideoExtensions is the lookup form of DefaultVideoExtensions.
var VideoExtensions = extensionSet(DefaultVideoExtensions)

// IsVideoFile reports whether filename has a default media extension,
// ignoring case.
func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}

func extensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	return set
}
