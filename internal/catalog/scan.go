package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rainyday01/video-cutter/internal/timeparse"
)

// Scanner builds inventories from folder trees.
type Scanner struct {
	extensions map[string]bool
	logger     *slog.Logger
}

// NewScanner creates a Scanner accepting the given extensions, or the
// defaults when none are given.
func NewScanner(extensions []string, logger *slog.Logger) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultVideoExtensions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{extensions: extensionSet(extensions), logger: logger}
}

// Accepts reports whether name has one of the scanner's media extensions.
func (s *Scanner) Accepts(name string) bool {
	return s.extensions[strings.ToLower(filepath.Ext(name))]
}

// Scan walks root recursively, skipping hidden directories. Media files
// whose name or path carries no recognised timestamp are skipped with a
// warning. Duplicate start times are logged but do not fail the scan.
func (s *Scanner) Scan(ctx context.Context, root string) (*Inventory, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absRoot)
	}

	s.logger.Info("starting scan", "path", absRoot)

	var (
		files   []SourceFile
		skipped []string
	)
	err = filepath.WalkDir(absRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("cannot read entry", "path", p, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != absRoot && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.Accepts(d.Name()) {
			return nil
		}

		start, err := timeparse.ParseFileTimestamp(p)
		if err != nil {
			s.logger.Warn("file skipped: no timestamp in name", "path", p)
			skipped = append(skipped, p)
			return nil
		}
		files = append(files, SourceFile{Path: p, Start: start})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s (%d media files skipped)", ErrEmptyInventory, absRoot, len(skipped))
	}

	inv := NewInventory(absRoot, files)
	inv.Skipped = skipped

	for _, group := range inv.DuplicateGroups() {
		paths := make([]string, len(group))
		for i, f := range group {
			paths[i] = f.Path
		}
		s.logger.Warn("duplicate source start",
			"error", ErrDuplicateSourceStart,
			"start", group[0].Start.Format(timeparse.Layout),
			"files", paths,
			"chosen", paths[0],
		)
	}

	s.logger.Info("scan completed",
		"path", absRoot,
		"files", len(inv.Files),
		"skipped", len(skipped),
		"first", inv.Files[0].Start.Format(timeparse.Layout),
		"last", inv.Files[len(inv.Files)-1].Start.Format(timeparse.Layout),
	)
	return inv, nil
}
