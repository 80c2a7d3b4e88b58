package catalog

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rainyday01/video-cutter/internal/sheet"
	"github.com/rainyday01/video-cutter/internal/timeparse"
)

var (
	// ErrEmptyInventory is returned when no file under the folder carries a
	// recognised start timestamp.
	ErrEmptyInventory = errors.New("no source file with a recognised timestamp")

	// ErrNoSourceFile is returned when a segment starts before the first recording.
	ErrNoSourceFile = errors.New("segment starts before the first source file")

	// ErrDuplicateSourceStart marks source files sharing one start time. It is
	// logged as a warning; matching inside such a group takes the first path
	// in lexical order.
	ErrDuplicateSourceStart = errors.New("source files share a start time")
)

// Inventory is the sorted list of source files of one folder. File i covers
// [Files[i].Start, start of the next later file); the last file covers
// everything after its start.
type Inventory struct {
	Root      string       `json:"root"`
	Files     []SourceFile `json:"files"`
	Skipped   []string     `json:"skipped,omitempty"`
	ScannedAt time.Time    `json:"scanned_at"`
}

// NewInventory sorts files by start time, breaking ties by path so that the
// order is the same on every run.
func NewInventory(root string, files []SourceFile) *Inventory {
	sorted := append([]SourceFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].Path < sorted[j].Path
	})
	return &Inventory{Root: root, Files: sorted, ScannedAt: time.Now()}
}

// Len returns the number of source files.
func (inv *Inventory) Len() int { return len(inv.Files) }

// DuplicateGroups returns every run of two or more files with equal starts.
func (inv *Inventory) DuplicateGroups() [][]SourceFile {
	var groups [][]SourceFile
	for i := 0; i < len(inv.Files); {
		j := i + 1
		for j < len(inv.Files) && inv.Files[j].Start.Equal(inv.Files[i].Start) {
			j++
		}
		if j-i > 1 {
			groups = append(groups, inv.Files[i:j])
		}
		i = j
	}
	return groups
}

// Coverage returns the window of file i. open is true for the last start
// group, whose window has no end.
func (inv *Inventory) Coverage(i int) (start, end time.Time, open bool) {
	start = inv.Files[i].Start
	for j := i + 1; j < len(inv.Files); j++ {
		if inv.Files[j].Start.After(start) {
			return start, inv.Files[j].Start, false
		}
	}
	return start, time.Time{}, true
}

// Match pairs a segment with the file covering its start.
type Match struct {
	Segment     sheet.Segment `json:"segment"`
	Source      SourceFile    `json:"source"`
	InPoint     time.Duration `json:"in_point"`
	RawDuration time.Duration `json:"raw_duration"`
	Duplicate   bool          `json:"duplicate,omitempty"`
}

// Locate returns the index of the file covering t: the greatest start not
// after t, taking the first file of a tied group.
func (inv *Inventory) Locate(t time.Time) (int, error) {
	n := len(inv.Files)
	if n == 0 {
		return -1, ErrEmptyInventory
	}
	i := sort.Search(n, func(i int) bool { return inv.Files[i].Start.After(t) }) - 1
	if i < 0 {
		return -1, fmt.Errorf("%w: %s is before %s", ErrNoSourceFile,
			t.Format(timeparse.Layout), inv.Files[0].Start.Format(timeparse.Layout))
	}
	for i > 0 && inv.Files[i-1].Start.Equal(inv.Files[i].Start) {
		i--
	}
	return i, nil
}

// Match finds the source file for seg. Only the segment start decides the
// match; an end past the next file's start still cuts from this file.
func (inv *Inventory) Match(seg sheet.Segment) (*Match, error) {
	i, err := inv.Locate(seg.Range.Start)
	if err != nil {
		return nil, err
	}
	src := inv.Files[i]
	dup := i+1 < len(inv.Files) && inv.Files[i+1].Start.Equal(src.Start)

	return &Match{
		Segment:     seg,
		Source:      src,
		InPoint:     seg.Range.Start.Sub(src.Start),
		RawDuration: seg.Range.Duration(),
		Duplicate:   dup,
	}, nil
}
