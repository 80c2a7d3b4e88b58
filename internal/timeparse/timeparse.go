// Package timeparse turns free-form timestamp text from spreadsheet cells and
// recording file names into absolute, second-resolution times.
//
// Every notation is an entry in an ordered grammar table; the first grammar
// that fully matches wins. Times are read at face value and returned in UTC
// so that no zone or daylight-saving rule can shift them.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrUnrecognizedFormat is returned when no supported notation matches.
	ErrUnrecognizedFormat = errors.New("unrecognized timestamp format")

	// ErrInvertedRange is returned for a range whose end precedes its start.
	ErrInvertedRange = errors.New("time range ends before it starts")
)

// Range is an absolute time interval. Start is never after End.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (r Range) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

func (r Range) String() string {
	return r.Start.Format(Layout) + " ~ " + r.End.Format(Layout)
}

// Layout is the canonical rendering used in logs and listings.
const Layout = "2006-01-02 15:04:05"

// Value is the result of Parse: a single instant or a range.
type Value struct {
	Start   time.Time
	End     time.Time
	IsRange bool
}

// Instant returns the parsed instant when the text held a single timestamp.
func (v Value) Instant() (time.Time, bool) {
	return v.Start, !v.IsRange
}

// Parse accepts any supported notation. The range form is tried first,
// then the file-name grammars in priority order, then a lone lenient
// date-time.
func Parse(text string) (Value, error) {
	r, err := ParseRange(text)
	if err == nil {
		return Value{Start: r.Start, End: r.End, IsRange: true}, nil
	}
	if errors.Is(err, ErrInvertedRange) {
		return Value{}, err
	}

	if t, err := ParseFileTimestamp(text); err == nil {
		return Value{Start: t, End: t}, nil
	}

	if occ, ok := textDateTime.first(text); ok {
		return Value{Start: occ.at, End: occ.at}, nil
	}
	return Value{}, fmt.Errorf("%w: %q", ErrUnrecognizedFormat, truncate(text, 64))
}

// ParseFileTimestamp extracts the recording start time from a media file
// path. Grammars that match the base name are tried before the path form,
// which looks at the whole path because recorders often put the date in
// directory names.
func ParseFileTimestamp(path string) (time.Time, error) {
	for _, g := range fileGrammars {
		if occ, ok := g.first(g.subject(path)); ok {
			return occ.at, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnrecognizedFormat, path)
}

type role int

const (
	roleNone role = iota
	roleStart
	roleEnd
)

// markerRe finds start and end marker tokens. Longer tokens are listed
// first so 起始 is seen as one token.
var markerRe = regexp.MustCompile(`(?i)(起始|开始|起|start|from|begin|结束|终止|截止|止|至|end|until|to)`)

var startMarkers = map[string]bool{
	"起始": true, "开始": true, "起": true, "start": true, "from": true, "begin": true,
}

// ParseRange parses a spreadsheet time cell such as
// "起 2026-01-15 10:45:02 止 2026-01-15 11:30:00". Each date-time is tagged
// by the last marker token preceding it, so halves may come in either
// order and with any separator, including none. Untagged halves, and halves
// whose role is already taken, fill the remaining roles by position.
func ParseRange(text string) (Range, error) {
	occs := textDateTime.scan(text, 0)
	if len(occs) < 2 {
		return Range{}, fmt.Errorf("%w: %q", ErrUnrecognizedFormat, truncate(text, 64))
	}

	var (
		start, end *occurrence
		untagged   []*occurrence
		prevEnd    int
	)
	for i := range occs {
		o := &occs[i]
		switch markerBefore(text[prevEnd:o.start]) {
		case roleStart:
			if start == nil {
				start = o
			} else {
				untagged = append(untagged, o)
			}
		case roleEnd:
			if end == nil {
				end = o
			} else {
				untagged = append(untagged, o)
			}
		default:
			untagged = append(untagged, o)
		}
		prevEnd = o.end
	}

	for _, o := range untagged {
		switch {
		case start == nil:
			start = o
		case end == nil:
			end = o
		}
	}
	if start == nil || end == nil {
		return Range{}, fmt.Errorf("%w: %q", ErrUnrecognizedFormat, truncate(text, 64))
	}

	r := Range{Start: start.at, End: end.at}
	if r.End.Before(r.Start) {
		return Range{}, fmt.Errorf("%w: %s", ErrInvertedRange, r)
	}
	return r, nil
}

// markerBefore returns the role of the last marker token in gap. A Latin
// marker only counts as a whole word, so "weekend" or "tomorrow" tag
// nothing; digits may touch it, as in "start2026-01-15".
func markerBefore(gap string) role {
	all := markerRe.FindAllStringIndex(gap, -1)
	for i := len(all) - 1; i >= 0; i-- {
		lo, hi := all[i][0], all[i][1]
		tok := strings.ToLower(gap[lo:hi])
		if isLatinWord(tok) && (lo > 0 && isLatinLetter(gap[lo-1]) || hi < len(gap) && isLatinLetter(gap[hi])) {
			continue
		}
		if startMarkers[tok] {
			return roleStart
		}
		return roleEnd
	}
	return roleNone
}

func isLatinWord(s string) bool {
	return s != "" && isLatinLetter(s[0])
}

func isLatinLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
