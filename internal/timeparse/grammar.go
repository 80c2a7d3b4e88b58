package timeparse

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// grammar is one accepted timestamp notation. Every pattern captures
// year, month, day, hour, minute and an optional second in groups 1-6.
type grammar struct {
	name string
	re   *regexp.Regexp

	// fullPath grammars are matched against the slash-normalised full path,
	// the others against the base name only.
	fullPath bool

	// leading reports whether a match may begin at byte offset i of s.
	leading func(s string, i int) bool

	// timeSeps lists separators that must not be followed by a digit right
	// after the match; a dangling "-5" means a single-digit field, not a
	// shorter notation.
	timeSeps string
}

// fileGrammars is ordered most specific first. The strict two-digit forms
// run before the compact form so that a value the strict grammar accepts
// is never reinterpreted by the looser one.
var fileGrammars = []grammar{
	{
		name:     "strict",
		re:       regexp.MustCompile(`(\d{4})[-.](\d{2})[-.](\d{2})[ _](\d{2})[-.:](\d{2})[-.:](\d{2})`),
		leading:  notAfterDigit,
		timeSeps: "-.:",
	},
	{
		name:     "strict_minutes",
		re:       regexp.MustCompile(`(\d{4})[-.](\d{2})[-.](\d{2})[ _](\d{2})[-.:](\d{2})()`),
		leading:  notAfterDigit,
		timeSeps: "-.:",
	},
	{
		name:    "compact",
		re:      regexp.MustCompile(`(\d{4})(\d{2})(\d{2})_(\d{2})(\d{2})(\d{2})?`),
		leading: afterUnderscoreOrStart,
	},
	{
		name:     "path",
		re:       regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})(?:[ \t]+|/)(\d{1,2}):(\d{2})(?::(\d{2}))?`),
		fullPath: true,
		leading:  notAfterDigit,
		timeSeps: ":",
	},
}

// textDateTime is the lenient date-time used inside spreadsheet cells:
// any of - / . between date fields, one or two digit month, day and hour.
var textDateTime = grammar{
	name:     "text",
	re:       regexp.MustCompile(`(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})(?:[\sT_]+)(\d{1,2})[:：.](\d{2})(?:[:：.](\d{2}))?`),
	leading:  notAfterDigit,
	timeSeps: ":：.",
}

// occurrence is one validated match of a grammar.
type occurrence struct {
	at    time.Time
	start int // byte offset of the year
	end   int // byte offset just past the last time field
}

// first returns the first valid occurrence of g in s.
func (g grammar) first(s string) (occurrence, bool) {
	all := g.scan(s, 1)
	if len(all) == 0 {
		return occurrence{}, false
	}
	return all[0], true
}

// scan walks s left to right collecting up to limit valid occurrences
// (limit <= 0 means all). Candidates failing the boundary or calendar
// checks are skipped one byte at a time so that overlapping candidates
// are still considered.
func (g grammar) scan(s string, limit int) []occurrence {
	var out []occurrence
	pos := 0
	for pos < len(s) {
		loc := g.re.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if !g.leading(s, start) || !cleanEnd(s, end, g.timeSeps) {
			pos = start + 1
			continue
		}
		at, ok := buildTime(s[pos:], loc)
		if !ok {
			pos = start + 1
			continue
		}
		out = append(out, occurrence{at: at, start: start, end: end})
		if limit > 0 && len(out) >= limit {
			break
		}
		pos = end
	}
	return out
}

// subject returns the part of path a grammar is matched against.
func (g grammar) subject(path string) string {
	if g.fullPath {
		return filepath.ToSlash(path)
	}
	return filepath.Base(path)
}

// buildTime converts captured groups to a UTC timestamp. Values are taken
// at face value; a field the calendar would normalise (month 13, Feb 30)
// rejects the match instead.
func buildTime(s string, loc []int) (time.Time, bool) {
	var f [6]int
	for i := 0; i < 6; i++ {
		lo, hi := loc[2*(i+1)], loc[2*(i+1)+1]
		if lo < 0 || lo == hi {
			if i == 5 {
				continue // seconds are optional
			}
			return time.Time{}, false
		}
		n, err := strconv.Atoi(s[lo:hi])
		if err != nil {
			return time.Time{}, false
		}
		f[i] = n
	}
	t := time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], 0, time.UTC)
	if t.Year() != f[0] || int(t.Month()) != f[1] || t.Day() != f[2] ||
		t.Hour() != f[3] || t.Minute() != f[4] || t.Second() != f[5] {
		return time.Time{}, false
	}
	return t, true
}

func notAfterDigit(s string, i int) bool {
	return i == 0 || !isDigit(s[i-1])
}

func afterUnderscoreOrStart(s string, i int) bool {
	if i == 0 {
		return true
	}
	switch s[i-1] {
	case '_', '/', '\\':
		return true
	}
	return false
}

// cleanEnd reports whether a match ending at byte offset end is complete:
// not followed by a digit, nor by a separator that leads into another digit.
func cleanEnd(s string, end int, seps string) bool {
	if end >= len(s) {
		return true
	}
	if isDigit(s[end]) {
		return false
	}
	r, size := utf8.DecodeRuneInString(s[end:])
	if seps != "" && strings.ContainsRune(seps, r) {
		next := end + size
		if next < len(s) && isDigit(s[next]) {
			return false
		}
	}
	return true
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
