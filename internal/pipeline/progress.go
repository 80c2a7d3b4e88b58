package pipeline

import (
	"strconv"
	"strings"
	"time"
)

// ProgressKind classifies a line of tool output.
type ProgressKind int

const (
	ProgressNone ProgressKind = iota // not a progress line
	ProgressTime                     // encoded media time advanced
	ProgressEnd                      // the tool reported completion
)

// ProgressLine is a parsed line of tool output.
type ProgressLine struct {
	Kind ProgressKind
	At   time.Duration
}

// ParseProgressLine recognises the key=value lines written by
// "-progress pipe:1" (out_time_us, out_time_ms, out_time, progress) and the
// "time=hh:mm:ss.xx" field of the classic stats line. Anything else,
// including "N/A" values, is ProgressNone.
func ParseProgressLine(line string) ProgressLine {
	line = strings.TrimSpace(line)
	if line == "" {
		return ProgressLine{}
	}

	if key, value, ok := strings.Cut(line, "="); ok && !strings.ContainsAny(key, " \t") {
		switch key {
		case "out_time_us", "out_time_ms":
			// ffmpeg reports microseconds under both keys.
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 {
				return ProgressLine{}
			}
			return ProgressLine{Kind: ProgressTime, At: time.Duration(us) * time.Microsecond}
		case "out_time":
			if d, ok := parseClock(value); ok {
				return ProgressLine{Kind: ProgressTime, At: d}
			}
			return ProgressLine{}
		case "progress":
			if value == "end" {
				return ProgressLine{Kind: ProgressEnd}
			}
			return ProgressLine{}
		}
	}

	if i := strings.Index(line, "time="); i >= 0 {
		field := strings.TrimLeft(line[i+len("time="):], " ")
		if j := strings.IndexAny(field, " \t"); j >= 0 {
			field = field[:j]
		}
		if d, ok := parseClock(field); ok {
			return ProgressLine{Kind: ProgressTime, At: d}
		}
	}
	return ProgressLine{}
}

// parseClock parses [-]hh:mm:ss[.frac].
func parseClock(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || sec < 0 || sec >= 60 {
		return 0, false
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second))
	return d, true
}

// Fraction converts encoded time to a completion fraction in [0, 1].
func Fraction(encoded, planned time.Duration) float64 {
	if planned <= 0 {
		return 0
	}
	f := float64(encoded) / float64(planned)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
