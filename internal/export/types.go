package export

import "time"

// Clip is one event of an edit decision list: a cut taken from a recording.
type Clip struct {
	Name      string
	MediaPath string // recording the clip is cut from
	Output    string // clip file written by the run, if any
	Row       int    // spreadsheet row, 0 if unknown

	// RecordedAt is when the recording began. When set, source timecodes
	// are the wall-clock time of day, matching the spreadsheet.
	RecordedAt time.Time

	In  time.Duration // offset into the recording
	Out time.Duration
}
