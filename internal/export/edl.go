package export

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const day = 24 * time.Hour

// GenerateEDL renders clips as a CMX3600 edit decision list at fps frames
// per second, non-drop frame. Record times run back to back in clip order,
// so the list conforms to a reel of the cut clips.
func GenerateEDL(title string, clips []Clip, fps int) string {
	if fps <= 0 {
		fps = 30
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", title)
	b.WriteString("FCM: NON-DROP FRAME\n\n")

	var record time.Duration
	for i, c := range clips {
		length := c.Out - c.In
		srcIn, srcOut := c.In, c.Out
		if !c.RecordedAt.IsZero() {
			base := timeOfDay(c.RecordedAt)
			srcIn, srcOut = base+c.In, base+c.Out
		}

		fmt.Fprintf(&b, "%03d  %-8s %-5s C        %s %s %s %s\n", i+1, "AX", "V",
			timecode(srcIn, fps), timecode(srcOut, fps),
			timecode(record, fps), timecode(record+length, fps))
		fmt.Fprintf(&b, "* FROM CLIP NAME:  %s\n", c.Name)
		fmt.Fprintf(&b, "* SOURCE FILE:  %s\n", c.MediaPath)
		if c.Output != "" {
			fmt.Fprintf(&b, "* CLIP FILE:  %s\n", c.Output)
		}
		if c.Row > 0 {
			fmt.Fprintf(&b, "* SHEET ROW:  %d\n", c.Row)
		}
		record += length
	}
	return b.String()
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}

// timecode formats d as HH:MM:SS:FF. Hours wrap at midnight, as a
// time-of-day timecode does.
func timecode(d time.Duration, fps int) string {
	frames := int64(math.Round(d.Seconds() * float64(fps)))
	ff := frames % int64(fps)
	secs := frames / int64(fps)
	secs %= int64(day / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, secs/60%60, secs%60, ff)
}
