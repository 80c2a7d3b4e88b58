package ui

import (
	"testing"
	"time"

	"github.com/rainyday01/video-cutter/internal/supervisor"
)

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name string
		st   supervisor.Status
		want string
	}{
		{"idle", supervisor.Status{State: supervisor.StateIdle, Current: -1}, "Idle"},
		{
			"running",
			supervisor.Status{State: supervisor.StateRunning, Total: 5, Current: 1, Fraction: 0.4, ETA: 190 * time.Second},
			"Task 2/5 40% ETA 00:03:10",
		},
		{
			"paused unknown eta",
			supervisor.Status{State: supervisor.StatePaused, Total: 5, Current: 0, ETA: -1},
			"Paused: Task 1/5 0% ETA --:--:--",
		},
		{
			"between tasks",
			supervisor.Status{State: supervisor.StateRunning, Total: 3, Current: -1, ETA: time.Hour},
			"Task -/3 ETA 01:00:00",
		},
		{
			"completed with failures",
			supervisor.Status{State: supervisor.StateCompleted, Total: 4, Completed: 3, Failed: 1},
			"Completed: 3/4 done, 1 failed",
		},
		{
			"stopped",
			supervisor.Status{State: supervisor.StateStopped, Total: 4, Completed: 1, Skipped: 3},
			"Stopped: 1/4 done, 3 skipped",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusLine(tt.st); got != tt.want {
				t.Errorf("StatusLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatETA(t *testing.T) {
	tests := map[time.Duration]string{
		-1:                              "--:--:--",
		0:                               "00:00:00",
		1500 * time.Millisecond:         "00:00:02",
		26*time.Hour + 5*time.Second:    "26:00:05",
		59*time.Minute + 59*time.Second: "00:59:59",
	}
	for d, want := range tests {
		if got := FormatETA(d); got != want {
			t.Errorf("FormatETA(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestPauseTitle(t *testing.T) {
	if pauseTitle(supervisor.StatePaused) != "Resume" || pauseTitle(supervisor.StateRunning) != "Pause" {
		t.Error("unexpected pause menu titles")
	}
}
