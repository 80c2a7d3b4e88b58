// Package pipeline drives the external media tools (ffmpeg and ffprobe) that
// cut clips out of source recordings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrProcessLaunch means the tool is missing or cannot be executed. No
	// cut can proceed, so a run stops before its first task.
	ErrProcessLaunch = errors.New("cannot launch external tool")

	// ErrExternalTool means one invocation failed; other cuts may still work.
	ErrExternalTool = errors.New("external tool failed")

	// ErrSuspendUnsupported is returned by Suspend on platforms without
	// job-control signals.
	ErrSuspendUnsupported = errors.New("process suspension not supported on this platform")
)

// Cutter is the boundary to the cutting tool.
type Cutter interface {
	// Doctor checks the tools are installed and runnable.
	Doctor(ctx context.Context) (*Capabilities, error)

	// Probe reads container and stream metadata of a media file.
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// Start launches one cut. The returned Process owns the tool's output.
	Start(ctx context.Context, spec CutSpec) (Process, error)
}

// Process is one running tool invocation.
type Process interface {
	// Lines delivers the combined stdout and stderr, one line at a time. The
	// channel is closed when the output ends or the process is reaped.
	Lines() <-chan string

	// Wait blocks until the process exits. It may be called once.
	Wait() RunResult

	// Suspend and Resume pause and continue the process where supported.
	Suspend() error
	Resume() error

	// Kill terminates the process. Calling it after exit is harmless.
	Kill() error
}

// CutSpec describes one cut.
type CutSpec struct {
	Input    string
	Output   string
	Start    time.Duration
	Duration time.Duration

	// BitrateScale multiplies SourceBitrate to get the video bitrate. When
	// SourceBitrate is unknown the encoder default is used.
	BitrateScale  float64
	SourceBitrate int64
}

// TargetBitrate returns the requested video bitrate in bit/s, or 0 for the
// encoder default.
func (s CutSpec) TargetBitrate() int64 {
	if s.SourceBitrate <= 0 || s.BitrateScale <= 0 {
		return 0
	}
	return int64(math.Round(float64(s.SourceBitrate) * s.BitrateScale))
}

// ProbeResult is the subset of ffprobe output the cutter uses.
type ProbeResult struct {
	Duration   time.Duration `json:"duration"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Codec      string        `json:"codec"`
	Bitrate    int64         `json:"bitrate"`
	FrameRate  float64       `json:"frame_rate"`
	AudioCodec string        `json:"audio_codec,omitempty"`
}

// Capabilities reports which tools were found.
type Capabilities struct {
	FFmpegPath     string    `json:"ffmpeg_path"`
	FFmpegVersion  string    `json:"ffmpeg_version"`
	FFprobePath    string    `json:"ffprobe_path,omitempty"`
	FFprobeVersion string    `json:"ffprobe_version,omitempty"`
	HasProbe       bool      `json:"has_probe"`
	ProbedAt       time.Time `json:"probed_at"`
}

// RunResult is the outcome of one tool invocation.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputTail string        `json:"output_tail,omitempty"` // last lines of combined output
	Duration   time.Duration `json:"duration"`
	Killed     bool          `json:"killed,omitempty"`
}

// IsSuccess returns true when the process exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 && !r.Killed }

// ToolError carries the context of a failed invocation.
type ToolError struct {
	ExitCode int
	Tail     string
	Reason   string
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", ErrExternalTool, e.ExitCode)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ToolError) Unwrap() error { return ErrExternalTool }
