// Package runs stores the history of cut runs and their tasks.
package runs

import (
	"time"
)

// Run is one execution of a cut plan.
type Run struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	SheetPath   string        `json:"sheet_path,omitempty"`
	SourceDir   string        `json:"source_dir,omitempty"`
	OutputDir   string        `json:"output_dir,omitempty"`
	Quality     string        `json:"quality"`
	StartOffset time.Duration `json:"start_offset"`
	EndOffset   time.Duration `json:"end_offset"`
	MinDuration time.Duration `json:"min_duration"`
	Total       int           `json:"total"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Task is one clip of a run.
type Task struct {
	RunID      string        `json:"run_id"`
	Index      int           `json:"index"`
	Label      string        `json:"label"`
	Row        int           `json:"row"`
	Source     string        `json:"source,omitempty"`
	Output     string        `json:"output,omitempty"`
	InPoint    time.Duration `json:"in_point"`
	Duration   time.Duration `json:"duration"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	ExitCode   int           `json:"exit_code,omitempty"`
	OutputTail string        `json:"output_tail,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Config keys remembered between sessions.
const (
	ConfigLastSheet     = "last_sheet"
	ConfigLastSourceDir = "last_source_dir"
	ConfigLastOutputDir = "last_output_dir"
)
