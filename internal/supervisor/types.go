package supervisor

import (
	"time"
)

// State is the lifecycle state of a run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateStopped
}

// Active reports whether a run is executing or paused.
func (s State) Active() bool {
	return s == StateRunning || s == StatePaused
}

// TaskStatus is the outcome of one task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// TaskInfo describes a task in start, done and failed notifications.
type TaskInfo struct {
	RunID    string        `json:"run_id"`
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Label    string        `json:"label"`
	Source   string        `json:"source,omitempty"`
	Output   string        `json:"output,omitempty"`
	InPoint  time.Duration `json:"in_point"`
	Duration time.Duration `json:"duration"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
}

// Progress is a progress notification for the running task.
type Progress struct {
	RunID    string  `json:"run_id"`
	Index    int     `json:"index"`
	Total    int     `json:"total"`
	Label    string  `json:"label"`
	Fraction float64 `json:"fraction"` // current task, 0..1
	Overall  float64 `json:"overall"`  // whole run, 0..1

	// ETA is the estimated time left for the run; negative when unknown.
	ETA time.Duration `json:"eta"`
}

// Failure explains why a task failed.
type Failure struct {
	Index      int    `json:"index"`
	Label      string `json:"label"`
	Source     string `json:"source,omitempty"`
	Reason     string `json:"reason"`
	ExitCode   int    `json:"exit_code,omitempty"`
	OutputTail string `json:"output_tail,omitempty"`
}

// TaskOutcome is the final status of one task.
type TaskOutcome struct {
	Index  int        `json:"index"`
	Label  string     `json:"label"`
	Status TaskStatus `json:"status"`
	Output string     `json:"output,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Summary is reported once a run reaches a terminal state.
type Summary struct {
	RunID     string        `json:"run_id"`
	State     State         `json:"state"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Elapsed   time.Duration `json:"elapsed"`
	Failures  []Failure     `json:"failures"`
	Tasks     []TaskOutcome `json:"tasks"`
	Aborted   string        `json:"aborted,omitempty"`
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	RunID     string        `json:"run_id,omitempty"`
	State     State         `json:"state"`
	Total     int           `json:"total"`
	Current   int           `json:"current"` // index of the running task, -1 if none
	Label     string        `json:"label,omitempty"`
	Fraction  float64       `json:"fraction"`
	Overall   float64       `json:"overall"`
	ETA       time.Duration `json:"eta"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Elapsed   time.Duration `json:"elapsed"`
}
