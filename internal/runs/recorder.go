package runs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rainyday01/video-cutter/internal/plan"
	"github.com/rainyday01/video-cutter/internal/supervisor"
)

const writeTimeout = 5 * time.Second

// Recorder persists a run's progress as a supervisor.Observer. Storage
// errors are logged and never interrupt the run.
type Recorder struct {
	supervisor.NopObserver

	repo   Repository
	runID  string
	logger *slog.Logger
}

// NewRecorder stores run and one pending task per item, then returns an
// observer that keeps them current.
func NewRecorder(ctx context.Context, repo Repository, run *Run, items []plan.Item, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = string(supervisor.StateRunning)
	}
	run.Total = len(items)

	if err := repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	tasks := make([]*Task, len(items))
	for i, it := range items {
		t := &Task{
			RunID:  run.ID,
			Index:  i,
			Label:  it.Segment.Label,
			Row:    it.Segment.Row,
			Status: string(supervisor.TaskPending),
		}
		if it.Plan != nil {
			t.Source = it.Plan.Source.Path
			t.Output = it.Plan.Output
			t.InPoint = it.Plan.InPoint
			t.Duration = it.Plan.Duration
		}
		tasks[i] = t
	}
	if err := repo.CreateTasks(ctx, tasks); err != nil {
		return nil, fmt.Errorf("create tasks: %w", err)
	}

	return &Recorder{
		repo:   repo,
		runID:  run.ID,
		logger: logger.With("run_id", run.ID),
	}, nil
}

// SetStatus records a pause or resume.
func (r *Recorder) SetStatus(state supervisor.State) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.UpdateRunStatus(ctx, r.runID, string(state)); err != nil {
		r.logger.Warn("failed to record run status", "status", state, "error", err)
	}
}

func (r *Recorder) OnTaskStart(t supervisor.TaskInfo) {
	now := time.Now()
	r.updateTask(&Task{RunID: r.runID, Index: t.Index, Status: string(supervisor.TaskRunning), StartedAt: &now})
}

func (r *Recorder) OnTaskDone(t supervisor.TaskInfo) {
	now := time.Now()
	r.updateTask(&Task{RunID: r.runID, Index: t.Index, Status: string(supervisor.TaskCompleted), FinishedAt: &now})
}

func (r *Recorder) OnTaskFailed(t supervisor.TaskInfo, f supervisor.Failure) {
	now := time.Now()
	r.updateTask(&Task{
		RunID:      r.runID,
		Index:      t.Index,
		Status:     string(supervisor.TaskFailed),
		Error:      f.Reason,
		ExitCode:   f.ExitCode,
		OutputTail: f.OutputTail,
		FinishedAt: &now,
	})
}

// OnRunDone marks tasks the run never finished as skipped and stores the
// final counters.
func (r *Recorder) OnRunDone(s *supervisor.Summary) {
	now := time.Now()
	for _, t := range s.Tasks {
		if t.Status == supervisor.TaskSkipped {
			r.updateTask(&Task{RunID: r.runID, Index: t.Index, Status: string(supervisor.TaskSkipped), FinishedAt: &now})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := r.repo.FinishRun(ctx, &Run{
		ID:         r.runID,
		Status:     string(s.State),
		Completed:  s.Completed,
		Failed:     s.Failed,
		Skipped:    s.Skipped,
		Error:      s.Aborted,
		FinishedAt: &now,
	})
	if err != nil {
		r.logger.Warn("failed to record run result", "error", err)
	}
}

func (r *Recorder) updateTask(t *Task) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.UpdateTask(ctx, t); err != nil {
		r.logger.Warn("failed to record task", "index", t.Index, "status", t.Status, "error", err)
	}
}
