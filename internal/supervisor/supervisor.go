// Package supervisor executes cut plans one at a time under pause, resume and
// stop control, isolating the failure of any single task.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rainyday01/video-cutter/internal/pipeline"
	"github.com/rainyday01/video-cutter/internal/plan"
)

var (
	// ErrRunActive is returned by Run while another run is in progress.
	ErrRunActive = errors.New("a run is already in progress")

	// ErrNoActiveRun is returned by control calls when nothing is running.
	ErrNoActiveRun = errors.New("no active run")
)

const progressInterval = 500 * time.Millisecond

// Supervisor runs plans through a Cutter. One run at a time.
type Supervisor struct {
	cutter pipeline.Cutter
	doctor *pipeline.CachedDoctor
	logger *slog.Logger

	mu   sync.Mutex
	run  *runState
	last *Summary
}

// New creates a Supervisor. doctor may be nil to skip the preflight check.
func New(cutter pipeline.Cutter, doctor *pipeline.CachedDoctor, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{cutter: cutter, doctor: doctor, logger: logger}
}

// runState is owned by one run and discarded when it ends. Fields below mu
// are shared with the control methods.
type runState struct {
	id      string
	total   int
	started time.Time
	stopCh  chan struct{}
	ctrl    chan struct{}
	once    sync.Once

	mu          sync.Mutex
	state       State
	pauseWanted bool
	current     int
	label       string
	fraction    float64
	taskStarted time.Time
	completed   int
	failed      int
	skipped     int
	eta         etaEstimator
}

func (rs *runState) requestStop() {
	rs.once.Do(func() { close(rs.stopCh) })
}

func (rs *runState) stopped() bool {
	select {
	case <-rs.stopCh:
		return true
	default:
		return false
	}
}

func (rs *runState) notify() {
	select {
	case rs.ctrl <- struct{}{}:
	default:
	}
}

// Run executes items in order and blocks until the run ends. Items without
// a plan are reported as failed tasks. A missing tool fails the run before
// any task starts. The returned summary is also passed to obs.OnRunDone.
func (s *Supervisor) Run(ctx context.Context, runID string, items []plan.Item, obs Observer) (*Summary, error) {
	if obs == nil {
		obs = NopObserver{}
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	rs := &runState{
		id:      runID,
		total:   len(items),
		stopCh:  make(chan struct{}),
		ctrl:    make(chan struct{}, 1),
		state:   StateRunning,
		current: -1,
	}

	s.mu.Lock()
	if s.run != nil {
		s.mu.Unlock()
		return nil, ErrRunActive
	}
	s.run = rs
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.run = nil
		s.mu.Unlock()
	}()

	logger := s.logger.With("run_id", runID)

	if s.doctor != nil {
		if _, err := s.doctor.Get(ctx); err != nil {
			logger.Error("preflight failed", "error", err)
			if !errors.Is(err, pipeline.ErrProcessLaunch) {
				err = fmt.Errorf("%w: %v", pipeline.ErrProcessLaunch, err)
			}
			return nil, err
		}
	}

	rs.started = time.Now()
	logger.Info("run started", "tasks", len(items))

	sum := &Summary{
		RunID:    runID,
		Total:    len(items),
		Failures: []Failure{},
		Tasks:    make([]TaskOutcome, len(items)),
	}
	for i, it := range items {
		sum.Tasks[i] = TaskOutcome{Index: i, Label: it.Segment.Label, Status: TaskPending}
	}

	var runErr error
	for i, it := range items {
		if ctx.Err() != nil {
			rs.requestStop()
		}
		if !s.waitWhilePaused(ctx, rs) || rs.stopped() {
			s.skipRest(rs, sum, i)
			break
		}

		info := taskInfo(rs, i, it)
		if it.Plan == nil {
			reason := "no plan"
			if it.Err != nil {
				reason = it.Err.Error()
			}
			f := Failure{Index: i, Label: it.Segment.Label, Reason: reason}
			s.recordFailure(rs, sum, info, f, obs, logger)
			continue
		}

		outcome, f, err := s.execute(ctx, rs, info, it.Plan, obs, logger)
		switch outcome {
		case TaskCompleted:
			rs.mu.Lock()
			rs.completed++
			rs.mu.Unlock()
			sum.Tasks[i].Status = TaskCompleted
			sum.Tasks[i].Output = info.Output
		case TaskFailed:
			s.recordFailure(rs, sum, info, f, obs, logger)
		case TaskSkipped:
			s.markSkipped(rs, sum, i)
		}

		if err != nil {
			// The tool could not be launched; nothing after this can run.
			runErr = err
			sum.Aborted = err.Error()
			rs.requestStop()
		}
	}

	rs.mu.Lock()
	if rs.stopped() {
		rs.state = StateStopped
	} else {
		rs.state = StateCompleted
	}
	rs.current = -1
	sum.State = rs.state
	sum.Completed, sum.Failed, sum.Skipped = rs.completed, rs.failed, rs.skipped
	rs.mu.Unlock()
	sum.Elapsed = time.Since(rs.started)

	logger.Info("run finished",
		"state", sum.State,
		"completed", sum.Completed,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"elapsed", sum.Elapsed.Round(time.Second).String(),
	)
	for _, f := range sum.Failures {
		logger.Warn("task failure", "index", f.Index, "label", f.Label, "source", f.Source, "reason", f.Reason)
	}

	s.mu.Lock()
	s.last = sum
	s.mu.Unlock()

	obs.OnRunDone(sum)
	return sum, runErr
}

// execute runs one plan. It returns TaskSkipped when the run was stopped
// while the task was in flight; the partial output is removed in that case.
// A non-nil error means the tool could not be launched at all.
func (s *Supervisor) execute(ctx context.Context, rs *runState, info TaskInfo, p *plan.ClipPlan, obs Observer, logger *slog.Logger) (TaskStatus, Failure, error) {
	logger = logger.With("index", info.Index, "label", info.Label)
	fail := Failure{Index: info.Index, Label: info.Label, Source: p.Source.Path}

	spec := pipeline.CutSpec{
		Input:        p.Source.Path,
		Output:       p.Output,
		Start:        p.InPoint,
		Duration:     p.Duration,
		BitrateScale: p.Quality.BitrateScale(),
	}
	if probe, err := s.cutter.Probe(ctx, p.Source.Path); err != nil {
		logger.Warn("probe failed, using encoder default bitrate", "error", err)
	} else {
		spec.SourceBitrate = probe.Bitrate
		if probe.Duration > 0 && p.End() > probe.Duration {
			logger.Warn("clip extends past the end of the source",
				"source_duration", probe.Duration.String(),
				"clip_end", p.End().String(),
			)
		}
	}

	// Probing can be slow; a stop that arrived meanwhile must not launch a cut.
	if rs.stopped() {
		logger.Info("run stopped before the cut started")
		return TaskSkipped, fail, nil
	}

	rs.mu.Lock()
	rs.current = info.Index
	rs.label = info.Label
	rs.fraction = 0
	rs.taskStarted = time.Now()
	rs.mu.Unlock()

	proc, err := s.cutter.Start(ctx, spec)
	if err != nil {
		fail.Reason = err.Error()
		logger.Error("cannot start cut", "error", err)
		if errors.Is(err, pipeline.ErrProcessLaunch) {
			return TaskFailed, fail, err
		}
		return TaskFailed, fail, nil
	}

	obs.OnTaskStart(info)

	waitCh := make(chan pipeline.RunResult, 1)
	go func() { waitCh <- proc.Wait() }()

	var (
		lines        = proc.Lines()
		stopCh       = rs.stopCh
		ctxDone      = ctx.Done()
		suspended    bool
		stopKilled   bool
		lastEmit     time.Time
		lastFraction float64
		res          pipeline.RunResult
	)

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			pl := pipeline.ParseProgressLine(line)
			switch pl.Kind {
			case pipeline.ProgressTime:
				frac := pipeline.Fraction(pl.At, p.Duration)
				if frac > lastFraction && (time.Since(lastEmit) >= progressInterval || frac-lastFraction >= 0.05) {
					lastFraction, lastEmit = frac, time.Now()
					obs.OnProgress(s.progress(rs, info, frac))
				}
			case pipeline.ProgressEnd:
				if lastFraction < 1 {
					lastFraction = 1
					obs.OnProgress(s.progress(rs, info, 1))
				}
			default:
				logger.Debug("tool output", "line", line)
			}

		case <-rs.ctrl:
			rs.mu.Lock()
			want := rs.pauseWanted
			rs.mu.Unlock()
			if want && !suspended {
				if err := proc.Suspend(); err != nil {
					logger.Warn("cannot suspend current cut; it will finish before the pause takes effect", "error", err)
				} else {
					suspended = true
					logger.Info("cut suspended")
				}
			} else if !want && suspended {
				if err := proc.Resume(); err != nil {
					logger.Warn("cannot resume current cut", "error", err)
				} else {
					suspended = false
					logger.Info("cut resumed")
				}
			}

		case <-stopCh:
			stopCh = nil
			stopKilled = true
			logger.Info("stopping current cut")
			if err := proc.Kill(); err != nil {
				logger.Warn("kill failed", "error", err)
			}

		case <-ctxDone:
			ctxDone = nil
			rs.requestStop()

		case res = <-waitCh:
			break loop
		}
	}

	rs.mu.Lock()
	rs.current = -1
	rs.mu.Unlock()

	info.Elapsed = res.Duration

	if stopKilled || (rs.stopped() && !res.IsSuccess()) {
		removePartial(p.Output, logger)
		logger.Info("cut interrupted by stop")
		return TaskSkipped, fail, nil
	}

	if !res.IsSuccess() {
		terr := &pipeline.ToolError{ExitCode: res.ExitCode, Tail: res.OutputTail}
		fail.Reason = terr.Error()
		fail.ExitCode = res.ExitCode
		fail.OutputTail = res.OutputTail
		removePartial(p.Output, logger)
		logger.Warn("cut failed",
			"exit_code", res.ExitCode,
			"source", p.Source.Path,
			"in_point", p.InPoint.String(),
			"duration", p.Duration.String(),
			"output_tail", res.OutputTail,
		)
		return TaskFailed, fail, nil
	}

	if st, err := os.Stat(p.Output); err != nil || st.Size() == 0 {
		terr := &pipeline.ToolError{ExitCode: res.ExitCode, Tail: res.OutputTail, Reason: "output file missing or empty"}
		fail.Reason = terr.Error()
		fail.OutputTail = res.OutputTail
		removePartial(p.Output, logger)
		logger.Warn("cut produced no output", "output", p.Output, "output_tail", res.OutputTail)
		return TaskFailed, fail, nil
	}

	rs.mu.Lock()
	rs.eta.record(res.Duration)
	rs.mu.Unlock()

	if lastFraction < 1 {
		obs.OnProgress(s.progress(rs, info, 1))
	}
	obs.OnTaskDone(info)
	logger.Info("cut completed", "output", p.Output, "elapsed", res.Duration.Round(time.Millisecond).String())
	return TaskCompleted, fail, nil
}

// waitWhilePaused blocks between tasks while a pause is requested. It
// returns false when the run is stopped or ctx ends meanwhile.
func (s *Supervisor) waitWhilePaused(ctx context.Context, rs *runState) bool {
	for {
		rs.mu.Lock()
		paused := rs.pauseWanted
		rs.mu.Unlock()
		if !paused {
			return true
		}
		select {
		case <-rs.ctrl:
		case <-rs.stopCh:
			return false
		case <-ctx.Done():
			rs.requestStop()
			return false
		}
	}
}

func (s *Supervisor) progress(rs *runState, info TaskInfo, frac float64) Progress {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.fraction = frac
	return Progress{
		RunID:    rs.id,
		Index:    info.Index,
		Total:    rs.total,
		Label:    info.Label,
		Fraction: frac,
		Overall:  rs.overallLocked(frac),
		ETA:      rs.eta.estimate(frac, time.Since(rs.taskStarted), rs.total-info.Index-1),
	}
}

// overallLocked is (finished + current fraction) / total.
func (rs *runState) overallLocked(current float64) float64 {
	if rs.total == 0 {
		return 1
	}
	o := (float64(rs.completed+rs.failed+rs.skipped) + current) / float64(rs.total)
	if o > 1 {
		o = 1
	}
	return o
}

func (s *Supervisor) recordFailure(rs *runState, sum *Summary, info TaskInfo, f Failure, obs Observer, logger *slog.Logger) {
	rs.mu.Lock()
	rs.failed++
	rs.mu.Unlock()
	sum.Failures = append(sum.Failures, f)
	sum.Tasks[f.Index].Status = TaskFailed
	sum.Tasks[f.Index].Error = f.Reason
	logger.Warn("task failed", "index", f.Index, "label", f.Label, "reason", f.Reason)
	obs.OnTaskFailed(info, f)
}

func (s *Supervisor) markSkipped(rs *runState, sum *Summary, i int) {
	rs.mu.Lock()
	rs.skipped++
	rs.mu.Unlock()
	sum.Tasks[i].Status = TaskSkipped
}

func (s *Supervisor) skipRest(rs *runState, sum *Summary, from int) {
	for i := from; i < len(sum.Tasks); i++ {
		s.markSkipped(rs, sum, i)
	}
}

// Pause stops new tasks from starting and suspends the running cut where
// the platform allows it.
func (s *Supervisor) Pause() error {
	rs := s.active()
	if rs == nil {
		return ErrNoActiveRun
	}
	rs.mu.Lock()
	if rs.state != StateRunning {
		rs.mu.Unlock()
		return nil
	}
	rs.pauseWanted = true
	rs.state = StatePaused
	rs.mu.Unlock()
	rs.notify()
	s.logger.Info("run paused", "run_id", rs.id)
	return nil
}

// Resume continues a paused run from where it stopped.
func (s *Supervisor) Resume() error {
	rs := s.active()
	if rs == nil {
		return ErrNoActiveRun
	}
	rs.mu.Lock()
	if rs.state != StatePaused {
		rs.mu.Unlock()
		return nil
	}
	rs.pauseWanted = false
	rs.state = StateRunning
	rs.mu.Unlock()
	rs.notify()
	s.logger.Info("run resumed", "run_id", rs.id)
	return nil
}

// Stop kills the running cut and skips every queued task. Calling it more
// than once is harmless.
func (s *Supervisor) Stop() error {
	rs := s.active()
	if rs == nil {
		return ErrNoActiveRun
	}
	rs.requestStop()
	s.logger.Info("run stop requested", "run_id", rs.id)
	return nil
}

// Status returns the current run's progress, or the last run's outcome
// when idle.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	rs, last := s.run, s.last
	s.mu.Unlock()

	if rs == nil {
		st := Status{State: StateIdle, Current: -1, ETA: -1}
		if last != nil {
			st.RunID = last.RunID
			st.State = last.State
			st.Total = last.Total
			st.Completed, st.Failed, st.Skipped = last.Completed, last.Failed, last.Skipped
			st.Elapsed = last.Elapsed
			st.Overall = 1
			st.ETA = 0
		}
		return st
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	st := Status{
		RunID:     rs.id,
		State:     rs.state,
		Total:     rs.total,
		Current:   rs.current,
		Label:     rs.label,
		Completed: rs.completed,
		Failed:    rs.failed,
		Skipped:   rs.skipped,
		ETA:       -1,
	}
	if !rs.started.IsZero() {
		st.Elapsed = time.Since(rs.started)
	}
	if rs.current >= 0 {
		st.Fraction = rs.fraction
		st.Overall = rs.overallLocked(rs.fraction)
		st.ETA = rs.eta.estimate(rs.fraction, time.Since(rs.taskStarted), rs.total-rs.current-1)
	} else {
		st.Overall = rs.overallLocked(0)
	}
	return st
}

// Last returns the summary of the most recent finished run, or nil.
func (s *Supervisor) Last() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Active reports whether a run is in progress.
func (s *Supervisor) Active() bool {
	return s.active() != nil
}

func (s *Supervisor) active() *runState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

func taskInfo(rs *runState, i int, it plan.Item) TaskInfo {
	info := TaskInfo{RunID: rs.id, Index: i, Total: rs.total, Label: it.Segment.Label}
	if it.Plan != nil {
		info.Source = it.Plan.Source.Path
		info.Output = it.Plan.Output
		info.InPoint = it.Plan.InPoint
		info.Duration = it.Plan.Duration
	}
	return info
}

func removePartial(path string, logger *slog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("cannot remove partial output", "output", path, "error", err)
	}
}
