package runs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/rainyday01/video-cutter/internal/catalog"
	"github.com/rainyday01/video-cutter/internal/db"
	"github.com/rainyday01/video-cutter/internal/plan"
	"github.com/rainyday01/video-cutter/internal/sheet"
	"github.com/rainyday01/video-cutter/internal/supervisor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "clipper.db"), testLogger())
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

func TestRepository_RunLifecycle(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	started := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	run := &Run{
		ID:          "run-1",
		Status:      "running",
		SheetPath:   "/data/clips.xlsx",
		SourceDir:   "/rec",
		Quality:     "medium",
		StartOffset: 5 * time.Second,
		EndOffset:   -2 * time.Second,
		MinDuration: 10 * time.Second,
		Total:       3,
		StartedAt:   started,
	}
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	got, err := repo.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.SheetPath != run.SheetPath || got.OutputDir != "" || got.EndOffset != -2*time.Second {
		t.Errorf("GetRun() = %+v", got)
	}
	if !got.StartedAt.Equal(started) || got.FinishedAt != nil {
		t.Errorf("times = %v, %v", got.StartedAt, got.FinishedAt)
	}

	if err := repo.UpdateRunStatus(ctx, "run-1", "paused"); err != nil {
		t.Fatalf("UpdateRunStatus() error = %v", err)
	}
	if err := repo.FinishRun(ctx, &Run{ID: "run-1", Status: "completed", Completed: 2, Failed: 1}); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	got, _ = repo.GetRun(ctx, "run-1")
	if got.Status != "completed" || got.Completed != 2 || got.Failed != 1 || got.FinishedAt == nil {
		t.Errorf("finished run = %+v", got)
	}

	if _, err := repo.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateRunStatus(ctx, "missing", "paused"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateRunStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRepository_ListRuns(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		run := &Run{ID: id, Status: "completed", Quality: "high", StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := repo.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun(%s) error = %v", id, err)
		}
	}

	list, err := repo.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("ListRuns() ids = %v", ids(list))
	}
}

func ids(list []*Run) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.ID
	}
	return out
}

func TestRepository_Config(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if v, err := repo.GetConfig(ctx, ConfigLastSourceDir); err != nil || v != "" {
		t.Errorf("GetConfig() = %q, %v; want empty", v, err)
	}
	repo.SetConfig(ctx, ConfigLastSourceDir, "/rec")
	repo.SetConfig(ctx, ConfigLastSourceDir, "/rec2")
	if v, _ := repo.GetConfig(ctx, ConfigLastSourceDir); v != "/rec2" {
		t.Errorf("GetConfig() = %q, want /rec2", v)
	}
}

func TestRecorder(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	items := []plan.Item{
		{Index: 0, Segment: sheet.Segment{Row: 2, Label: "a"}, Plan: &plan.ClipPlan{
			Label: "a", Source: catalog.SourceFile{Path: "/rec/x.mkv"}, InPoint: 90 * time.Second,
			Duration: 12 * time.Second, Output: "/out/a.mp4",
		}},
		{Index: 1, Segment: sheet.Segment{Row: 3, Label: "b"}, Err: catalog.ErrNoSourceFile},
		{Index: 2, Segment: sheet.Segment{Row: 4, Label: "c"}, Plan: &plan.ClipPlan{
			Label: "c", Source: catalog.SourceFile{Path: "/rec/x.mkv"}, Output: "/out/c.mp4",
		}},
	}

	rec, err := NewRecorder(ctx, repo, &Run{ID: "run-1", Quality: "high"}, items, testLogger())
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	tasks, err := repo.ListTasks(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 3 || tasks[0].Status != "pending" || tasks[0].InPoint != 90*time.Second {
		t.Fatalf("tasks after create = %+v", tasks)
	}

	rec.OnTaskStart(supervisor.TaskInfo{Index: 0})
	rec.OnTaskDone(supervisor.TaskInfo{Index: 0})
	rec.OnTaskFailed(supervisor.TaskInfo{Index: 1}, supervisor.Failure{Index: 1, Reason: "no source file"})
	rec.SetStatus(supervisor.StatePaused)
	rec.OnRunDone(&supervisor.Summary{
		RunID:     "run-1",
		State:     supervisor.StateStopped,
		Total:     3,
		Completed: 1,
		Failed:    1,
		Skipped:   1,
		Tasks: []supervisor.TaskOutcome{
			{Index: 0, Status: supervisor.TaskCompleted},
			{Index: 1, Status: supervisor.TaskFailed},
			{Index: 2, Status: supervisor.TaskSkipped},
		},
	})

	tasks, _ = repo.ListTasks(ctx, "run-1")
	want := []string{"completed", "failed", "skipped"}
	for i, w := range want {
		if tasks[i].Status != w {
			t.Errorf("task %d status = %s, want %s", i, tasks[i].Status, w)
		}
	}
	if tasks[0].StartedAt == nil || tasks[0].FinishedAt == nil {
		t.Errorf("task 0 times = %v, %v", tasks[0].StartedAt, tasks[0].FinishedAt)
	}
	if tasks[1].Error != "no source file" {
		t.Errorf("task 1 error = %q", tasks[1].Error)
	}

	run, _ := repo.GetRun(ctx, "run-1")
	if run.Status != "stopped" || run.Total != 3 || run.Skipped != 1 {
		t.Errorf("run = %+v", run)
	}
}
