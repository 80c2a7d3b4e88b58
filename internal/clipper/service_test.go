package clipper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rainyday01/video-cutter/internal/catalog"
	"github.com/rainyday01/video-cutter/internal/db"
	"github.com/rainyday01/video-cutter/internal/pipeline"
	"github.com/rainyday01/video-cutter/internal/plan"
	"github.com/rainyday01/video-cutter/internal/runs"
	"github.com/rainyday01/video-cutter/internal/sheet"
	"github.com/rainyday01/video-cutter/internal/supervisor"
	"github.com/rainyday01/video-cutter/internal/watcher"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// doneProc is a cut that has already finished successfully.
type doneProc struct {
	lines chan string
}

func newDoneProc() *doneProc {
	p := &doneProc{lines: make(chan string, 1)}
	p.lines <- "progress=end"
	close(p.lines)
	return p
}

func (p *doneProc) Lines() <-chan string     { return p.lines }
func (p *doneProc) Wait() pipeline.RunResult { return pipeline.RunResult{Duration: time.Millisecond} }
func (p *doneProc) Suspend() error           { return nil }
func (p *doneProc) Resume() error            { return nil }
func (p *doneProc) Kill() error              { return nil }

type writingCutter struct {
	mu    sync.Mutex
	specs []pipeline.CutSpec
}

func (c *writingCutter) Doctor(ctx context.Context) (*pipeline.Capabilities, error) {
	return &pipeline.Capabilities{FFmpegPath: "ffmpeg", ProbedAt: time.Now()}, nil
}

func (c *writingCutter) Probe(ctx context.Context, path string) (*pipeline.ProbeResult, error) {
	return nil, errors.New("no ffprobe")
}

func (c *writingCutter) Start(ctx context.Context, spec pipeline.CutSpec) (pipeline.Process, error) {
	c.mu.Lock()
	c.specs = append(c.specs, spec)
	c.mu.Unlock()
	if err := os.WriteFile(spec.Output, []byte("clip"), 0o644); err != nil {
		return nil, err
	}
	return newDoneProc(), nil
}

// fakeWatcher records roots and lets the test fire change events.
type fakeWatcher struct {
	mu       sync.Mutex
	roots    []string
	callback func(string, watcher.EventType)
}

func (w *fakeWatcher) Watch(ctx context.Context, path string) error {
	w.mu.Lock()
	w.roots = append(w.roots, path)
	w.mu.Unlock()
	return nil
}

func (w *fakeWatcher) Stop() error { return nil }

func (w *fakeWatcher) OnChange(cb func(string, watcher.EventType)) {
	w.callback = cb
}

const sheetCSV = "起始时间点,问题描述\n" +
	"起 2026-01-15 10:30:00 止 2026-01-15 10:30:20,刹车\n" +
	"起 2026-01-15 11:10:00 止 2026-01-15 11:10:05,刹车\n" +
	"起 2026-01-15 09:00:00 止 2026-01-15 09:00:10,早\n" +
	"unreadable,坏行\n"

type fixture struct {
	sheet  string
	source string
	output string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		sheet:  filepath.Join(root, "clips.csv"),
		source: filepath.Join(root, "rec"),
		output: filepath.Join(root, "out"),
	}
	if err := os.WriteFile(f.sheet, []byte(sheetCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(f.source, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"2026-01-15 10-00-00.mkv", "2026-01-15 11-00-00.mkv", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(f.source, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func newTestService(t *testing.T, cfg ServiceConfig) (*Service, *writingCutter) {
	t.Helper()
	cutter := &writingCutter{}
	if cfg.Supervisor == nil {
		cfg.Supervisor = supervisor.New(cutter, pipeline.NewCachedDoctor(cutter, testLogger()), testLogger())
	}
	cfg.Headers = sheet.DefaultHeaderConfig()
	cfg.Extensions = catalog.DefaultVideoExtensions
	cfg.Logger = testLogger()
	return NewService(cfg), cutter
}

func TestService_Prepare(t *testing.T) {
	f := newFixture(t)
	svc, _ := newTestService(t, ServiceConfig{})

	prep, err := svc.Prepare(context.Background(), Request{
		SheetPath: f.sheet,
		SourceDir: f.source,
		OutputDir: f.output,
		Offsets:   plan.DefaultOffsets(),
	})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if len(prep.Items) != 3 || len(prep.Plans()) != 2 || len(prep.Unmatched()) != 1 {
		t.Fatalf("items = %d, plans = %d, unmatched = %d", len(prep.Items), len(prep.Plans()), len(prep.Unmatched()))
	}
	if len(prep.Skipped) != 1 {
		t.Errorf("Skipped = %+v, want the unreadable row", prep.Skipped)
	}
	if prep.Request.Quality != plan.QualityHigh || prep.RunID == "" {
		t.Errorf("Quality = %q, RunID = %q", prep.Request.Quality, prep.RunID)
	}

	first, second := prep.Items[0].Plan, prep.Items[1].Plan
	if first.InPoint != 30*time.Minute || first.Duration != 20*time.Second {
		t.Errorf("first plan = %v + %v", first.InPoint, first.Duration)
	}
	if second.InPoint != 10*time.Minute || second.Duration != plan.DefaultMinDuration {
		t.Errorf("second plan = %v + %v, want min duration", second.InPoint, second.Duration)
	}
	if filepath.Base(first.Output) != "刹车.mp4" || filepath.Base(second.Output) != "刹车_1.mp4" {
		t.Errorf("outputs = %s, %s", first.Output, second.Output)
	}
	if filepath.Base(second.Source.Path) != "2026-01-15 11-00-00.mkv" {
		t.Errorf("second source = %s", second.Source.Path)
	}
	if !errors.Is(prep.Items[2].Err, catalog.ErrNoSourceFile) {
		t.Errorf("unmatched error = %v", prep.Items[2].Err)
	}
}

func TestService_Prepare_DefaultOutputDir(t *testing.T) {
	f := newFixture(t)
	svc, _ := newTestService(t, ServiceConfig{})

	prep, err := svc.Prepare(context.Background(), Request{SheetPath: f.sheet, SourceDir: f.source, Offsets: plan.DefaultOffsets()})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if prep.OutputDir != prep.Inventory.Root {
		t.Errorf("OutputDir = %s, want source folder %s", prep.OutputDir, prep.Inventory.Root)
	}
}

func TestService_Prepare_Errors(t *testing.T) {
	f := newFixture(t)
	svc, _ := newTestService(t, ServiceConfig{})

	noTime := filepath.Join(t.TempDir(), "bad.csv")
	os.WriteFile(noTime, []byte("备注,问题描述\nx,y\n"), 0o644)
	headerOnly := filepath.Join(t.TempDir(), "empty.csv")
	os.WriteFile(headerOnly, []byte("起始时间点,问题描述\n"), 0o644)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"bad offsets", Request{SheetPath: f.sheet, SourceDir: f.source, Offsets: plan.OffsetConfig{MinDuration: 0}}, plan.ErrInvalidOffsets},
		{"no time column", Request{SheetPath: noTime, SourceDir: f.source, Offsets: plan.DefaultOffsets()}, sheet.ErrNoTimeColumn},
		{"no segments", Request{SheetPath: headerOnly, SourceDir: f.source, Offsets: plan.DefaultOffsets()}, ErrNoSegments},
		{"empty folder", Request{SheetPath: f.sheet, SourceDir: t.TempDir(), Offsets: plan.DefaultOffsets()}, catalog.ErrEmptyInventory},
		{"unsupported sheet", Request{SheetPath: filepath.Join(f.source, "notes.txt"), SourceDir: f.source, Offsets: plan.DefaultOffsets()}, sheet.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Prepare(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Prepare() error = %v, want %v", err, tt.want)
			}
		})
	}

	_, err := svc.Prepare(context.Background(), Request{SheetPath: f.sheet, SourceDir: f.source, Quality: "ultra", Offsets: plan.DefaultOffsets()})
	if err == nil {
		t.Error("Prepare() with unknown quality succeeded")
	}
}

func TestService_Execute(t *testing.T) {
	f := newFixture(t)
	database, err := db.Open(filepath.Join(t.TempDir(), "clipper.db"), testLogger())
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	defer database.Close()
	repo := runs.NewRepository(database.Conn())

	svc, cutter := newTestService(t, ServiceConfig{Repository: repo})
	ctx := context.Background()

	prep, err := svc.Prepare(ctx, Request{
		SheetPath: f.sheet,
		SourceDir: f.source,
		OutputDir: f.output,
		Quality:   plan.QualityLow,
		Offsets:   plan.DefaultOffsets(),
		WriteEDL:  true,
	})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	sum, err := svc.Execute(ctx, prep, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if sum.Completed != 2 || sum.Failed != 1 || sum.State != supervisor.StateCompleted {
		t.Errorf("summary = %+v", sum)
	}
	if len(cutter.specs) != 2 || cutter.specs[0].BitrateScale != 0.3 || cutter.specs[0].SourceBitrate != 0 {
		t.Errorf("specs = %+v", cutter.specs)
	}

	edl, err := os.ReadFile(filepath.Join(f.output, "clips.edl"))
	if err != nil {
		t.Fatalf("read edl: %v", err)
	}
	if !strings.Contains(string(edl), "TITLE: clips") || strings.Count(string(edl), "FROM CLIP NAME") != 2 {
		t.Errorf("edl = %s", edl)
	}

	run, err := repo.GetRun(ctx, prep.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != "completed" || run.Completed != 2 || run.Failed != 1 || run.Quality != "low" {
		t.Errorf("stored run = %+v", run)
	}

	recent := svc.Recent(ctx)
	if recent[runs.ConfigLastOutputDir] != f.output {
		t.Errorf("Recent() = %v", recent)
	}
}

func TestService_StartAndEvents(t *testing.T) {
	f := newFixture(t)
	events := supervisor.NewBroadcaster(64)
	svc, _ := newTestService(t, ServiceConfig{Events: events})

	prep, err := svc.Prepare(context.Background(), Request{SheetPath: f.sheet, SourceDir: f.source, OutputDir: f.output, Offsets: plan.DefaultOffsets()})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	ch, cancel := events.Subscribe()
	defer cancel()

	if err := svc.Start(prep); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.After(3 * time.Second)
	var types []string
	for {
		select {
		case e := <-ch:
			types = append(types, e.Type)
			if e.Type == supervisor.EventRunDone {
				if e.Summary.Completed != 2 {
					t.Errorf("summary = %+v", e.Summary)
				}
				if types[0] != supervisor.EventTaskStart {
					t.Errorf("first event = %s", types[0])
				}
				return
			}
		case <-deadline:
			t.Fatalf("no run_done event; got %v", types)
		}
	}
}

func TestService_InventoryCache(t *testing.T) {
	f := newFixture(t)
	fw := &fakeWatcher{}
	svc, _ := newTestService(t, ServiceConfig{Watcher: fw})
	ctx := context.Background()

	first, err := svc.Inventory(ctx, f.source)
	if err != nil {
		t.Fatalf("Inventory() error = %v", err)
	}
	if first.Len() != 2 {
		t.Errorf("Len() = %d, want 2", first.Len())
	}
	again, _ := svc.Inventory(ctx, f.source)
	if again != first {
		t.Error("second Inventory() should come from cache")
	}
	if len(fw.roots) != 1 {
		t.Errorf("watched roots = %v", fw.roots)
	}

	fw.callback(filepath.Join(first.Root, "x.mkv"), watcher.EventModify)
	if cached, _ := svc.Inventory(ctx, f.source); cached != first {
		t.Error("a modify event should not invalidate the inventory")
	}

	newFile := filepath.Join(first.Root, "2026-01-15 12-00-00.mkv")
	os.WriteFile(newFile, []byte("x"), 0o644)
	fw.callback(newFile, watcher.EventCreate)

	fresh, _ := svc.Inventory(ctx, f.source)
	if fresh == first || fresh.Len() != 3 {
		t.Errorf("inventory after create: same=%v len=%d", fresh == first, fresh.Len())
	}
}

func TestService_InventoryWithoutWatcher(t *testing.T) {
	f := newFixture(t)
	svc, _ := newTestService(t, ServiceConfig{})

	a, _ := svc.Inventory(context.Background(), f.source)
	b, _ := svc.Inventory(context.Background(), f.source)
	if a == b {
		t.Error("inventories should not be cached without a watcher")
	}
}

func TestService_ControlWhenIdle(t *testing.T) {
	svc, _ := newTestService(t, ServiceConfig{})
	if err := svc.Pause(); !errors.Is(err, supervisor.ErrNoActiveRun) {
		t.Errorf("Pause() error = %v", err)
	}
	if st := svc.Status(); st.State != supervisor.StateIdle {
		t.Errorf("Status() = %+v", st)
	}
}
