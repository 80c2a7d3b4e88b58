// Package clipper wires the spreadsheet, the source inventory, the planner
// and the supervisor into runs that callers can prepare, start and control.
package clipper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rainyday01/video-cutter/internal/catalog"
	"github.com/rainyday01/video-cutter/internal/export"
	"github.com/rainyday01/video-cutter/internal/plan"
	"github.com/rainyday01/video-cutter/internal/runs"
	"github.com/rainyday01/video-cutter/internal/sheet"
	"github.com/rainyday01/video-cutter/internal/supervisor"
	"github.com/rainyday01/video-cutter/internal/watcher"
)

// ErrNoSegments is returned when the spreadsheet resolves but no row holds a
// usable time range.
var ErrNoSegments = errors.New("spreadsheet contains no usable segments")

// EDLFrameRate is the timebase of exported edit decision lists.
const EDLFrameRate = 30

// ClipService is the part of Service the HTTP API drives.
type ClipService interface {
	Prepare(ctx context.Context, req Request) (*Prepared, error)
	Execute(ctx context.Context, prep *Prepared, obs supervisor.Observer) (*supervisor.Summary, error)
	Start(prep *Prepared) error
	Inventory(ctx context.Context, dir string) (*catalog.Inventory, error)
	Pause() error
	Resume() error
	Stop() error
	Status() supervisor.Status
}

// Request describes one run.
type Request struct {
	SheetPath string            `json:"sheet_path"`
	SourceDir string            `json:"source_dir"`
	OutputDir string            `json:"output_dir,omitempty"` // defaults to SourceDir
	Quality   plan.Quality      `json:"quality,omitempty"`
	Offsets   plan.OffsetConfig `json:"offsets"`
	WriteEDL  bool              `json:"write_edl,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
}

// Prepared is a validated request with its cut plan.
type Prepared struct {
	RunID     string             `json:"run_id"`
	Request   Request            `json:"request"`
	OutputDir string             `json:"output_dir"`
	Segments  []sheet.Segment    `json:"segments"`
	Skipped   []sheet.SkippedRow `json:"skipped_rows,omitempty"`
	Inventory *catalog.Inventory `json:"-"`
	Items     []plan.Item        `json:"items"`
}

// Plans returns the executable plans in run order.
func (p *Prepared) Plans() []plan.ClipPlan {
	return plan.Plans(p.Items)
}

// Unmatched returns the items that have no source file.
func (p *Prepared) Unmatched() []plan.Item {
	var out []plan.Item
	for _, it := range p.Items {
		if !it.Planned() {
			out = append(out, it)
		}
	}
	return out
}

// ServiceConfig wires a Service. Supervisor may be nil for a service that
// only prepares plans.
type ServiceConfig struct {
	Supervisor *supervisor.Supervisor
	Repository runs.Repository         // optional run history
	Events     *supervisor.Broadcaster // optional live event fan-out
	Watcher    watcher.Watcher         // optional inventory invalidation
	Headers    sheet.HeaderConfig
	Extensions []string
	Logger     *slog.Logger
}

// Service prepares runs and hands them to the supervisor. Inventories are
// cached per folder only while a watcher can invalidate them.
type Service struct {
	sup     *supervisor.Supervisor
	repo    runs.Repository
	events  *supervisor.Broadcaster
	watcher watcher.Watcher
	headers sheet.HeaderConfig
	scanner *catalog.Scanner
	logger  *slog.Logger

	mu          sync.Mutex
	inventories map[string]*catalog.Inventory
	starting    bool
	recorder    *runs.Recorder
}

// NewService creates a Service and subscribes it to the watcher, if any.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		sup:         cfg.Supervisor,
		repo:        cfg.Repository,
		events:      cfg.Events,
		watcher:     cfg.Watcher,
		headers:     cfg.Headers,
		scanner:     catalog.NewScanner(cfg.Extensions, logger),
		logger:      logger,
		inventories: make(map[string]*catalog.Inventory),
	}
	if s.watcher != nil {
		s.watcher.OnChange(func(path string, event watcher.EventType) {
			// Start times come from names, so only creates and deletes matter.
			if event != watcher.EventModify {
				s.InvalidateInventory(path)
			}
		})
	}
	return s
}

// Prepare reads the spreadsheet, scans the source folder, checks the output
// folder and plans every segment. Setup problems are returned here, before
// any cut starts.
func (s *Service) Prepare(ctx context.Context, req Request) (*Prepared, error) {
	if err := req.Offsets.Validate(); err != nil {
		return nil, err
	}
	if req.Quality == "" {
		req.Quality = plan.QualityHigh
	}
	if _, err := plan.ParseQuality(string(req.Quality)); err != nil {
		return nil, err
	}

	tables, err := sheet.ReadFile(req.SheetPath)
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet: %w", err)
	}
	extracted, err := sheet.NewExtractor(s.headers, s.logger).Extract(tables)
	if err != nil {
		return nil, err
	}
	if len(extracted.Segments) == 0 {
		return nil, ErrNoSegments
	}

	inv, err := s.Inventory(ctx, req.SourceDir)
	if err != nil {
		return nil, err
	}

	outDir := req.OutputDir
	if outDir == "" {
		outDir = inv.Root
	}
	outDir, err = export.PrepareOutputDir(outDir)
	if err != nil {
		return nil, err
	}

	builder := plan.Builder{
		Offsets: req.Offsets,
		Quality: req.Quality,
		Namer:   export.NewNamer(outDir, plan.OutputExt),
		Logger:  s.logger,
	}
	items := builder.Build(extracted.Segments, inv)

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	prep := &Prepared{
		RunID:     runID,
		Request:   req,
		OutputDir: outDir,
		Segments:  extracted.Segments,
		Skipped:   extracted.Skipped,
		Inventory: inv,
		Items:     items,
	}

	s.logger.Info("run prepared",
		"run_id", runID,
		"sheet", req.SheetPath,
		"source_dir", inv.Root,
		"output_dir", outDir,
		"segments", len(extracted.Segments),
		"planned", len(prep.Plans()),
		"unmatched", len(prep.Unmatched()),
		"skipped_rows", len(extracted.Skipped),
	)
	s.remember(ctx, req, inv.Root, outDir)
	return prep, nil
}

// Execute runs a prepared plan and blocks until it ends.
func (s *Service) Execute(ctx context.Context, prep *Prepared, obs supervisor.Observer) (*supervisor.Summary, error) {
	if s.sup.Active() {
		return nil, supervisor.ErrRunActive
	}
	observers := supervisor.MultiObserver{}
	var rec *runs.Recorder
	if s.repo != nil {
		r, err := runs.NewRecorder(ctx, s.repo, &runs.Run{
			ID:          prep.RunID,
			SheetPath:   prep.Request.SheetPath,
			SourceDir:   prep.Inventory.Root,
			OutputDir:   prep.OutputDir,
			Quality:     string(prep.Request.Quality),
			StartOffset: prep.Request.Offsets.StartOffset,
			EndOffset:   prep.Request.Offsets.EndOffset,
			MinDuration: prep.Request.Offsets.MinDuration,
		}, prep.Items, s.logger)
		if err != nil {
			s.logger.Warn("run history unavailable", "run_id", prep.RunID, "error", err)
		} else {
			rec = r
			observers = append(observers, rec)
		}
	}
	if s.events != nil {
		observers = append(observers, s.events)
	}
	if obs != nil {
		observers = append(observers, obs)
	}

	s.mu.Lock()
	s.recorder = rec
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.recorder = nil
		s.mu.Unlock()
	}()

	sum, err := s.sup.Run(ctx, prep.RunID, prep.Items, observers)
	if sum == nil {
		if rec != nil && err != nil {
			rec.OnRunDone(&supervisor.Summary{RunID: prep.RunID, State: supervisor.StateStopped, Aborted: err.Error()})
		}
		return nil, err
	}

	if prep.Request.WriteEDL {
		var done []plan.ClipPlan
		for i, it := range prep.Items {
			if it.Plan != nil && sum.Tasks[i].Status == supervisor.TaskCompleted {
				done = append(done, *it.Plan)
			}
		}
		if path, edlErr := s.WriteEDL(prep, done); edlErr != nil {
			s.logger.Warn("failed to write edit decision list", "error", edlErr)
		} else if path != "" {
			s.logger.Info("edit decision list written", "path", path)
		}
	}
	return sum, err
}

// Start runs prep in the background. Only one run may be active.
func (s *Service) Start(prep *Prepared) error {
	s.mu.Lock()
	if s.starting || s.sup.Active() {
		s.mu.Unlock()
		return supervisor.ErrRunActive
	}
	s.starting = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.starting = false
			s.mu.Unlock()
		}()
		if _, err := s.Execute(context.Background(), prep, nil); err != nil {
			s.logger.Error("run failed", "run_id", prep.RunID, "error", err)
		}
	}()
	return nil
}

// WriteEDL writes an edit decision list of plans into the output folder and
// returns its path. Nothing is written for an empty list.
func (s *Service) WriteEDL(prep *Prepared, plans []plan.ClipPlan) (string, error) {
	if len(plans) == 0 {
		return "", nil
	}
	title := strings.TrimSuffix(filepath.Base(prep.Request.SheetPath), filepath.Ext(prep.Request.SheetPath))
	title = export.SanitizeName(title, export.DefaultNameLength)
	path := filepath.Join(prep.OutputDir, title+".edl")

	edl := export.GenerateEDL(title, plan.EDLClips(plans), EDLFrameRate)
	if err := os.WriteFile(path, []byte(edl), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Inventory returns the scanned inventory of dir, from cache when the
// folder has not changed since the last scan.
func (s *Service) Inventory(ctx context.Context, dir string) (*catalog.Inventory, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	s.mu.Lock()
	inv, ok := s.inventories[abs]
	s.mu.Unlock()
	if ok {
		return inv, nil
	}

	inv, err = s.scanner.Scan(ctx, abs)
	if err != nil {
		return nil, err
	}

	// Only folders the watcher can track are cached; otherwise a stale
	// inventory could hide new recordings.
	if s.watcher != nil {
		if err := s.watcher.Watch(ctx, inv.Root); err != nil {
			s.logger.Warn("cannot watch source folder", "path", inv.Root, "error", err)
			return inv, nil
		}
		s.mu.Lock()
		s.inventories[inv.Root] = inv
		s.mu.Unlock()
	}
	return inv, nil
}

// InvalidateInventory drops cached inventories whose folder contains path.
func (s *Service) InvalidateInventory(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for root := range s.inventories {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			delete(s.inventories, root)
			s.logger.Debug("inventory invalidated", "root", root, "path", path)
		}
	}
}

func (s *Service) Pause() error {
	if err := s.sup.Pause(); err != nil {
		return err
	}
	s.recordState(supervisor.StatePaused)
	return nil
}

func (s *Service) Resume() error {
	if err := s.sup.Resume(); err != nil {
		return err
	}
	s.recordState(supervisor.StateRunning)
	return nil
}

func (s *Service) Stop() error {
	return s.sup.Stop()
}

func (s *Service) Status() supervisor.Status {
	return s.sup.Status()
}

func (s *Service) recordState(state supervisor.State) {
	s.mu.Lock()
	rec := s.recorder
	s.mu.Unlock()
	if rec != nil {
		rec.SetStatus(state)
	}
}

// Recent returns the paths used by the last prepared run.
func (s *Service) Recent(ctx context.Context) map[string]string {
	out := map[string]string{}
	if s.repo == nil {
		return out
	}
	for _, key := range []string{runs.ConfigLastSheet, runs.ConfigLastSourceDir, runs.ConfigLastOutputDir} {
		if v, err := s.repo.GetConfig(ctx, key); err == nil && v != "" {
			out[key] = v
		}
	}
	return out
}

func (s *Service) remember(ctx context.Context, req Request, sourceDir, outDir string) {
	if s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	sheetPath, _ := filepath.Abs(req.SheetPath)
	for key, value := range map[string]string{
		runs.ConfigLastSheet:     sheetPath,
		runs.ConfigLastSourceDir: sourceDir,
		runs.ConfigLastOutputDir: outDir,
	} {
		if err := s.repo.SetConfig(ctx, key, value); err != nil {
			s.logger.Debug("failed to remember path", "key", key, "error", err)
		}
	}
}
