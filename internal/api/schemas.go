package api

import (
	"fmt"
	"time"

	"github.com/rainyday01/video-cutter/internal/catalog"
	"github.com/rainyday01/video-cutter/internal/clipper"
	"github.com/rainyday01/video-cutter/internal/pipeline"
	"github.com/rainyday01/video-cutter/internal/plan"
	"github.com/rainyday01/video-cutter/internal/runs"
	"github.com/rainyday01/video-cutter/internal/supervisor"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State     string          `json:"state"`
	RunID     string          `json:"run_id,omitempty"`
	Total     int             `json:"total"`
	Current   int             `json:"current"`
	Label     string          `json:"label,omitempty"`
	Progress  int             `json:"progress"` // current task, percent
	Overall   int             `json:"overall"`  // whole run, percent
	ETAS      int64           `json:"eta_s"`    // -1 when unknown
	Completed int             `json:"completed"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	Tools     *ToolsResponse  `json:"tools,omitempty"`
	Recent    *RecentResponse `json:"recent,omitempty"`
}

type ToolsResponse struct {
	FFmpegVersion  string `json:"ffmpeg_version"`
	FFprobeVersion string `json:"ffprobe_version,omitempty"`
	HasProbe       bool   `json:"has_probe"`
	LastProbeAt    string `json:"last_probe_at,omitempty"`
}

type RecentResponse struct {
	SheetPath string `json:"sheet_path,omitempty"`
	SourceDir string `json:"source_dir,omitempty"`
	OutputDir string `json:"output_dir,omitempty"`
}

// PlanRequest is the body of POST /plan and POST /runs. Offsets are in
// seconds; omitted values fall back to the configured defaults.
type PlanRequest struct {
	SheetPath   string   `json:"sheet_path"`
	SourceDir   string   `json:"source_dir"`
	OutputDir   string   `json:"output_dir,omitempty"`
	Quality     string   `json:"quality,omitempty"`
	StartOffset *float64 `json:"start_offset,omitempty"`
	EndOffset   *float64 `json:"end_offset,omitempty"`
	MinDuration *float64 `json:"min_duration,omitempty"`
	WriteEDL    bool     `json:"write_edl,omitempty"`
}

type ClipResponse struct {
	Index     int     `json:"index"`
	Row       int     `json:"row"`
	Label     string  `json:"label"`
	Source    string  `json:"source,omitempty"`
	InPoint   string  `json:"in_point,omitempty"`
	DurationS float64 `json:"duration_s,omitempty"`
	Output    string  `json:"output,omitempty"`
	Duplicate bool    `json:"duplicate_source,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type SkippedRowResponse struct {
	Row    int    `json:"row"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

type PlanResponse struct {
	RunID     string               `json:"run_id"`
	OutputDir string               `json:"output_dir"`
	Quality   string               `json:"quality"`
	Clips     []ClipResponse       `json:"clips"`
	Planned   int                  `json:"planned"`
	Unmatched int                  `json:"unmatched"`
	Skipped   []SkippedRowResponse `json:"skipped_rows"`
}

type StartRunResponse struct {
	RunID   string `json:"run_id"`
	Planned int    `json:"planned"`
	Total   int    `json:"total"`
}

type RunResponse struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"`
	SheetPath   string  `json:"sheet_path,omitempty"`
	SourceDir   string  `json:"source_dir,omitempty"`
	OutputDir   string  `json:"output_dir,omitempty"`
	Quality     string  `json:"quality"`
	StartOffset float64 `json:"start_offset"`
	EndOffset   float64 `json:"end_offset"`
	MinDuration float64 `json:"min_duration"`
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Skipped     int     `json:"skipped"`
	Error       string  `json:"error,omitempty"`
	StartedAt   string  `json:"started_at"`
	FinishedAt  string  `json:"finished_at,omitempty"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type TaskResponse struct {
	Index      int     `json:"index"`
	Label      string  `json:"label"`
	Row        int     `json:"row"`
	Source     string  `json:"source,omitempty"`
	Output     string  `json:"output,omitempty"`
	InPoint    string  `json:"in_point"`
	DurationS  float64 `json:"duration_s"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	ExitCode   int     `json:"exit_code,omitempty"`
	OutputTail string  `json:"output_tail,omitempty"`
}

type RunDetailResponse struct {
	Run   RunResponse    `json:"run"`
	Tasks []TaskResponse `json:"tasks"`
}

type InventoryFileResponse struct {
	Path  string `json:"path"`
	Start string `json:"start"`
}

type InventoryResponse struct {
	Root       string                    `json:"root"`
	Files      []InventoryFileResponse   `json:"files"`
	Skipped    []string                  `json:"skipped"`
	Duplicates [][]InventoryFileResponse `json:"duplicates,omitempty"`
	ScannedAt  string                    `json:"scanned_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// clockString renders a source-relative offset as HH:MM:SS.mmm.
func clockString(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

func percent(f float64) int {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 100
	}
	return int(f*100 + 0.5)
}

func etaSeconds(d time.Duration) int64 {
	if d < 0 {
		return -1
	}
	return int64(d.Round(time.Second) / time.Second)
}

func StatusToResponse(st supervisor.Status) StatusResponse {
	return StatusResponse{
		State:     string(st.State),
		RunID:     st.RunID,
		Total:     st.Total,
		Current:   st.Current,
		Label:     st.Label,
		Progress:  percent(st.Fraction),
		Overall:   percent(st.Overall),
		ETAS:      etaSeconds(st.ETA),
		Completed: st.Completed,
		Failed:    st.Failed,
		Skipped:   st.Skipped,
	}
}

func ToolsToResponse(caps *pipeline.Capabilities) *ToolsResponse {
	if caps == nil {
		return nil
	}
	resp := &ToolsResponse{
		FFmpegVersion:  caps.FFmpegVersion,
		FFprobeVersion: caps.FFprobeVersion,
		HasProbe:       caps.HasProbe,
	}
	if !caps.ProbedAt.IsZero() {
		resp.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
	}
	return resp
}

func PlanToResponse(prep *clipper.Prepared) PlanResponse {
	resp := PlanResponse{
		RunID:     prep.RunID,
		OutputDir: prep.OutputDir,
		Quality:   string(prep.Request.Quality),
		Clips:     make([]ClipResponse, len(prep.Items)),
		Skipped:   make([]SkippedRowResponse, len(prep.Skipped)),
	}
	for i, it := range prep.Items {
		resp.Clips[i] = ItemToResponse(it)
		if it.Planned() {
			resp.Planned++
		} else {
			resp.Unmatched++
		}
	}
	for i, row := range prep.Skipped {
		resp.Skipped[i] = SkippedRowResponse{Row: row.Row, Text: row.Text, Reason: row.Reason}
	}
	return resp
}

func ItemToResponse(it plan.Item) ClipResponse {
	resp := ClipResponse{Index: it.Index, Row: it.Segment.Row, Label: it.Segment.Label}
	if it.Plan == nil {
		if it.Err != nil {
			resp.Error = it.Err.Error()
		}
		return resp
	}
	p := it.Plan
	resp.Source = p.Source.Path
	resp.InPoint = clockString(p.InPoint)
	resp.DurationS = p.Duration.Seconds()
	resp.Output = p.Output
	resp.Duplicate = p.Duplicate
	return resp
}

func RunToResponse(r *runs.Run) RunResponse {
	resp := RunResponse{
		ID:          r.ID,
		Status:      r.Status,
		SheetPath:   r.SheetPath,
		SourceDir:   r.SourceDir,
		OutputDir:   r.OutputDir,
		Quality:     r.Quality,
		StartOffset: r.StartOffset.Seconds(),
		EndOffset:   r.EndOffset.Seconds(),
		MinDuration: r.MinDuration.Seconds(),
		Total:       r.Total,
		Completed:   r.Completed,
		Failed:      r.Failed,
		Skipped:     r.Skipped,
		Error:       r.Error,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
	}
	if r.FinishedAt != nil {
		resp.FinishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func TaskToResponse(t *runs.Task) TaskResponse {
	return TaskResponse{
		Index:      t.Index,
		Label:      t.Label,
		Row:        t.Row,
		Source:     t.Source,
		Output:     t.Output,
		InPoint:    clockString(t.InPoint),
		DurationS:  t.Duration.Seconds(),
		Status:     t.Status,
		Error:      t.Error,
		ExitCode:   t.ExitCode,
		OutputTail: t.OutputTail,
	}
}

func InventoryToResponse(inv *catalog.Inventory) InventoryResponse {
	resp := InventoryResponse{
		Root:      inv.Root,
		Files:     make([]InventoryFileResponse, len(inv.Files)),
		Skipped:   inv.Skipped,
		ScannedAt: inv.ScannedAt.Format(time.RFC3339),
	}
	if resp.Skipped == nil {
		resp.Skipped = []string{}
	}
	for i, f := range inv.Files {
		resp.Files[i] = sourceFileToResponse(f)
	}
	for _, group := range inv.DuplicateGroups() {
		g := make([]InventoryFileResponse, len(group))
		for i, f := range group {
			g[i] = sourceFileToResponse(f)
		}
		resp.Duplicates = append(resp.Duplicates, g)
	}
	return resp
}

func sourceFileToResponse(f catalog.SourceFile) InventoryFileResponse {
	return InventoryFileResponse{Path: f.Path, Start: f.Start.Format("2006-01-02 15:04:05")}
}
