package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rainyday01/video-cutter/internal/catalog"
	"github.com/rainyday01/video-cutter/internal/clipper"
	"github.com/rainyday01/video-cutter/internal/plan"
	"github.com/rainyday01/video-cutter/internal/runs"
	"github.com/rainyday01/video-cutter/internal/sheet"
	"github.com/rainyday01/video-cutter/internal/supervisor"
)

const defaultRunsLimit = 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/plan", planHandler(cfg))
		r.Get("/inventory", inventoryHandler(cfg))
		r.Get("/runs", listRunsHandler(cfg))
		r.Post("/runs", startRunHandler(cfg))
		r.Get("/runs/{id}", getRunHandler(cfg))
		r.Post("/runs/current/pause", controlHandler(cfg, cfg.Service.Pause))
		r.Post("/runs/current/resume", controlHandler(cfg, cfg.Service.Resume))
		r.Post("/runs/current/stop", controlHandler(cfg, cfg.Service.Stop))
		r.With(LoopbackGuard()).Get("/runs/current/events", eventsHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusToResponse(cfg.Service.Status())

		if cfg.Doctor != nil {
			resp.Tools = ToolsToResponse(cfg.Doctor.Peek())
		}

		if cfg.Repository != nil {
			recent := RecentResponse{}
			recent.SheetPath, _ = cfg.Repository.GetConfig(r.Context(), runs.ConfigLastSheet)
			recent.SourceDir, _ = cfg.Repository.GetConfig(r.Context(), runs.ConfigLastSourceDir)
			recent.OutputDir, _ = cfg.Repository.GetConfig(r.Context(), runs.ConfigLastOutputDir)
			if recent != (RecentResponse{}) {
				resp.Recent = &recent
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func planHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodePlanRequest(w, r, cfg)
		if !ok {
			return
		}
		prep, err := cfg.Service.Prepare(r.Context(), req)
		if err != nil {
			writePrepareError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, PlanToResponse(prep))
	}
}

func startRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodePlanRequest(w, r, cfg)
		if !ok {
			return
		}
		if cfg.Service.Status().State.Active() {
			WriteError(w, http.StatusConflict, supervisor.ErrRunActive.Error(), "RUN_ACTIVE")
			return
		}
		prep, err := cfg.Service.Prepare(r.Context(), req)
		if err != nil {
			writePrepareError(w, err)
			return
		}
		if err := cfg.Service.Start(prep); err != nil {
			writePrepareError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, StartRunResponse{
			RunID:   prep.RunID,
			Planned: len(prep.Plans()),
			Total:   len(prep.Items),
		})
	}
}

func decodePlanRequest(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (clipper.Request, bool) {
	var body PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return clipper.Request{}, false
	}
	if body.SheetPath == "" {
		WriteError(w, http.StatusBadRequest, "sheet_path is required", "BAD_REQUEST")
		return clipper.Request{}, false
	}
	if body.SourceDir == "" {
		WriteError(w, http.StatusBadRequest, "source_dir is required", "BAD_REQUEST")
		return clipper.Request{}, false
	}

	quality := cfg.Quality
	if body.Quality != "" {
		q, err := plan.ParseQuality(body.Quality)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return clipper.Request{}, false
		}
		quality = q
	}

	offsets := cfg.Offsets
	if offsets == (plan.OffsetConfig{}) {
		offsets = plan.DefaultOffsets()
	}
	if body.StartOffset != nil {
		offsets.StartOffset = seconds(*body.StartOffset)
	}
	if body.EndOffset != nil {
		offsets.EndOffset = seconds(*body.EndOffset)
	}
	if body.MinDuration != nil {
		offsets.MinDuration = seconds(*body.MinDuration)
	}
	if err := offsets.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_OFFSETS")
		return clipper.Request{}, false
	}

	return clipper.Request{
		SheetPath: body.SheetPath,
		SourceDir: body.SourceDir,
		OutputDir: body.OutputDir,
		Quality:   quality,
		Offsets:   offsets,
		WriteEDL:  body.WriteEDL,
	}, true
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// writePrepareError maps setup failures onto status codes. Problems with the
// caller's files are 422; everything else is a bad request.
func writePrepareError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, supervisor.ErrRunActive):
		WriteError(w, http.StatusConflict, err.Error(), "RUN_ACTIVE")
	case errors.Is(err, sheet.ErrNoTimeColumn), errors.Is(err, sheet.ErrNoLabelColumn):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "MISSING_COLUMN")
	case errors.Is(err, sheet.ErrUnsupportedFormat):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "UNSUPPORTED_FORMAT")
	case errors.Is(err, clipper.ErrNoSegments):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "NO_SEGMENTS")
	case errors.Is(err, catalog.ErrEmptyInventory):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "EMPTY_INVENTORY")
	case errors.Is(err, plan.ErrInvalidOffsets):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_OFFSETS")
	default:
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	}
}

func inventoryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dir := r.URL.Query().Get("dir")
		if dir == "" {
			WriteError(w, http.StatusBadRequest, "dir is required", "BAD_REQUEST")
			return
		}
		inv, err := cfg.Service.Inventory(r.Context(), dir)
		if err != nil {
			writePrepareError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, InventoryToResponse(inv))
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRunsLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		list, err := cfg.Repository.ListRuns(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}

		resp := RunsResponse{Runs: make([]RunResponse, len(list))}
		for i, run := range list {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		run, err := cfg.Repository.GetRun(r.Context(), id)
		if errors.Is(err, runs.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to get run", "INTERNAL_ERROR")
			return
		}

		tasks, err := cfg.Repository.ListTasks(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list tasks", "INTERNAL_ERROR")
			return
		}

		resp := RunDetailResponse{Run: RunToResponse(run), Tasks: make([]TaskResponse, len(tasks))}
		for i, t := range tasks {
			resp.Tasks[i] = TaskToResponse(t)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func controlHandler(cfg ServerConfig, action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(); err != nil {
			if errors.Is(err, supervisor.ErrNoActiveRun) {
				WriteError(w, http.StatusConflict, err.Error(), "NO_ACTIVE_RUN")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, StatusToResponse(cfg.Service.Status()))
	}
}
