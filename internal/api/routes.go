package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mayowa2133/hookforge/internal/export"
	"github.com/mayowa2133/hookforge/internal/features"
	"github.com/mayowa2133/hookforge/internal/logging"
	"github.com/mayowa2133/hookforge/internal/project"
	"github.com/mayowa2133/hookforge/internal/store"
	"github.com/mayowa2133/hookforge/internal/timeline"
)

const maxBodyBytes = 4 << 20

var validate = validator.New()

func NewRouter(cfg ServerConfig) *chi.Mux {
	cfg.Logger = logging.OrDiscard(cfg.Logger)
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.AllowedOrigins...))

	r.Get("/health", healthHandler(cfg))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/janitor/pause", janitorPauseHandler(cfg))
		r.Post("/janitor/resume", janitorResumeHandler(cfg))
		r.Post("/janitor/sweep", janitorSweepHandler(cfg))

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", createProjectHandler(cfg))
		r.Route("/projects/{id}", func(r chi.Router) {
			r.Get("/", getProjectHandler(cfg))
			r.Get("/assets", listAssetsHandler(cfg))
			r.Post("/assets", addAssetHandler(cfg))

			r.Get("/timeline", getTimelineHandler(cfg))
			r.Post("/timeline/preview", previewHandler(cfg))
			r.Post("/timeline/preview-variants", previewVariantsHandler(cfg))
			r.Post("/timeline/apply", applyHandler(cfg))
			r.Post("/timeline/undo", undoHandler(cfg))
			r.Get("/timeline/revisions", revisionsHandler(cfg))

			r.Post("/captions", captionsHandler(cfg))
			r.Post("/audio/enhance", audioEnhanceHandler(cfg))
			r.Post("/auto-edit", autoEditHandler(cfg))

			r.Get("/render-plan", renderPlanHandler(cfg))
			r.Get("/export/edl", exportEDLHandler(cfg))
		})
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
			Store:   cfg.StoreKind,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projects, err := cfg.Repository.ListProjects(ctx)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}

		resp := StatusResponse{State: "idle", ProjectsCount: len(projects)}
		if cfg.Janitor != nil {
			resp.JanitorRunning = cfg.Janitor.IsRunning()
			if cfg.Janitor.IsPaused() {
				resp.State = "paused"
			}
			if last := cfg.Janitor.LastSweep(ctx); !last.IsZero() {
				resp.LastSweepAt = last.Format(time.RFC3339)
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func janitorPauseHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Janitor == nil {
			WriteError(w, http.StatusNotFound, "janitor is not configured", "NOT_FOUND")
			return
		}
		cfg.Janitor.Pause()
		WriteJSON(w, http.StatusOK, map[string]bool{"paused": true})
	}
}

func janitorResumeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Janitor == nil {
			WriteError(w, http.StatusNotFound, "janitor is not configured", "NOT_FOUND")
			return
		}
		cfg.Janitor.Resume()
		WriteJSON(w, http.StatusOK, map[string]bool{"paused": false})
	}
}

func janitorSweepHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Janitor == nil {
			WriteError(w, http.StatusNotFound, "janitor is not configured", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, SweepResponse{Pruned: cfg.Janitor.Sweep(r.Context())})
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Repository.ListProjects(r.Context())
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		resp := ProjectsResponse{Projects: make([]ProjectResponse, 0, len(projects))}
		for _, p := range projects {
			resp.Projects = append(resp.Projects, ProjectToResponse(p))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		p, err := cfg.Service.CreateProject(r.Context(), req.Name)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusCreated, ProjectToResponse(p))
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Service.GetProject(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, ProjectToResponse(p))
	}
}

func listAssetsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assets, err := cfg.Service.ListAssets(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		resp := AssetsResponse{Assets: make([]AssetResponse, 0, len(assets))}
		for _, a := range assets {
			resp.Assets = append(resp.Assets, AssetToResponse(a))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func addAssetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddAssetRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		a, err := cfg.Service.AddAsset(r.Context(), chi.URLParam(r, "id"),
			timeline.TrackKind(req.Kind), req.Filename, req.DurationMs)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusCreated, AssetToResponse(a))
	}
}

func getTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := cfg.Service.GetTimeline(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, TimelineResponse{
			ProjectID:    doc.ProjectID,
			Revision:     doc.Revision,
			TimelineHash: doc.TimelineHash,
			UpdatedAt:    doc.UpdatedAt.Format(time.RFC3339),
			Timeline:     doc.State,
		})
	}
}

func previewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OperationsRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		ops, err := timeline.DecodeOperations(req.Operations)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		res, err := cfg.Service.Preview(r.Context(), chi.URLParam(r, "id"), ops)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, resultToResponse(res))
	}
}

func previewVariantsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VariantsRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		batches := make([][]timeline.Operation, 0, len(req.Variants))
		for i, raw := range req.Variants {
			ops, err := timeline.DecodeOperations(raw)
			if err != nil {
				writeServiceError(w, r, cfg, fmt.Errorf("variant %d: %w", i, err))
				return
			}
			batches = append(batches, ops)
		}

		results, err := cfg.Service.PreviewVariants(r.Context(), chi.URLParam(r, "id"), batches)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		resp := VariantsResponse{Variants: make([]PreviewResponse, 0, len(results))}
		for _, res := range results {
			resp.Variants = append(resp.Variants, resultToResponse(res))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func applyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OperationsRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		ops, err := timeline.DecodeOperations(req.Operations)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		out, err := cfg.Service.Apply(r.Context(), chi.URLParam(r, "id"), ops, req.ExpectedRevision)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		resp := outcomeToResponse(out)
		WriteJSON(w, applyStatus(resp), resp)
	}
}

func undoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UndoRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		out, err := cfg.Service.Undo(r.Context(), chi.URLParam(r, "id"), req.UndoToken, req.Force)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, UndoResponse{
			Revision:       out.Revision,
			TimelineHash:   out.TimelineHash,
			UndoneRevision: out.UndoneRevision,
			Timeline:       out.State,
		})
	}
}

func revisionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			n, err := strconv.Atoi(l)
			if err != nil || n < 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a non-negative integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		revs, err := cfg.Service.Revisions(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		if revs == nil {
			revs = []timeline.RevisionEntry{}
		}
		WriteJSON(w, http.StatusOK, RevisionsResponse{Revisions: revs})
	}
}

func outcomeToResponse(out *project.ApplyOutcome) ApplyResponse {
	resp := ApplyResponse{PreviewResponse: resultToResponse(out.Result)}
	if out.UndoToken != "" {
		lineage := out.Lineage
		resp.UndoToken = out.UndoToken
		resp.Lineage = &lineage
	}
	return resp
}

// applyStatus is 422 for batches the gateway refused; the body still
// carries the issues.
func applyStatus(resp ApplyResponse) int {
	if !resp.Valid {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

// decodeRequest decodes and validates a JSON body, writing a 400 on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeBody(w, r, dst); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		WriteError(w, http.StatusBadRequest, validationMessage(err), "BAD_REQUEST")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

// writeServiceError maps domain errors to HTTP status and error code.
func writeServiceError(w http.ResponseWriter, r *http.Request, cfg ServerConfig, err error) {
	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, store.ErrUndoTokenNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, store.ErrUndoTokenConsumed), errors.Is(err, store.ErrRevisionConflict):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, timeline.ErrStaleUndo):
		WriteError(w, http.StatusConflict, err.Error(), "STALE_UNDO")
	case errors.Is(err, timeline.ErrInvalidOperation):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_OPERATIONS")
	case errors.Is(err, project.ErrInvalidInput),
		errors.Is(err, features.ErrInvalidInput),
		errors.Is(err, features.ErrNothingToEnhance),
		errors.Is(err, export.ErrInvalidOutputDir):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		requestID, _ := r.Context().Value(RequestIDKey).(string)
		cfg.Logger.Error("request failed", "error", err, "path", r.URL.Path, "request_id", requestID)
		WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
