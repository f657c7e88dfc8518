package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mayowa2133/hookforge/internal/export"
)

func renderPlanHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := cfg.Service.GetTimeline(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, export.BuildRenderPlan(doc.State, doc.TimelineHash))
	}
}

// exportEDLHandler renders the main video track as a CMX3600 EDL. With
// ?format=text the EDL is returned as an attachment; with ?output_dir it is
// also written below the configured export root.
func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		projectID := chi.URLParam(r, "id")
		q := r.URL.Query()
		req := export.EDLRequest{Title: q.Get("title"), OutputDir: q.Get("output_dir")}

		var outDir string
		if req.OutputDir != "" {
			dir, err := resolveExportDir(cfg.ExportRoot, req.OutputDir)
			if err != nil {
				writeServiceError(w, r, cfg, err)
				return
			}
			outDir = dir
		}

		doc, err := cfg.Service.GetTimeline(ctx, projectID)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		assets, err := cfg.Service.ListAssets(ctx, projectID)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		paths := make(map[string]string, len(assets))
		for _, a := range assets {
			paths[a.ID] = a.Filename
		}

		title := export.Title(req.Title)
		edl, events := export.TimelineEDL(doc.State, title, func(assetID string) string { return paths[assetID] })
		if events == 0 {
			WriteError(w, http.StatusBadRequest, "timeline has no video clips to export", "BAD_REQUEST")
			return
		}

		resp := export.EDLResponse{Title: title, Revision: doc.Revision, EventCount: events, EDL: edl}
		if outDir != "" {
			path, err := export.WriteEDL(outDir, export.FileBase(title), edl)
			if err != nil {
				writeServiceError(w, r, cfg, err)
				return
			}
			resp.OutputPath = path
		}

		if strings.EqualFold(q.Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileBase(title)+".edl"))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(edl))
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// resolveExportDir maps a relative output_dir onto root.
func resolveExportDir(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("%w: file export is disabled", export.ErrInvalidOutputDir)
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: output_dir must be relative to the export root", export.ErrInvalidOutputDir)
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: path traversal is not allowed", export.ErrInvalidOutputDir)
		}
	}
	dir := filepath.Join(root, rel)
	if err := export.ValidateOutputDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}
