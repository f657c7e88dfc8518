package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mayowa2133/hookforge/internal/features"
	"github.com/mayowa2133/hookforge/internal/store"
	"github.com/mayowa2133/hookforge/internal/timeline"
)

// planFunc produces a batch from the current document.
type planFunc func(s *timeline.State) ([]timeline.Operation, []features.RuleMatch, error)

func captionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CaptionsRequest
		if err := decodeBody(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		runFeature(w, r, cfg, req.featureMode, func(s *timeline.State) ([]timeline.Operation, []features.RuleMatch, error) {
			ops, err := features.CaptionOps(s, req.CaptionRequest)
			return ops, nil, err
		})
	}
}

func audioEnhanceHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AudioEnhanceRequest
		if err := decodeBody(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		runFeature(w, r, cfg, req.featureMode, func(s *timeline.State) ([]timeline.Operation, []features.RuleMatch, error) {
			ops, err := features.AudioEnhanceOps(s, req.AudioEnhanceRequest)
			return ops, nil, err
		})
	}
}

func autoEditHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AutoEditRequest
		if err := decodeBody(w, r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		runFeature(w, r, cfg, req.featureMode, func(s *timeline.State) ([]timeline.Operation, []features.RuleMatch, error) {
			plan, err := features.AutoEditOps(s, req.AutoEditRequest)
			if err != nil {
				return nil, nil, err
			}
			return plan.Operations, plan.Matches, nil
		})
	}
}

// runFeature plans a batch against the current document and previews it
// (dry run) or applies it pinned to the planned revision.
func runFeature(w http.ResponseWriter, r *http.Request, cfg ServerConfig, mode featureMode, plan planFunc) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "id")

	doc, err := cfg.Service.GetTimeline(ctx, projectID)
	if err != nil {
		writeServiceError(w, r, cfg, err)
		return
	}

	ops, matches, err := plan(doc.State)
	if err != nil {
		writeServiceError(w, r, cfg, err)
		return
	}

	resp := FeatureResponse{DryRun: mode.DryRun, Operations: ops, Matches: matches}
	if resp.Operations == nil {
		resp.Operations = timeline.OperationList{}
	}

	if len(ops) == 0 {
		resp.Valid = true
		resp.Revision = doc.Revision
		resp.TimelineHash = doc.TimelineHash
		resp.Timeline = doc.State
		WriteJSON(w, http.StatusOK, resp)
		return
	}

	if mode.DryRun {
		res, err := cfg.Service.Preview(ctx, projectID, ops)
		if err != nil {
			writeServiceError(w, r, cfg, err)
			return
		}
		resp.PreviewResponse = resultToResponse(res)
		WriteJSON(w, http.StatusOK, resp)
		return
	}

	expected := doc.Revision
	if mode.ExpectedRevision != nil {
		expected = *mode.ExpectedRevision
	}
	if expected != doc.Revision {
		writeServiceError(w, r, cfg, store.ErrRevisionConflict)
		return
	}

	out, err := cfg.Service.Apply(ctx, projectID, ops, &expected)
	if err != nil {
		writeServiceError(w, r, cfg, err)
		return
	}
	resp.ApplyResponse = outcomeToResponse(out)
	WriteJSON(w, applyStatus(resp.ApplyResponse), resp)
}
