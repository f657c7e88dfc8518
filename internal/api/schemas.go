package api

import (
	"encoding/json"
	"time"

	"github.com/mayowa2133/hookforge/internal/features"
	"github.com/mayowa2133/hookforge/internal/project"
	"github.com/mayowa2133/hookforge/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
	Store   string `json:"store"`
}

type StatusResponse struct {
	State          string `json:"state"`
	ProjectsCount  int    `json:"projects_count"`
	JanitorRunning bool   `json:"janitor_running"`
	LastSweepAt    string `json:"last_sweep_at,omitempty"`
}

type SweepResponse struct {
	Pruned int `json:"pruned"`
}

type CreateProjectRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type ProjectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type ProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

type AddAssetRequest struct {
	// Kind is inferred from the filename extension when empty.
	Kind       string `json:"kind" validate:"omitempty,oneof=VIDEO AUDIO"`
	Filename   string `json:"filename" validate:"required,max=255"`
	DurationMs int64  `json:"duration_ms" validate:"gt=0"`
}

type AssetResponse struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	Kind       string `json:"kind"`
	Filename   string `json:"filename"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

type AssetsResponse struct {
	Assets []AssetResponse `json:"assets"`
}

type TimelineResponse struct {
	ProjectID    string          `json:"project_id"`
	Revision     int             `json:"revision"`
	TimelineHash string          `json:"timeline_hash"`
	UpdatedAt    string          `json:"updated_at"`
	Timeline     *timeline.State `json:"timeline"`
}

// OperationsRequest carries a raw batch; it is decoded by the timeline
// codec so unknown tags surface as INVALID_OPERATIONS.
type OperationsRequest struct {
	Operations       json.RawMessage `json:"operations" validate:"required"`
	ExpectedRevision *int            `json:"expected_revision,omitempty" validate:"omitempty,gte=1"`
}

type VariantsRequest struct {
	Variants []json.RawMessage `json:"variants" validate:"required,min=1,dive,required"`
}

type PreviewResponse struct {
	Valid        bool             `json:"valid"`
	Revision     int              `json:"revision,omitempty"`
	TimelineHash string           `json:"timeline_hash,omitempty"`
	Issues       []timeline.Issue `json:"issues,omitempty"`
	Timeline     *timeline.State  `json:"timeline,omitempty"`
}

type VariantsResponse struct {
	Variants []PreviewResponse `json:"variants"`
}

type ApplyResponse struct {
	PreviewResponse
	UndoToken string            `json:"undo_token,omitempty"`
	Lineage   *timeline.Lineage `json:"lineage,omitempty"`
}

type UndoRequest struct {
	UndoToken string `json:"undo_token" validate:"required,max=128"`
	Force     bool   `json:"force"`
}

type UndoResponse struct {
	Revision       int             `json:"revision"`
	TimelineHash   string          `json:"timeline_hash"`
	UndoneRevision int             `json:"undone_revision"`
	Timeline       *timeline.State `json:"timeline"`
}

type RevisionsResponse struct {
	Revisions []timeline.RevisionEntry `json:"revisions"`
}

// featureMode is shared by every feature endpoint. ExpectedRevision
// defaults to the revision the batch was planned against.
type featureMode struct {
	DryRun           bool `json:"dry_run"`
	ExpectedRevision *int `json:"expected_revision,omitempty"`
}

type CaptionsRequest struct {
	featureMode
	features.CaptionRequest
}

type AudioEnhanceRequest struct {
	featureMode
	features.AudioEnhanceRequest
}

type AutoEditRequest struct {
	featureMode
	features.AutoEditRequest
}

type FeatureResponse struct {
	ApplyResponse
	DryRun     bool                   `json:"dry_run"`
	Operations timeline.OperationList `json:"operations"`
	Matches    []features.RuleMatch   `json:"matches,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func ProjectToResponse(p *project.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func AssetToResponse(a *project.Asset) AssetResponse {
	return AssetResponse{
		ID:         a.ID,
		ProjectID:  a.ProjectID,
		Kind:       string(a.Kind),
		Filename:   a.Filename,
		DurationMs: a.DurationMs,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}

func resultToResponse(res timeline.Result) PreviewResponse {
	return PreviewResponse{
		Valid:        res.Valid,
		Revision:     res.Revision,
		TimelineHash: res.TimelineHash,
		Issues:       res.Issues,
		Timeline:     res.NextState,
	}
}
