package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayowa2133/hookforge/internal/db"
	"github.com/mayowa2133/hookforge/internal/logging"
	"github.com/mayowa2133/hookforge/internal/project"
	"github.com/mayowa2133/hookforge/internal/store"
)

const testToken = "test-token"

type testServer struct {
	t       *testing.T
	handler http.Handler
	cfg     ServerConfig
}

func newTestServer(t *testing.T, mutate ...func(*ServerConfig)) *testServer {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "api.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	repo := project.NewRepository(database.Conn())
	require.NoError(t, repo.SetConfig(context.Background(), authTokenConfigKey, testToken))

	docs := store.NewSQLiteStore(database.Conn())
	var tokens atomic.Int64
	svc := project.NewService(repo, docs, nil, project.Options{
		MaxBatchOps: 50,
		NewToken:    func() string { return fmt.Sprintf("undo-%d", tokens.Add(1)) },
	})

	cfg := ServerConfig{
		Version:    "test",
		StoreKind:  "sqlite",
		Service:    svc,
		Repository: repo,
		Janitor:    project.NewJanitor(docs, repo, nil, time.Minute, time.Hour),
		Logger:     logging.Discard(),
		StartTime:  time.Now().Add(-10 * time.Second),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return &testServer{t: t, handler: NewRouter(cfg), cfg: cfg}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

// project creates a project with two video assets and one audio asset.
func (s *testServer) project() string {
	s.t.Helper()

	rr := s.do(http.MethodPost, "/projects", CreateProjectRequest{Name: "launch teaser"})
	require.Equal(s.t, http.StatusCreated, rr.Code, rr.Body.String())
	var p ProjectResponse
	require.NoError(s.t, json.Unmarshal(rr.Body.Bytes(), &p))

	for _, f := range []string{"hook.mp4", "demo.mov", "voiceover.wav"} {
		rr := s.do(http.MethodPost, "/projects/"+p.ID+"/assets", AddAssetRequest{Filename: f, DurationMs: 2000})
		require.Equal(s.t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	return p.ID
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	return body
}

const addMusicTrack = `{"operations":[{"op":"create_track","kind":"AUDIO","name":"Music"}]}`

func TestHealth_NoAuth(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[HealthResponse](t, rr)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "sqlite", body.Store)
	assert.GreaterOrEqual(t, body.UptimeS, int64(10))
}

func TestMetrics_NoAuth(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestProjects_RequireAuth(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/projects", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeJSONBody(t, rr)["code"])
}

func TestCreateProject_Validation(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"missing name", `{}`},
		{"unknown field", `{"name":"x","color":"red"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.do(http.MethodPost, "/projects", tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "BAD_REQUEST", decodeJSONBody(t, rr)["code"])
		})
	}
}

func TestProject_NotFound(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/projects/missing", "/projects/missing/timeline", "/projects/missing/render-plan"} {
		rr := s.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
}

func TestAssets_InferKind(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	rr := s.do(http.MethodGet, "/projects/"+id+"/assets", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[AssetsResponse](t, rr)
	require.Len(t, body.Assets, 3)
	assert.Equal(t, "VIDEO", body.Assets[0].Kind)
	assert.Equal(t, "VIDEO", body.Assets[1].Kind)
	assert.Equal(t, "AUDIO", body.Assets[2].Kind)
}

func TestGetTimeline_InitializesFromAssets(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	rr := s.do(http.MethodGet, "/projects/"+id+"/timeline", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[TimelineResponse](t, rr)

	assert.Equal(t, 1, body.Revision)
	assert.NotEmpty(t, body.TimelineHash)
	require.Len(t, body.Timeline.Tracks, 2)
	assert.Len(t, body.Timeline.Tracks[0].Clips, 2)
	assert.Equal(t, int64(500), body.Timeline.Tracks[0].Clips[1].TimelineInMs)
	assert.Len(t, body.Timeline.Tracks[1].Clips, 1)
}

func TestPreview_DoesNotPersist(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	rr := s.do(http.MethodPost, "/projects/"+id+"/timeline/preview", addMusicTrack)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	preview := decode[PreviewResponse](t, rr)
	assert.True(t, preview.Valid)
	assert.Equal(t, 2, preview.Revision)
	assert.Len(t, preview.Timeline.Tracks, 3)

	current := decode[TimelineResponse](t, s.do(http.MethodGet, "/projects/"+id+"/timeline", nil))
	assert.Equal(t, 1, current.Revision)
	assert.Len(t, current.Timeline.Tracks, 2)
}

func TestPreviewVariants(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	body := `{"variants":[
		[{"op":"create_track","kind":"AUDIO","name":"Music"}],
		[{"op":"add_clip","trackId":"nope","timelineInMs":0,"durationMs":500}]
	]}`
	rr := s.do(http.MethodPost, "/projects/"+id+"/timeline/preview-variants", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[VariantsResponse](t, rr)
	require.Len(t, resp.Variants, 2)
	assert.True(t, resp.Variants[0].Valid)
	assert.False(t, resp.Variants[1].Valid)
	assert.NotEmpty(t, resp.Variants[1].Issues)
}

func TestApply_CommitsAndIssuesUndoToken(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	rr := s.do(http.MethodPost, "/projects/"+id+"/timeline/apply", addMusicTrack)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[ApplyResponse](t, rr)

	assert.True(t, resp.Valid)
	assert.Equal(t, 2, resp.Revision)
	assert.Equal(t, "undo-1", resp.UndoToken)
	require.NotNil(t, resp.Lineage)
	assert.Equal(t, 1, resp.Lineage.BaseRevision)
	assert.Equal(t, 2, resp.Lineage.AppliedRevision)

	current := decode[TimelineResponse](t, s.do(http.MethodGet, "/projects/"+id+"/timeline", nil))
	assert.Equal(t, 2, current.Revision)
	assert.Equal(t, resp.TimelineHash, current.TimelineHash)
}

func TestApply_Errors(t *testing.T) {
	s := newTestServer(t)
	id := s.project()
	path := "/projects/" + id + "/timeline/apply"

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"unknown op", `{"operations":[{"op":"explode"}]}`, http.StatusBadRequest, "INVALID_OPERATIONS"},
		{"not an array", `{"operations":{"op":"create_track"}}`, http.StatusBadRequest, "INVALID_OPERATIONS"},
		{"missing operations", `{}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"stale expected revision", `{"operations":[{"op":"create_track","kind":"AUDIO","name":"Music"}],"expected_revision":7}`, http.StatusConflict, "CONFLICT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := s.do(http.MethodPost, path, tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, tc.code, decodeJSONBody(t, rr)["code"])
		})
	}
}

func TestApply_RejectedBatchIsUnprocessable(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	rr := s.do(http.MethodPost, "/projects/"+id+"/timeline/apply",
		`{"operations":[{"op":"add_clip","trackId":"nope","timelineInMs":0,"durationMs":500}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	resp := decode[ApplyResponse](t, rr)
	assert.False(t, resp.Valid)
	assert.Empty(t, resp.UndoToken)
	require.NotEmpty(t, resp.Issues)
	assert.Equal(t, "APPLY_FAILED", resp.Issues[0].Code)

	current := decode[TimelineResponse](t, s.do(http.MethodGet, "/projects/"+id+"/timeline", nil))
	assert.Equal(t, 1, current.Revision)
}

func TestUndo_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.project()
	base := decode[TimelineResponse](t, s.do(http.MethodGet, "/projects/"+id+"/timeline", nil))

	applied := decode[ApplyResponse](t, s.do(http.MethodPost, "/projects/"+id+"/timeline/apply", addMusicTrack))

	rr := s.do(http.MethodPost, "/projects/"+id+"/timeline/undo", UndoRequest{UndoToken: applied.UndoToken})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	undone := decode[UndoResponse](t, rr)
	assert.Equal(t, 3, undone.Revision)
	assert.Equal(t, 2, undone.UndoneRevision)
	assert.Len(t, undone.Timeline.Tracks, len(base.Timeline.Tracks))

	rr = s.do(http.MethodPost, "/projects/"+id+"/timeline/undo", UndoRequest{UndoToken: applied.UndoToken})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "CONFLICT", decodeJSONBody(t, rr)["code"])

	rr = s.do(http.MethodPost, "/projects/"+id+"/timeline/undo", UndoRequest{UndoToken: "undo-404"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUndo_StaleUnlessForced(t *testing.T) {
	s := newTestServer(t)
	id := s.project()
	path := "/projects/" + id + "/timeline/apply"

	first := decode[ApplyResponse](t, s.do(http.MethodPost, path, addMusicTrack))
	second := s.do(http.MethodPost, path, `{"operations":[{"op":"set_export_preset","preset":"reels_9x16"}]}`)
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())

	rr := s.do(http.MethodPost, "/projects/"+id+"/timeline/undo", UndoRequest{UndoToken: first.UndoToken})
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "STALE_UNDO", decodeJSONBody(t, rr)["code"])

	rr = s.do(http.MethodPost, "/projects/"+id+"/timeline/undo", UndoRequest{UndoToken: first.UndoToken, Force: true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 4, decode[UndoResponse](t, rr).Revision)
}

func TestRevisions(t *testing.T) {
	s := newTestServer(t)
	id := s.project()
	s.do(http.MethodPost, "/projects/"+id+"/timeline/apply", addMusicTrack)

	rr := s.do(http.MethodGet, "/projects/"+id+"/timeline/revisions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	revs := decode[RevisionsResponse](t, rr).Revisions
	require.Len(t, revs, 2)
	assert.Equal(t, 2, revs[0].Revision)
	assert.Equal(t, 1, revs[1].Revision)

	rr = s.do(http.MethodGet, "/projects/"+id+"/timeline/revisions?limit=1", nil)
	assert.Len(t, decode[RevisionsResponse](t, rr).Revisions, 1)

	rr = s.do(http.MethodGet, "/projects/"+id+"/timeline/revisions?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCaptions_DryRunThenApply(t *testing.T) {
	s := newTestServer(t)
	id := s.project()
	body := `{"dry_run":true,"segments":[{"start_ms":0,"end_ms":900,"text":"Wait for it"},{"start_ms":900,"end_ms":1800,"text":"Boom"}],"style":{"position":"bottom"}}`

	rr := s.do(http.MethodPost, "/projects/"+id+"/captions", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	preview := decode[FeatureResponse](t, rr)
	assert.True(t, preview.DryRun)
	assert.True(t, preview.Valid)
	assert.Empty(t, preview.UndoToken)
	assert.Len(t, preview.Operations, 5)

	current := decode[TimelineResponse](t, s.do(http.MethodGet, "/projects/"+id+"/timeline", nil))
	assert.Equal(t, 1, current.Revision)

	rr = s.do(http.MethodPost, "/projects/"+id+"/captions", strings.Replace(body, `"dry_run":true`, `"dry_run":false`, 1))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	applied := decode[FeatureResponse](t, rr)
	assert.Equal(t, 2, applied.Revision)
	assert.NotEmpty(t, applied.UndoToken)
	assert.Len(t, applied.Timeline.Tracks, 3)
}

func TestCaptions_InvalidSegments(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	rr := s.do(http.MethodPost, "/projects/"+id+"/captions", `{"segments":[{"start_ms":500,"end_ms":100,"text":"x"}]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "BAD_REQUEST", decodeJSONBody(t, rr)["code"])
}

func TestAudioEnhance(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	rr := s.do(http.MethodPost, "/projects/"+id+"/audio/enhance", `{"preset":"podcast"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[FeatureResponse](t, rr)
	assert.False(t, resp.DryRun)
	assert.True(t, resp.Valid)
	assert.NotEmpty(t, resp.Operations)

	rr = s.do(http.MethodPost, "/projects/"+id+"/audio/enhance", `{"preset":"vinyl"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAutoEdit(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	body := `{"dry_run":true,"rules":[{"name":"hook","when":"track_kind == \"VIDEO\" && is_first","action":"label","label":"HOOK"}]}`
	rr := s.do(http.MethodPost, "/projects/"+id+"/auto-edit", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[FeatureResponse](t, rr)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, "hook", resp.Matches[0].Rule)
	assert.Len(t, resp.Operations, 1)

	rr = s.do(http.MethodPost, "/projects/"+id+"/auto-edit", `{"rules":[{"when":"duration_ms <","action":"remove"}]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAutoEdit_NoMatchesIsNoop(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	rr := s.do(http.MethodPost, "/projects/"+id+"/auto-edit", `{"rules":[{"when":"duration_ms > 999999","action":"remove"}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[FeatureResponse](t, rr)
	assert.Empty(t, resp.Operations)
	assert.Equal(t, 1, resp.Revision)
}

func TestFeature_ExpectedRevisionConflict(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	rr := s.do(http.MethodPost, "/projects/"+id+"/audio/enhance", `{"preset":"loud","expected_revision":3}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRenderPlan(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	rr := s.do(http.MethodGet, "/projects/"+id+"/render-plan", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeJSONBody(t, rr)
	assert.Equal(t, float64(1), body["revision"])
	assert.Len(t, body["segments"], 3)
	assert.Equal(t, float64(2500), body["duration_ms"])
}

func TestExportEDL(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "out"), 0755))
	s := newTestServer(t, func(cfg *ServerConfig) { cfg.ExportRoot = root })
	id := s.project()

	rr := s.do(http.MethodGet, "/projects/"+id+"/export/edl?title=Launch%20Teaser", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeJSONBody(t, rr)
	assert.Equal(t, float64(2), resp["event_count"])
	assert.Contains(t, resp["edl"], "TITLE: Launch Teaser")
	assert.Contains(t, resp["edl"], "hook.mp4")

	rr = s.do(http.MethodGet, "/projects/"+id+"/export/edl?format=text", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "TITLE: hookforge_export"))

	rr = s.do(http.MethodGet, "/projects/"+id+"/export/edl?title=cut&output_dir=out", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	written := decodeJSONBody(t, rr)["output_path"].(string)
	assert.Equal(t, filepath.Join(root, "out", "cut.edl"), written)
	_, err := os.Stat(written)
	assert.NoError(t, err)

	for _, dir := range []string{"../etc", "/tmp", "missing"} {
		rr = s.do(http.MethodGet, "/projects/"+id+"/export/edl?output_dir="+dir, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, dir)
	}
}

func TestExportEDL_FileExportDisabled(t *testing.T) {
	s := newTestServer(t)
	id := s.project()

	rr := s.do(http.MethodGet, "/projects/"+id+"/export/edl?output_dir=out", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatusAndJanitor(t *testing.T) {
	s := newTestServer(t)
	s.project()

	status := decode[StatusResponse](t, s.do(http.MethodGet, "/status", nil))
	assert.Equal(t, "idle", status.State)
	assert.Equal(t, 1, status.ProjectsCount)
	assert.Empty(t, status.LastSweepAt)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/janitor/pause", nil).Code)
	assert.Equal(t, "paused", decode[StatusResponse](t, s.do(http.MethodGet, "/status", nil)).State)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/janitor/resume", nil).Code)

	rr := s.do(http.MethodPost, "/janitor/sweep", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, decode[SweepResponse](t, rr).Pruned)
	assert.NotEmpty(t, decode[StatusResponse](t, s.do(http.MethodGet, "/status", nil)).LastSweepAt)
}

func TestJanitorRoutes_NotConfigured(t *testing.T) {
	s := newTestServer(t, func(cfg *ServerConfig) { cfg.Janitor = nil })

	rr := s.do(http.MethodPost, "/janitor/sweep", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
