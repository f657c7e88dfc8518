package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

const fixedAt = "2026-03-02T12:00:00Z"

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--at", fixedAt}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// initTimeline writes a two-video, one-audio document and returns its path.
func initTimeline(t *testing.T, dir string) string {
	t.Helper()
	assets := writeFile(t, dir, "assets.yaml", `
assets:
  - id: a1
    kind: video
    label: Hook
    duration_ms: 2000
  - id: a2
    kind: VIDEO
    label: Demo
    duration_ms: 3000
  - id: a3
    kind: audio
    label: Voice
    duration_ms: 4000
`)
	out := filepath.Join(dir, "timeline.json")
	_, _, err := run(t, "init", "--assets", assets, "-o", out)
	require.NoError(t, err)
	return out
}

func TestInit_LaysOutAssets(t *testing.T) {
	dir := t.TempDir()
	path := initTimeline(t, dir)

	s, err := readTimeline(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Version)
	require.Len(t, s.Tracks, 2)
	assert.Len(t, s.Tracks[0].Clips, 2)
	assert.Equal(t, "Hook", s.Tracks[0].Clips[0].Label)
	assert.Len(t, s.Tracks[1].Clips, 1)
}

func TestInit_IsDeterministic(t *testing.T) {
	a := initTimeline(t, t.TempDir())
	b := initTimeline(t, t.TempDir())

	ha, _, err := run(t, "hash", "-t", a)
	require.NoError(t, err)
	hb, _, err := run(t, "hash", "-t", b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	assert.Equal(t, string(da), string(db))
}

func TestInit_RejectsUnknownKind(t *testing.T) {
	dir := t.TempDir()
	assets := writeFile(t, dir, "assets.yaml", "assets:\n  - kind: CAPTION\n")
	_, _, err := run(t, "init", "--assets", assets)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	path := initTimeline(t, dir)

	out, _, err := run(t, "validate", "-t", path)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	broken := writeFile(t, dir, "broken.json", `{"version":0,"fps":30,"resolution":{"width":1080,"height":1920},"exportPreset":"tiktok_9x16","tracks":[]}`)
	out, _, err = run(t, "validate", "-t", broken)
	assert.True(t, errors.Is(err, errInvalidTimeline))
	assert.Contains(t, out, timeline.IssueInvalidVersion)
}

func TestPreview_DoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	path := initTimeline(t, dir)
	before, _ := os.ReadFile(path)
	ops := writeFile(t, dir, "ops.yaml", `
- op: create_track
  kind: AUDIO
  name: Music
`)

	out, _, err := run(t, "preview", "-t", path, "--ops", ops)
	require.NoError(t, err)

	var res timeline.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Valid)
	assert.Equal(t, 2, res.Revision)

	after, _ := os.ReadFile(path)
	assert.Equal(t, string(before), string(after))
}

func TestApply_InPlace(t *testing.T) {
	dir := t.TempDir()
	path := initTimeline(t, dir)
	ops := writeFile(t, dir, "ops.json", `{"operations":[{"op":"set_export_preset","preset":"shorts_9x16"}]}`)

	_, stderr, err := run(t, "apply", "-t", path, "--ops", ops, "--in-place")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stderr, "revision 2 "))

	s, err := readTimeline(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Version)
	assert.Equal(t, "shorts_9x16", s.ExportPreset)
	require.Len(t, s.Revisions, 2)
}

func TestApply_RejectedBatch(t *testing.T) {
	dir := t.TempDir()
	path := initTimeline(t, dir)
	ops := writeFile(t, dir, "ops.yaml", `
operations:
  - op: remove_clip
    clipId: nope
`)

	_, stderr, err := run(t, "apply", "-t", path, "--ops", ops)
	assert.True(t, errors.Is(err, errInvalidTimeline))
	assert.Contains(t, stderr, timeline.IssueApplyFailed)
}

func TestApply_UnknownOperation(t *testing.T) {
	dir := t.TempDir()
	path := initTimeline(t, dir)
	ops := writeFile(t, dir, "ops.yaml", "- op: teleport\n")

	_, _, err := run(t, "apply", "-t", path, "--ops", ops)
	assert.True(t, errors.Is(err, timeline.ErrInvalidOperation))
}

func TestRenderPlanAndEDL(t *testing.T) {
	dir := t.TempDir()
	path := initTimeline(t, dir)

	out, _, err := run(t, "render-plan", "-t", path)
	require.NoError(t, err)
	var plan map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Len(t, plan["segments"], 3)

	edl, _, err := run(t, "export-edl", "-t", path, "--title", "Teaser")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(edl, "TITLE: Teaser\n"))
	assert.Contains(t, edl, "002  AX")

	file := filepath.Join(dir, "cut.edl")
	_, _, err = run(t, "export-edl", "-t", path, "-o", file)
	require.NoError(t, err)
	written, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(written), "TITLE: hookforge_export")
}

func TestAutoEdit(t *testing.T) {
	dir := t.TempDir()
	path := initTimeline(t, dir)
	rules := writeFile(t, dir, "rules.yaml", `
rules:
  - name: hook
    when: track_kind == "VIDEO" && is_first
    action: label
    label: HOOK
`)

	out, _, err := run(t, "auto-edit", "-t", path, "--rules", rules)
	require.NoError(t, err)
	assert.Contains(t, out, `"rule": "hook"`)

	edited := filepath.Join(dir, "edited.json")
	_, _, err = run(t, "auto-edit", "-t", path, "--rules", rules, "--apply", "-o", edited)
	require.NoError(t, err)
	s, err := readTimeline(edited)
	require.NoError(t, err)
	assert.Equal(t, "HOOK", s.Tracks[0].Clips[0].Label)
	assert.Equal(t, 2, s.Version)
}
