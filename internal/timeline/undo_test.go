package timeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyWithToken(t *testing.T, base *State, ops ...Operation) (*State, *UndoToken) {
	t.Helper()
	res := Preview(base, ops, fixedClock())
	require.True(t, res.Valid, "issues: %+v", res.Issues)

	baseHash := base.Head().TimelineHash
	tok, err := NewUndoToken("tok-1", "proj-1", base, baseHash, res.NextState, res.TimelineHash, fixedNow)
	require.NoError(t, err)
	return res.NextState, tok
}

func TestUndoToken_Lineage(t *testing.T) {
	base := stateWithClip(t)
	next, tok := applyWithToken(t, base, RemoveClip{ClipID: "c1"})

	assert.Equal(t, base.Version, tok.Lineage.BaseRevision)
	assert.Equal(t, base.Head().TimelineHash, tok.Lineage.BaseTimelineHash)
	assert.Equal(t, next.Version, tok.Lineage.AppliedRevision)
	assert.Equal(t, next.Head().TimelineHash, tok.Lineage.AppliedTimelineHash)

	require.NoError(t, tok.CheckCurrent(next.Version, next.Head().TimelineHash, false))
}

func TestUndoToken_StaleRejectedUnlessForced(t *testing.T) {
	base := stateWithClip(t)
	next, tok := applyWithToken(t, base, SetClipLabel{ClipID: "c1", Label: "one"})
	later := mustPreview(t, next, SetClipLabel{ClipID: "c1", Label: "two"})

	err := tok.CheckCurrent(later.Version, later.Head().TimelineHash, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleUndo)

	assert.NoError(t, tok.CheckCurrent(later.Version, later.Head().TimelineHash, true))

	err = tok.CheckCurrent(next.Version, "tampered", false)
	assert.ErrorIs(t, err, ErrStaleUndo)
}

func TestUndoToken_RestoreAddsRevision(t *testing.T) {
	base := stateWithClip(t)
	next, tok := applyWithToken(t, base, RemoveClip{ClipID: "c1"})
	require.Empty(t, next.TrackByID(SeedVideoTrackID).Clips)

	restored, err := tok.Restore(next, fixedClock())
	require.NoError(t, err)

	assert.Equal(t, next.Version+1, restored.Revision)
	assert.Equal(t, restored.Revision, restored.State.Version)
	assert.Equal(t, "c1", restored.State.TrackByID(SeedVideoTrackID).Clips[0].ID)

	head := restored.State.Head()
	assert.Equal(t, next.Version, head.UndoOf)
	assert.Equal(t, restored.TimelineHash, head.TimelineHash)
	assert.Len(t, restored.State.Revisions, len(next.Revisions)+1)
	assert.Empty(t, Validate(restored.State))

	assert.Empty(t, next.TrackByID(SeedVideoTrackID).Clips, "restore must not touch the current state")
}

func TestUndoToken_RestoreRejectsInvalidSnapshot(t *testing.T) {
	base := stateWithClip(t)
	next, tok := applyWithToken(t, base, RemoveClip{ClipID: "c1"})

	var snapshot State
	require.NoError(t, json.Unmarshal(tok.Snapshot, &snapshot))
	snapshot.FPS = 0
	raw, err := json.Marshal(snapshot)
	require.NoError(t, err)
	tok.Snapshot = raw

	restored, err := tok.Restore(next, fixedClock())
	require.ErrorIs(t, err, ErrInvalidOperation)
	assert.Contains(t, err.Error(), IssueInvalidFPS)
	assert.Nil(t, restored)
}
