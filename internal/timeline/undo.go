package timeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// Lineage binds an undo token to the exact revisions it was captured between.
type Lineage struct {
	BaseRevision        int    `json:"baseRevision"`
	BaseTimelineHash    string `json:"baseTimelineHash"`
	AppliedRevision     int    `json:"appliedRevision"`
	AppliedTimelineHash string `json:"appliedTimelineHash"`
}

// UndoToken reverts one committed batch. Snapshot is the serialized
// document as it was before the batch.
type UndoToken struct {
	Token      string          `json:"undoToken"`
	ProjectID  string          `json:"projectId"`
	Snapshot   json.RawMessage `json:"snapshot"`
	Lineage    Lineage         `json:"lineage"`
	CreatedAt  time.Time       `json:"createdAt"`
	ConsumedAt *time.Time      `json:"consumedAt,omitempty"`
}

// NewUndoToken captures before so that the change to after can be reverted.
func NewUndoToken(token, projectID string, before *State, beforeHash string, after *State, afterHash string, now time.Time) (*UndoToken, error) {
	snapshot, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("serialize undo snapshot: %w", err)
	}
	return &UndoToken{
		Token:     token,
		ProjectID: projectID,
		Snapshot:  snapshot,
		Lineage: Lineage{
			BaseRevision:        before.Version,
			BaseTimelineHash:    beforeHash,
			AppliedRevision:     after.Version,
			AppliedTimelineHash: afterHash,
		},
		CreatedAt: now,
	}, nil
}

// CheckCurrent returns ErrStaleUndo unless current is still exactly the
// revision the token was applied as, or force is set.
func (t *UndoToken) CheckCurrent(currentRevision int, currentHash string, force bool) error {
	if force {
		return nil
	}
	if currentRevision != t.Lineage.AppliedRevision || currentHash != t.Lineage.AppliedTimelineHash {
		return fmt.Errorf("%w: token applied at revision %d, document is at revision %d",
			ErrStaleUndo, t.Lineage.AppliedRevision, currentRevision)
	}
	return nil
}

// Restore builds the document that reverts the token's change on top of
// current. The result carries current's revision log, a version one past
// current, and a revision entry marked UndoOf. A restored document that
// fails Validate is refused with ErrInvalidOperation.
func (t *UndoToken) Restore(current *State, opts ...Option) (*ApplyResult, error) {
	cfg := newApplyConfig(opts)

	var snapshot State
	if err := json.Unmarshal(t.Snapshot, &snapshot); err != nil {
		return nil, fmt.Errorf("decode undo snapshot: %w", err)
	}

	next := current.Clone()
	restored := snapshot.Clone()
	next.Version = current.Version + 1
	next.FPS = restored.FPS
	next.Resolution = restored.Resolution
	next.ExportPreset = restored.ExportPreset
	next.Tracks = restored.Tracks

	hash, err := Hash(next)
	if err != nil {
		return nil, err
	}
	gen := &idGen{version: next.Version}
	recordRevision(next, RevisionEntry{
		ID:           gen.next("rev", t.Token),
		Revision:     next.Version,
		CreatedAt:    cfg.now(),
		TimelineHash: hash,
		Operations:   OperationList{},
		UndoOf:       t.Lineage.AppliedRevision,
	})
	if issues := Validate(next); len(issues) > 0 {
		return nil, fmt.Errorf("%w: restored snapshot fails validation: %s: %s",
			ErrInvalidOperation, issues[0].Code, issues[0].Message)
	}
	return &ApplyResult{State: next, TimelineHash: hash, Revision: next.Version}, nil
}
