package timeline

import (
	"encoding/json"
	"fmt"
)

// Operation tags on the wire.
const (
	OpCreateTrack       = "create_track"
	OpAddClip           = "add_clip"
	OpSplitClip         = "split_clip"
	OpTrimClip          = "trim_clip"
	OpReorderTrack      = "reorder_track"
	OpMoveClip          = "move_clip"
	OpSetClipTiming     = "set_clip_timing"
	OpRemoveClip        = "remove_clip"
	OpMergeClipWithNext = "merge_clip_with_next"
	OpSetClipLabel      = "set_clip_label"
	OpSetTrackAudio     = "set_track_audio"
	OpAddEffect         = "add_effect"
	OpUpsertEffect      = "upsert_effect"
	OpSetTransition     = "set_transition"
	OpSetKeyframe       = "set_keyframe"
	OpSetExportPreset   = "set_export_preset"
)

// Operation is one typed edit. The concrete types below are the only
// implementations; Op returns the wire tag.
type Operation interface {
	Op() string
}

type CreateTrack struct {
	TrackID string    `json:"trackId,omitempty"`
	Kind    TrackKind `json:"kind"`
	Name    string    `json:"name"`
}

type AddClip struct {
	TrackID      string `json:"trackId"`
	ClipID       string `json:"clipId,omitempty"`
	AssetID      string `json:"assetId,omitempty"`
	SlotKey      string `json:"slotKey,omitempty"`
	Label        string `json:"label,omitempty"`
	TimelineInMs int64  `json:"timelineInMs"`
	DurationMs   int64  `json:"durationMs"`
	SourceInMs   int64  `json:"sourceInMs"`
	SourceOutMs  *int64 `json:"sourceOutMs,omitempty"`
}

type SplitClip struct {
	ClipID  string `json:"clipId"`
	SplitMs int64  `json:"splitMs"`
}

type TrimClip struct {
	ClipID      string `json:"clipId"`
	TrimStartMs int64  `json:"trimStartMs"`
	TrimEndMs   int64  `json:"trimEndMs"`
}

type ReorderTrack struct {
	TrackID string `json:"trackId"`
	Order   int    `json:"order"`
}

type MoveClip struct {
	ClipID       string `json:"clipId"`
	TimelineInMs int64  `json:"timelineInMs"`
}

type SetClipTiming struct {
	ClipID       string `json:"clipId"`
	TimelineInMs int64  `json:"timelineInMs"`
	DurationMs   int64  `json:"durationMs"`
}

type RemoveClip struct {
	ClipID string `json:"clipId"`
}

type MergeClipWithNext struct {
	ClipID string `json:"clipId"`
}

type SetClipLabel struct {
	ClipID string `json:"clipId"`
	Label  string `json:"label"`
}

type SetTrackAudio struct {
	TrackID string   `json:"trackId"`
	Volume  *float64 `json:"volume,omitempty"`
	Muted   *bool    `json:"muted,omitempty"`
}

type AddEffect struct {
	ClipID     string         `json:"clipId"`
	EffectID   string         `json:"effectId,omitempty"`
	EffectType string         `json:"effectType"`
	Config     map[string]any `json:"config,omitempty"`
}

type UpsertEffect struct {
	ClipID     string         `json:"clipId"`
	EffectType string         `json:"effectType"`
	Config     map[string]any `json:"config,omitempty"`
}

type SetTransition struct {
	ClipID         string `json:"clipId"`
	TransitionType string `json:"transitionType"`
	DurationMs     int64  `json:"durationMs"`
}

type SetKeyframe struct {
	ClipID     string `json:"clipId"`
	EffectID   string `json:"effectId"`
	KeyframeID string `json:"keyframeId,omitempty"`
	Property   string `json:"property"`
	TimeMs     int64  `json:"timeMs"`
	Value      Value  `json:"value"`
	Easing     string `json:"easing,omitempty"`
}

type SetExportPreset struct {
	Preset string `json:"preset"`
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
}

func (CreateTrack) Op() string       { return OpCreateTrack }
func (AddClip) Op() string           { return OpAddClip }
func (SplitClip) Op() string         { return OpSplitClip }
func (TrimClip) Op() string          { return OpTrimClip }
func (ReorderTrack) Op() string      { return OpReorderTrack }
func (MoveClip) Op() string          { return OpMoveClip }
func (SetClipTiming) Op() string     { return OpSetClipTiming }
func (RemoveClip) Op() string        { return OpRemoveClip }
func (MergeClipWithNext) Op() string { return OpMergeClipWithNext }
func (SetClipLabel) Op() string      { return OpSetClipLabel }
func (SetTrackAudio) Op() string     { return OpSetTrackAudio }
func (AddEffect) Op() string         { return OpAddEffect }
func (UpsertEffect) Op() string      { return OpUpsertEffect }
func (SetTransition) Op() string     { return OpSetTransition }
func (SetKeyframe) Op() string       { return OpSetKeyframe }
func (SetExportPreset) Op() string   { return OpSetExportPreset }

var operationFactories = map[string]func() Operation{
	OpCreateTrack:       func() Operation { return &CreateTrack{} },
	OpAddClip:           func() Operation { return &AddClip{} },
	OpSplitClip:         func() Operation { return &SplitClip{} },
	OpTrimClip:          func() Operation { return &TrimClip{} },
	OpReorderTrack:      func() Operation { return &ReorderTrack{} },
	OpMoveClip:          func() Operation { return &MoveClip{} },
	OpSetClipTiming:     func() Operation { return &SetClipTiming{} },
	OpRemoveClip:        func() Operation { return &RemoveClip{} },
	OpMergeClipWithNext: func() Operation { return &MergeClipWithNext{} },
	OpSetClipLabel:      func() Operation { return &SetClipLabel{} },
	OpSetTrackAudio:     func() Operation { return &SetTrackAudio{} },
	OpAddEffect:         func() Operation { return &AddEffect{} },
	OpUpsertEffect:      func() Operation { return &UpsertEffect{} },
	OpSetTransition:     func() Operation { return &SetTransition{} },
	OpSetKeyframe:       func() Operation { return &SetKeyframe{} },
	OpSetExportPreset:   func() Operation { return &SetExportPreset{} },
}

// OperationList is an ordered batch with the tagged {"op": ...} wire form.
type OperationList []Operation

func (l OperationList) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for i, op := range l {
		raw, err := MarshalOperation(op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

func (l *OperationList) UnmarshalJSON(data []byte) error {
	ops, err := DecodeOperations(data)
	if err != nil {
		return err
	}
	*l = ops
	return nil
}

// MarshalOperation encodes op with its "op" discriminator.
func MarshalOperation(op Operation) ([]byte, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(op.Op())
	fields["op"] = tag
	return json.Marshal(fields)
}

// DecodeOperation decodes a single tagged operation object.
func DecodeOperation(data []byte) (Operation, error) {
	var head struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	factory, ok := operationFactories[head.Op]
	if !ok {
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidOperation, head.Op)
	}
	op := factory()
	if err := json.Unmarshal(data, op); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidOperation, head.Op, err)
	}
	return deref(op), nil
}

// DecodeOperations decodes a JSON array of tagged operations.
func DecodeOperations(data []byte) (OperationList, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: operations must be an array: %v", ErrInvalidOperation, err)
	}
	ops := make(OperationList, 0, len(raws))
	for i, raw := range raws {
		op, err := DecodeOperation(raw)
		if err != nil {
			return nil, &OpError{Index: i, Err: err}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func deref(op Operation) Operation {
	switch o := op.(type) {
	case *CreateTrack:
		return *o
	case *AddClip:
		return *o
	case *SplitClip:
		return *o
	case *TrimClip:
		return *o
	case *ReorderTrack:
		return *o
	case *MoveClip:
		return *o
	case *SetClipTiming:
		return *o
	case *RemoveClip:
		return *o
	case *MergeClipWithNext:
		return *o
	case *SetClipLabel:
		return *o
	case *SetTrackAudio:
		return *o
	case *AddEffect:
		return *o
	case *UpsertEffect:
		return *o
	case *SetTransition:
		return *o
	case *SetKeyframe:
		return *o
	case *SetExportPreset:
		return *o
	}
	return op
}
