// Package timeline implements the operation-based timeline document: the
// state model, the operation executor, the invariant validator and the
// preview/commit gateway every edit passes through.
package timeline

import (
	"encoding/json"
	"fmt"
	"time"
)

type TrackKind string

const (
	TrackKindVideo   TrackKind = "VIDEO"
	TrackKindAudio   TrackKind = "AUDIO"
	TrackKindCaption TrackKind = "CAPTION"
)

func (k TrackKind) Valid() bool {
	switch k {
	case TrackKindVideo, TrackKindAudio, TrackKindCaption:
		return true
	}
	return false
}

const (
	PresetTikTok = "tiktok_9x16"
	PresetReels  = "reels_9x16"
	PresetShorts = "shorts_9x16"
	PresetCustom = "custom"

	DefaultPreset = PresetTikTok
	DefaultFPS    = 30
	DefaultWidth  = 1080
	DefaultHeight = 1920

	MinResolution     = 120
	MinClipDurationMs = 120
	MinSplitMarginMs  = 40
	MinTransitionMs   = 40
	MaxVolume         = 1.5
	MaxLabelLength    = 160
	MaxRevisions      = 50
)

var namedPresets = map[string]bool{
	PresetTikTok: true,
	PresetReels:  true,
	PresetShorts: true,
}

// IsNamedPreset reports whether preset is one of the fixed 9:16 presets.
func IsNamedPreset(preset string) bool {
	return namedPresets[preset]
}

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// State is the whole timeline document of one project.
type State struct {
	Version      int             `json:"version"`
	FPS          float64         `json:"fps"`
	Resolution   Resolution      `json:"resolution"`
	ExportPreset string          `json:"exportPreset"`
	Tracks       []Track         `json:"tracks"`
	Revisions    []RevisionEntry `json:"revisions"`
}

type Track struct {
	ID     string    `json:"id"`
	Kind   TrackKind `json:"kind"`
	Name   string    `json:"name"`
	Order  int       `json:"order"`
	Muted  bool      `json:"muted"`
	Volume float64   `json:"volume"`
	Clips  []Clip    `json:"clips"`
}

type Clip struct {
	ID            string   `json:"id"`
	AssetID       string   `json:"assetId,omitempty"`
	SlotKey       string   `json:"slotKey,omitempty"`
	Label         string   `json:"label,omitempty"`
	TimelineInMs  int64    `json:"timelineInMs"`
	TimelineOutMs int64    `json:"timelineOutMs"`
	SourceInMs    int64    `json:"sourceInMs"`
	SourceOutMs   int64    `json:"sourceOutMs"`
	Effects       []Effect `json:"effects"`
}

// DurationMs is the length of the clip on the timeline.
func (c Clip) DurationMs() int64 {
	return c.TimelineOutMs - c.TimelineInMs
}

type Effect struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Config    map[string]any `json:"config"`
	Keyframes []Keyframe     `json:"keyframes"`
}

type Keyframe struct {
	ID       string `json:"id"`
	Property string `json:"property"`
	TimeMs   int64  `json:"timeMs"`
	Value    Value  `json:"value"`
	Easing   string `json:"easing,omitempty"`
}

// RevisionEntry records one committed batch. UndoOf is set when the
// revision restored the snapshot captured before revision UndoOf.
type RevisionEntry struct {
	ID           string        `json:"id"`
	Revision     int           `json:"revision"`
	CreatedAt    time.Time     `json:"createdAt"`
	TimelineHash string        `json:"timelineHash"`
	Operations   OperationList `json:"operations"`
	UndoOf       int           `json:"undoOf,omitempty"`
}

// Value is a keyframe sample: a string, a number or a bool.
type Value struct {
	kind valueKind
	s    string
	n    float64
	b    bool
}

type valueKind uint8

const (
	valueNumber valueKind = iota
	valueString
	valueBool
)

func NumberValue(n float64) Value { return Value{kind: valueNumber, n: n} }
func StringValue(s string) Value  { return Value{kind: valueString, s: s} }
func BoolValue(b bool) Value      { return Value{kind: valueBool, b: b} }

// Interface returns the underlying Go value (float64, string or bool).
func (v Value) Interface() any {
	switch v.kind {
	case valueString:
		return v.s
	case valueBool:
		return v.b
	default:
		return v.n
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case float64:
		*v = NumberValue(x)
	case string:
		*v = StringValue(x)
	case bool:
		*v = BoolValue(x)
	default:
		return fmt.Errorf("keyframe value must be a string, number or bool, got %s", string(data))
	}
	return nil
}

// Head returns the most recent revision entry, or nil for an empty log.
func (s *State) Head() *RevisionEntry {
	if len(s.Revisions) == 0 {
		return nil
	}
	return &s.Revisions[0]
}

// TrackByID returns a pointer into s.Tracks, or nil.
func (s *State) TrackByID(id string) *Track {
	for i := range s.Tracks {
		if s.Tracks[i].ID == id {
			return &s.Tracks[i]
		}
	}
	return nil
}

// FindClip locates a clip anywhere in the document.
func (s *State) FindClip(id string) (*Track, int) {
	for i := range s.Tracks {
		for j := range s.Tracks[i].Clips {
			if s.Tracks[i].Clips[j].ID == id {
				return &s.Tracks[i], j
			}
		}
	}
	return nil, -1
}

// TracksOfKind returns the tracks of the given kind in order.
func (s *State) TracksOfKind(kind TrackKind) []*Track {
	var out []*Track
	for i := range s.Tracks {
		if s.Tracks[i].Kind == kind {
			out = append(out, &s.Tracks[i])
		}
	}
	return out
}

// Clone returns a deep copy that shares no mutable memory with s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Tracks = make([]Track, len(s.Tracks))
	for i, t := range s.Tracks {
		out.Tracks[i] = t.clone()
	}
	out.Revisions = make([]RevisionEntry, len(s.Revisions))
	for i, r := range s.Revisions {
		r.Operations = append(OperationList{}, r.Operations...)
		out.Revisions[i] = r
	}
	return &out
}

func (t Track) clone() Track {
	out := t
	out.Clips = make([]Clip, len(t.Clips))
	for i, c := range t.Clips {
		out.Clips[i] = c.clone()
	}
	return out
}

func (c Clip) clone() Clip {
	out := c
	out.Effects = make([]Effect, len(c.Effects))
	for i, e := range c.Effects {
		out.Effects[i] = e.clone()
	}
	return out
}

func (e Effect) clone() Effect {
	out := e
	out.Config = cloneConfig(e.Config)
	out.Keyframes = append([]Keyframe{}, e.Keyframes...)
	return out
}

func cloneConfig(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneConfig(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneAny(x[i])
		}
		return out
	default:
		return v
	}
}
