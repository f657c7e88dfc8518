// Package export turns timeline documents into artifacts consumed outside
// the editor: a timestamped render plan and CMX3600 edit decision lists.
package export

type EDLRequest struct {
	Title     string `json:"title"`
	OutputDir string `json:"output_dir,omitempty"`
}

// ResolvedClip is one EDL event. Record times are timeline positions.
type ResolvedClip struct {
	ClipName    string
	MediaPath   string
	SourceInMs  int64
	SourceOutMs int64
	RecordInMs  int64
	RecordOutMs int64
}

type EDLResponse struct {
	Title      string `json:"title"`
	Revision   int    `json:"revision"`
	EventCount int    `json:"event_count"`
	OutputPath string `json:"output_path,omitempty"`
	EDL        string `json:"edl"`
}

type RenderSegment struct {
	TrackID     string         `json:"track_id"`
	TrackKind   string         `json:"track_kind"`
	ClipID      string         `json:"clip_id"`
	AssetID     string         `json:"asset_id,omitempty"`
	Label       string         `json:"label,omitempty"`
	StartMs     int64          `json:"start_ms"`
	EndMs       int64          `json:"end_ms"`
	SourceInMs  int64          `json:"source_in_ms"`
	SourceOutMs int64          `json:"source_out_ms"`
	Volume      float64        `json:"volume,omitempty"`
	Effects     []RenderEffect `json:"effects"`
}

type RenderEffect struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

type RenderPlan struct {
	Revision     int             `json:"revision"`
	TimelineHash string          `json:"timeline_hash,omitempty"`
	FPS          float64         `json:"fps"`
	Width        int             `json:"width"`
	Height       int             `json:"height"`
	ExportPreset string          `json:"export_preset"`
	DurationMs   int64           `json:"duration_ms"`
	Segments     []RenderSegment `json:"segments"`
}
