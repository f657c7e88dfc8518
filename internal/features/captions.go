package features

import (
	"fmt"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

const CaptionTrackID = "track_captions"

type CaptionSegment struct {
	StartMs int64  `json:"start_ms" validate:"gte=0"`
	EndMs   int64  `json:"end_ms" validate:"gtfield=StartMs"`
	Text    string `json:"text" validate:"required,max=500"`
}

type CaptionStyle struct {
	FontFamily string  `json:"font_family,omitempty" validate:"omitempty,max=64"`
	FontSize   float64 `json:"font_size,omitempty" validate:"omitempty,gt=0,lte=200"`
	Color      string  `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Background string  `json:"background,omitempty" validate:"omitempty,hexcolor"`
	Position   string  `json:"position,omitempty" validate:"omitempty,oneof=top center bottom"`
	Language   string  `json:"language,omitempty" validate:"omitempty,max=16"`
}

type CaptionRequest struct {
	Segments []CaptionSegment `json:"segments" validate:"required,min=1,max=500,dive"`
	Style    CaptionStyle     `json:"style"`
}

// CaptionOps replaces the captions of s with one clip per segment. The first
// CAPTION track is reused and emptied; if there is none it is created.
func CaptionOps(s *timeline.State, req CaptionRequest) ([]timeline.Operation, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}

	var ops []timeline.Operation
	trackID := CaptionTrackID
	if tracks := s.TracksOfKind(timeline.TrackKindCaption); len(tracks) > 0 {
		trackID = tracks[0].ID
		for _, c := range tracks[0].Clips {
			ops = append(ops, timeline.RemoveClip{ClipID: c.ID})
		}
	} else {
		if s.TrackByID(CaptionTrackID) != nil {
			return nil, fmt.Errorf("%w: track %s exists and is not a caption track", ErrInvalidInput, CaptionTrackID)
		}
		ops = append(ops, timeline.CreateTrack{TrackID: trackID, Kind: timeline.TrackKindCaption, Name: "Captions"})
	}

	version := s.Version + 1
	for i, seg := range req.Segments {
		clipID := fmt.Sprintf("cap_%d_%03d", version, i)
		ops = append(ops,
			timeline.AddClip{
				TrackID:      trackID,
				ClipID:       clipID,
				Label:        seg.Text,
				TimelineInMs: seg.StartMs,
				DurationMs:   seg.EndMs - seg.StartMs,
			},
			timeline.UpsertEffect{
				ClipID:     clipID,
				EffectType: timeline.EffectCaptionStyle,
				Config: timeline.CaptionStyleConfig{
					Text:       seg.Text,
					FontFamily: req.Style.FontFamily,
					FontSize:   req.Style.FontSize,
					Color:      req.Style.Color,
					Background: req.Style.Background,
					Position:   req.Style.Position,
					Language:   req.Style.Language,
				}.ToConfig(),
			},
		)
	}
	return ops, nil
}
