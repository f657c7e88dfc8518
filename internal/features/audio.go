package features

import (
	"errors"
	"fmt"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

const EnhancedAudioTrackID = "track_audio_enhanced"

var ErrNothingToEnhance = errors.New("timeline has no audio or video clips")

// audioPresets are the enhancement settings behind each named preset.
var audioPresets = map[string]timeline.AudioEnhanceConfig{
	"clean_voice": {Preset: "clean_voice", TargetLUFS: -16, Denoise: true, Dereverb: true},
	"podcast":     {Preset: "podcast", TargetLUFS: -16, Denoise: true},
	"music_bed":   {Preset: "music_bed", TargetLUFS: -20},
	"loud":        {Preset: "loud", TargetLUFS: -9},
}

type AudioEnhanceRequest struct {
	Preset     string   `json:"preset" validate:"required,oneof=clean_voice podcast music_bed loud"`
	Volume     *float64 `json:"volume,omitempty" validate:"omitempty,gte=0,lte=1.5"`
	TargetLUFS *float64 `json:"target_lufs,omitempty" validate:"omitempty,gte=-40,lte=0"`
	Denoise    *bool    `json:"denoise,omitempty"`
}

// AudioEnhanceOps unmutes every AUDIO track and tags each of its clips with
// an audio_enhance_v1 effect. When no audio track carries clips, clips
// mirroring the video clips are placed on the first audio track, or on a new
// track if the document has none.
func AudioEnhanceOps(s *timeline.State, req AudioEnhanceRequest) ([]timeline.Operation, error) {
	if err := checkStruct(req); err != nil {
		return nil, err
	}

	cfg := audioPresets[req.Preset]
	if req.TargetLUFS != nil {
		cfg.TargetLUFS = *req.TargetLUFS
	}
	if req.Denoise != nil {
		cfg.Denoise = *req.Denoise
	}
	volume := 1.0
	if req.Volume != nil {
		volume = *req.Volume
	}
	muted := false

	var ops []timeline.Operation
	enhance := func(clipID string) {
		ops = append(ops, timeline.UpsertEffect{
			ClipID:     clipID,
			EffectType: timeline.EffectAudioEnhance,
			Config:     cfg.ToConfig(),
		})
	}

	audioTracks := s.TracksOfKind(timeline.TrackKindAudio)
	clips := 0
	for _, t := range audioTracks {
		clips += len(t.Clips)
	}

	if clips == 0 {
		trackID := EnhancedAudioTrackID
		if len(audioTracks) > 0 {
			trackID = audioTracks[0].ID
		} else {
			if s.TrackByID(EnhancedAudioTrackID) != nil {
				return nil, fmt.Errorf("%w: track %s exists and is not an audio track", ErrInvalidInput, EnhancedAudioTrackID)
			}
			ops = append(ops, timeline.CreateTrack{TrackID: EnhancedAudioTrackID, Kind: timeline.TrackKindAudio, Name: "Enhanced audio"})
		}
		derived := deriveAudioClips(s, trackID)
		if len(derived) == 0 {
			return nil, ErrNothingToEnhance
		}
		ops = append(ops, timeline.SetTrackAudio{TrackID: trackID, Volume: &volume, Muted: &muted})
		for _, add := range derived {
			ops = append(ops, add)
			enhance(add.ClipID)
		}
		return ops, nil
	}

	for _, t := range audioTracks {
		ops = append(ops, timeline.SetTrackAudio{TrackID: t.ID, Volume: &volume, Muted: &muted})
		for _, c := range t.Clips {
			enhance(c.ID)
		}
	}
	return ops, nil
}

// deriveAudioClips mirrors every video clip onto trackID.
func deriveAudioClips(s *timeline.State, trackID string) []timeline.AddClip {
	var adds []timeline.AddClip
	version := s.Version + 1
	for _, t := range s.TracksOfKind(timeline.TrackKindVideo) {
		for _, c := range t.Clips {
			sourceOut := c.SourceOutMs
			adds = append(adds, timeline.AddClip{
				TrackID:      trackID,
				ClipID:       fmt.Sprintf("aud_%d_%03d", version, len(adds)),
				AssetID:      c.AssetID,
				Label:        c.Label,
				TimelineInMs: c.TimelineInMs,
				DurationMs:   c.DurationMs(),
				SourceInMs:   c.SourceInMs,
				SourceOutMs:  &sourceOut,
			})
		}
	}
	return adds
}
