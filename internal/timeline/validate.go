package timeline

import "fmt"

// Issue codes returned by Validate and Preview.
const (
	IssueApplyFailed        = "APPLY_FAILED"
	IssueInvalidVersion     = "INVALID_VERSION"
	IssueInvalidFPS         = "INVALID_FPS"
	IssueInvalidResolution  = "INVALID_RESOLUTION"
	IssueInvalidTrackKind   = "INVALID_TRACK_KIND"
	IssueDuplicateTrackID   = "DUPLICATE_TRACK_ID"
	IssueInvalidTrackOrder  = "INVALID_TRACK_ORDER"
	IssueInvalidTrackVolume = "INVALID_TRACK_VOLUME"
	IssueDuplicateClipID    = "DUPLICATE_CLIP_ID"
	IssueNegativeClipBound  = "NEGATIVE_CLIP_BOUND"
	IssueInvalidClipRange   = "INVALID_CLIP_RANGE"
	IssueInvalidSourceRange = "INVALID_SOURCE_RANGE"
	IssueDuplicateEffectID  = "DUPLICATE_EFFECT_ID"
	IssueInvalidKeyframe    = "INVALID_KEYFRAME_TIME"
)

type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TrackID string `json:"trackId,omitempty"`
	ClipID  string `json:"clipId,omitempty"`
}

// Validate re-checks the structural invariants of s. It never mutates s and
// returns nil when the document is sound.
func Validate(s *State) []Issue {
	var issues []Issue
	add := func(code, trackID, clipID, format string, args ...any) {
		issues = append(issues, Issue{
			Code:    code,
			Message: fmt.Sprintf(format, args...),
			TrackID: trackID,
			ClipID:  clipID,
		})
	}

	if s.Version < 1 {
		add(IssueInvalidVersion, "", "", "version must be >= 1, got %d", s.Version)
	}
	if !(s.FPS > 0) {
		add(IssueInvalidFPS, "", "", "fps must be > 0, got %v", s.FPS)
	}
	if s.Resolution.Width < MinResolution || s.Resolution.Height < MinResolution {
		add(IssueInvalidResolution, "", "", "resolution must be at least %dx%d, got %dx%d",
			MinResolution, MinResolution, s.Resolution.Width, s.Resolution.Height)
	}

	trackIDs := make(map[string]bool, len(s.Tracks))
	clipIDs := make(map[string]bool)
	for _, t := range s.Tracks {
		if trackIDs[t.ID] {
			add(IssueDuplicateTrackID, t.ID, "", "track id %q is not unique", t.ID)
		}
		trackIDs[t.ID] = true

		if !t.Kind.Valid() {
			add(IssueInvalidTrackKind, t.ID, "", "track kind %q is not VIDEO, AUDIO or CAPTION", t.Kind)
		}
		if t.Order < 0 {
			add(IssueInvalidTrackOrder, t.ID, "", "track order must be >= 0, got %d", t.Order)
		}
		if !(t.Volume >= 0 && t.Volume <= MaxVolume) {
			add(IssueInvalidTrackVolume, t.ID, "", "track volume must be within [0, %v], got %v", MaxVolume, t.Volume)
		}

		for _, c := range t.Clips {
			if clipIDs[c.ID] {
				add(IssueDuplicateClipID, t.ID, c.ID, "clip id %q is not unique", c.ID)
			}
			clipIDs[c.ID] = true

			if c.TimelineInMs < 0 || c.TimelineOutMs < 0 || c.SourceInMs < 0 || c.SourceOutMs < 0 {
				add(IssueNegativeClipBound, t.ID, c.ID, "clip %q has a negative bound", c.ID)
			}
			if c.TimelineOutMs <= c.TimelineInMs {
				add(IssueInvalidClipRange, t.ID, c.ID, "clip %q timeline out %d must be after in %d",
					c.ID, c.TimelineOutMs, c.TimelineInMs)
			}
			if c.SourceOutMs < c.SourceInMs {
				add(IssueInvalidSourceRange, t.ID, c.ID, "clip %q source out %d is before in %d",
					c.ID, c.SourceOutMs, c.SourceInMs)
			}

			effectIDs := make(map[string]bool, len(c.Effects))
			for _, fx := range c.Effects {
				if effectIDs[fx.ID] {
					add(IssueDuplicateEffectID, t.ID, c.ID, "effect id %q repeats on clip %q", fx.ID, c.ID)
				}
				effectIDs[fx.ID] = true
				for _, kf := range fx.Keyframes {
					if kf.TimeMs < 0 {
						add(IssueInvalidKeyframe, t.ID, c.ID, "keyframe %q on effect %q has negative time %d",
							kf.ID, fx.ID, kf.TimeMs)
					}
				}
			}
		}
	}

	return issues
}
