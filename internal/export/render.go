package export

import (
	"sort"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

// BuildRenderPlan flattens s into segments ordered by start time, then track
// order. Muted audio tracks are skipped. DurationMs is the latest clip end
// across all tracks, muted or not.
func BuildRenderPlan(s *timeline.State, timelineHash string) RenderPlan {
	plan := RenderPlan{
		Revision:     s.Version,
		TimelineHash: timelineHash,
		FPS:          s.FPS,
		Width:        s.Resolution.Width,
		Height:       s.Resolution.Height,
		ExportPreset: s.ExportPreset,
		Segments:     []RenderSegment{},
	}

	type ordered struct {
		seg   RenderSegment
		order int
	}
	var all []ordered
	for _, t := range s.Tracks {
		for _, c := range t.Clips {
			if c.TimelineOutMs > plan.DurationMs {
				plan.DurationMs = c.TimelineOutMs
			}
		}
		if t.Kind == timeline.TrackKindAudio && t.Muted {
			continue
		}
		for _, c := range t.Clips {
			seg := RenderSegment{
				TrackID:     t.ID,
				TrackKind:   string(t.Kind),
				ClipID:      c.ID,
				AssetID:     c.AssetID,
				Label:       c.Label,
				StartMs:     c.TimelineInMs,
				EndMs:       c.TimelineOutMs,
				SourceInMs:  c.SourceInMs,
				SourceOutMs: c.SourceOutMs,
				Effects:     make([]RenderEffect, 0, len(c.Effects)),
			}
			if t.Kind == timeline.TrackKindAudio {
				seg.Volume = t.Volume
			}
			for _, e := range c.Effects {
				seg.Effects = append(seg.Effects, RenderEffect{Type: e.Type, Config: e.Config})
			}
			all = append(all, ordered{seg: seg, order: t.Order})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].seg.StartMs != all[j].seg.StartMs {
			return all[i].seg.StartMs < all[j].seg.StartMs
		}
		return all[i].order < all[j].order
	})
	for _, o := range all {
		plan.Segments = append(plan.Segments, o.seg)
	}
	return plan
}
