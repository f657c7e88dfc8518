package timeline

// SeedAsset is an uploaded media file used to lay out a fresh document.
type SeedAsset struct {
	ID         string
	Kind       TrackKind
	Label      string
	DurationMs int64
}

const (
	seedStaggerMs         = 500
	defaultSeedDurationMs = 3000

	SeedVideoTrackID = "track_video_main"
	SeedAudioTrackID = "track_audio_main"
)

// NewState builds the starting document for a project: one video track with
// the video assets staggered by index*500ms, one audio track with the audio
// assets laid end to end from 0, and revision 1 already recorded.
func NewState(assets []SeedAsset, opts ...Option) (*State, error) {
	cfg := newApplyConfig(opts)

	video := Track{ID: SeedVideoTrackID, Kind: TrackKindVideo, Name: "Video", Order: 0, Volume: 1, Clips: []Clip{}}
	audio := Track{ID: SeedAudioTrackID, Kind: TrackKindAudio, Name: "Audio", Order: 1, Volume: 1, Clips: []Clip{}}

	gen := &idGen{version: 1}
	var audioCursor int64
	for _, a := range assets {
		duration := a.DurationMs
		if duration <= 0 {
			duration = defaultSeedDurationMs
		}
		duration = max(duration, MinClipDurationMs)

		switch a.Kind {
		case TrackKindVideo:
			in := int64(len(video.Clips)) * seedStaggerMs
			video.Clips = append(video.Clips, seedClip(gen.next("clip", a.ID), a, in, duration))
		case TrackKindAudio:
			audio.Clips = append(audio.Clips, seedClip(gen.next("clip", a.ID), a, audioCursor, duration))
			audioCursor += duration
		}
	}
	sortClips(&video)

	s := &State{
		Version:      1,
		FPS:          DefaultFPS,
		Resolution:   Resolution{Width: DefaultWidth, Height: DefaultHeight},
		ExportPreset: DefaultPreset,
		Tracks:       []Track{video, audio},
		Revisions:    []RevisionEntry{},
	}

	hash, err := Hash(s)
	if err != nil {
		return nil, err
	}
	recordRevision(s, RevisionEntry{
		ID:           gen.next("rev"),
		Revision:     1,
		CreatedAt:    cfg.now(),
		TimelineHash: hash,
		Operations:   OperationList{},
	})
	return s, nil
}

func seedClip(id string, a SeedAsset, in, duration int64) Clip {
	return Clip{
		ID:            id,
		AssetID:       a.ID,
		Label:         truncateLabel(a.Label),
		TimelineInMs:  in,
		TimelineOutMs: in + duration,
		SourceInMs:    0,
		SourceOutMs:   duration,
		Effects:       []Effect{},
	}
}
