package timeline

import (
	"math"
	"sort"
	"time"
)

// ApplyResult is the outcome of a successful batch.
type ApplyResult struct {
	State        *State
	TimelineHash string
	Revision     int
}

type applyConfig struct {
	now func() time.Time
}

// Option configures Apply and Preview.
type Option func(*applyConfig)

// WithClock overrides the clock used to stamp revision entries.
func WithClock(now func() time.Time) Option {
	return func(c *applyConfig) {
		c.now = now
	}
}

func newApplyConfig(opts []Option) applyConfig {
	cfg := applyConfig{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Apply runs ops in order against s, mutating it in place, then bumps the
// version once and records a revision entry. On error s is left partially
// modified; callers must pass a throwaway copy (Preview does this).
func Apply(s *State, ops []Operation, opts ...Option) (*ApplyResult, error) {
	cfg := newApplyConfig(opts)
	nextVersion := s.Version + 1

	for i, op := range ops {
		gen := &idGen{version: nextVersion, opIndex: i}
		if err := applyOne(s, deref(op), gen); err != nil {
			return nil, &OpError{Index: i, Op: opTag(op), Err: err}
		}
	}

	s.Version = nextVersion
	hash, err := Hash(s)
	if err != nil {
		return nil, err
	}

	gen := &idGen{version: nextVersion, opIndex: len(ops)}
	recordRevision(s, RevisionEntry{
		ID:           gen.next("rev"),
		Revision:     s.Version,
		CreatedAt:    cfg.now(),
		TimelineHash: hash,
		Operations:   append(OperationList{}, ops...),
	})

	return &ApplyResult{State: s, TimelineHash: hash, Revision: s.Version}, nil
}

func recordRevision(s *State, entry RevisionEntry) {
	s.Revisions = append([]RevisionEntry{entry}, s.Revisions...)
	if len(s.Revisions) > MaxRevisions {
		s.Revisions = s.Revisions[:MaxRevisions]
	}
}

func opTag(op Operation) string {
	if op == nil {
		return ""
	}
	return op.Op()
}

func applyOne(s *State, op Operation, gen *idGen) error {
	switch o := op.(type) {
	case CreateTrack:
		return createTrack(s, o, gen)
	case AddClip:
		return addClip(s, o, gen)
	case SplitClip:
		return splitClip(s, o, gen)
	case TrimClip:
		return trimClip(s, o)
	case ReorderTrack:
		return reorderTrack(s, o)
	case MoveClip:
		return moveClip(s, o)
	case SetClipTiming:
		return setClipTiming(s, o)
	case RemoveClip:
		return removeClip(s, o)
	case MergeClipWithNext:
		return mergeClipWithNext(s, o, gen)
	case SetClipLabel:
		return setClipLabel(s, o)
	case SetTrackAudio:
		return setTrackAudio(s, o)
	case AddEffect:
		return addEffect(s, o, gen)
	case UpsertEffect:
		return upsertEffect(s, o.ClipID, o.EffectType, o.Config, gen)
	case SetTransition:
		cfg := TransitionConfig{TransitionType: o.TransitionType, DurationMs: max(o.DurationMs, MinTransitionMs)}
		return upsertEffect(s, o.ClipID, EffectTransition, cfg.ToConfig(), gen)
	case SetKeyframe:
		return setKeyframe(s, o, gen)
	case SetExportPreset:
		return setExportPreset(s, o)
	case nil:
		return invalid("nil operation")
	default:
		return invalid("unsupported operation %q", op.Op())
	}
}

func createTrack(s *State, op CreateTrack, gen *idGen) error {
	if !op.Kind.Valid() {
		return invalid("unknown track kind %q", op.Kind)
	}
	id := op.TrackID
	if id != "" {
		if s.TrackByID(id) != nil {
			return duplicate("track", id)
		}
	} else {
		id = gen.next("trk", string(op.Kind))
	}
	name := op.Name
	if name == "" {
		name = defaultTrackName(op.Kind)
	}
	s.Tracks = append(s.Tracks, Track{
		ID:     id,
		Kind:   op.Kind,
		Name:   name,
		Order:  len(s.Tracks),
		Volume: 1,
		Clips:  []Clip{},
	})
	return nil
}

func defaultTrackName(kind TrackKind) string {
	switch kind {
	case TrackKindAudio:
		return "Audio"
	case TrackKindCaption:
		return "Captions"
	default:
		return "Video"
	}
}

func addClip(s *State, op AddClip, gen *idGen) error {
	track := s.TrackByID(op.TrackID)
	if track == nil {
		return notFound("track", op.TrackID)
	}
	id := op.ClipID
	if id != "" {
		if t, _ := s.FindClip(id); t != nil {
			return duplicate("clip", id)
		}
	} else {
		id = gen.next("clip", op.TrackID)
	}

	duration := max(op.DurationMs, MinClipDurationMs)
	sourceOut := op.SourceInMs + duration
	if op.SourceOutMs != nil {
		sourceOut = *op.SourceOutMs
	}

	track.Clips = append(track.Clips, Clip{
		ID:            id,
		AssetID:       op.AssetID,
		SlotKey:       op.SlotKey,
		Label:         truncateLabel(op.Label),
		TimelineInMs:  op.TimelineInMs,
		TimelineOutMs: op.TimelineInMs + duration,
		SourceInMs:    op.SourceInMs,
		SourceOutMs:   sourceOut,
		Effects:       []Effect{},
	})
	sortClips(track)
	return nil
}

func splitClip(s *State, op SplitClip, gen *idGen) error {
	track, idx := s.FindClip(op.ClipID)
	if track == nil {
		return notFound("clip", op.ClipID)
	}
	first := &track.Clips[idx]
	if first.DurationMs() < 2*MinSplitMarginMs {
		return invalid("clip %q is too short to split", op.ClipID)
	}

	at := clamp(op.SplitMs, first.TimelineInMs+MinSplitMarginMs, first.TimelineOutMs-MinSplitMarginMs)
	delta := at - first.TimelineInMs

	second := first.clone()
	second.ID = gen.next("clip", first.ID)
	second.TimelineInMs = at
	second.SourceInMs = min(first.SourceInMs+delta, first.SourceOutMs)
	// Keyframe times are copied as-is; they are not rebased onto the new clip start.
	for i := range second.Effects {
		fx := &second.Effects[i]
		fx.ID = gen.next("fx", second.ID, fx.ID)
		for j := range fx.Keyframes {
			fx.Keyframes[j].ID = gen.next("kf", fx.ID, fx.Keyframes[j].ID)
		}
	}

	first.TimelineOutMs = at
	first.SourceOutMs = second.SourceInMs

	track.Clips = append(track.Clips, second)
	sortClips(track)
	return nil
}

func trimClip(s *State, op TrimClip) error {
	track, idx := s.FindClip(op.ClipID)
	if track == nil {
		return notFound("clip", op.ClipID)
	}
	c := &track.Clips[idx]

	start := clamp(op.TrimStartMs, 0, max(0, c.DurationMs()-MinClipDurationMs))
	c.TimelineInMs += start
	c.SourceInMs = min(c.SourceInMs+start, c.SourceOutMs)

	end := clamp(op.TrimEndMs, 0, max(0, c.DurationMs()-MinClipDurationMs))
	c.TimelineOutMs -= end
	c.SourceOutMs = max(c.SourceOutMs-end, c.SourceInMs)

	if c.DurationMs() < MinClipDurationMs {
		c.TimelineOutMs = c.TimelineInMs + MinClipDurationMs
	}
	sortClips(track)
	return nil
}

func reorderTrack(s *State, op ReorderTrack) error {
	sortTracks(s)
	idx := -1
	for i := range s.Tracks {
		if s.Tracks[i].ID == op.TrackID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return notFound("track", op.TrackID)
	}

	target := clamp(op.Order, 0, len(s.Tracks)-1)
	moved := s.Tracks[idx]
	rest := append(append([]Track{}, s.Tracks[:idx]...), s.Tracks[idx+1:]...)
	tracks := make([]Track, 0, len(s.Tracks))
	tracks = append(tracks, rest[:target]...)
	tracks = append(tracks, moved)
	tracks = append(tracks, rest[target:]...)

	for i := range tracks {
		tracks[i].Order = i
		sortClips(&tracks[i])
	}
	s.Tracks = tracks
	return nil
}

func moveClip(s *State, op MoveClip) error {
	track, idx := s.FindClip(op.ClipID)
	if track == nil {
		return notFound("clip", op.ClipID)
	}
	c := &track.Clips[idx]
	duration := max(c.DurationMs(), MinClipDurationMs)
	c.TimelineInMs = op.TimelineInMs
	c.TimelineOutMs = op.TimelineInMs + duration
	sortClips(track)
	return nil
}

func setClipTiming(s *State, op SetClipTiming) error {
	track, idx := s.FindClip(op.ClipID)
	if track == nil {
		return notFound("clip", op.ClipID)
	}
	c := &track.Clips[idx]
	duration := max(op.DurationMs, MinClipDurationMs)
	c.TimelineInMs = op.TimelineInMs
	c.TimelineOutMs = op.TimelineInMs + duration
	c.SourceOutMs = c.SourceInMs + duration
	sortClips(track)
	return nil
}

func removeClip(s *State, op RemoveClip) error {
	track, idx := s.FindClip(op.ClipID)
	if track == nil {
		return notFound("clip", op.ClipID)
	}
	track.Clips = append(track.Clips[:idx], track.Clips[idx+1:]...)
	return nil
}

func mergeClipWithNext(s *State, op MergeClipWithNext, gen *idGen) error {
	track, _ := s.FindClip(op.ClipID)
	if track == nil {
		return notFound("clip", op.ClipID)
	}
	sortClips(track)
	_, idx := s.FindClip(op.ClipID)
	if idx+1 >= len(track.Clips) {
		return ErrMergeWithoutSuccessor
	}

	c := &track.Clips[idx]
	next := track.Clips[idx+1].clone()
	c.TimelineOutMs = max(c.TimelineOutMs, next.TimelineOutMs)
	c.SourceOutMs = max(c.SourceOutMs, next.SourceOutMs)

	seen := make(map[string]bool, len(c.Effects))
	for _, fx := range c.Effects {
		seen[fx.ID] = true
	}
	for _, fx := range next.Effects {
		if seen[fx.ID] {
			fx.ID = gen.next("fx", c.ID, fx.ID)
		}
		seen[fx.ID] = true
		c.Effects = append(c.Effects, fx)
	}

	track.Clips = append(track.Clips[:idx+1], track.Clips[idx+2:]...)
	sortClips(track)
	return nil
}

func setClipLabel(s *State, op SetClipLabel) error {
	track, idx := s.FindClip(op.ClipID)
	if track == nil {
		return notFound("clip", op.ClipID)
	}
	track.Clips[idx].Label = truncateLabel(op.Label)
	return nil
}

func setTrackAudio(s *State, op SetTrackAudio) error {
	track := s.TrackByID(op.TrackID)
	if track == nil {
		return notFound("track", op.TrackID)
	}
	if op.Volume != nil {
		if math.IsNaN(*op.Volume) {
			return invalid("volume is not a number")
		}
		track.Volume = math.Min(math.Max(*op.Volume, 0), MaxVolume)
	}
	if op.Muted != nil {
		track.Muted = *op.Muted
	}
	return nil
}

func findClipPtr(s *State, id string) (*Clip, error) {
	track, idx := s.FindClip(id)
	if track == nil {
		return nil, notFound("clip", id)
	}
	return &track.Clips[idx], nil
}

func addEffect(s *State, op AddEffect, gen *idGen) error {
	c, err := findClipPtr(s, op.ClipID)
	if err != nil {
		return err
	}
	if op.EffectType == "" {
		return invalid("effectType is required")
	}
	id := op.EffectID
	if id != "" {
		for _, fx := range c.Effects {
			if fx.ID == id {
				return duplicate("effect", id)
			}
		}
	} else {
		id = gen.next("fx", c.ID, op.EffectType)
	}
	c.Effects = append(c.Effects, Effect{
		ID:        id,
		Type:      op.EffectType,
		Config:    cloneConfig(op.Config),
		Keyframes: []Keyframe{},
	})
	return nil
}

func upsertEffect(s *State, clipID, effectType string, config map[string]any, gen *idGen) error {
	c, err := findClipPtr(s, clipID)
	if err != nil {
		return err
	}
	if effectType == "" {
		return invalid("effectType is required")
	}
	for i := range c.Effects {
		if c.Effects[i].Type == effectType {
			c.Effects[i].Config = cloneConfig(config)
			return nil
		}
	}
	c.Effects = append(c.Effects, Effect{
		ID:        gen.next("fx", c.ID, effectType),
		Type:      effectType,
		Config:    cloneConfig(config),
		Keyframes: []Keyframe{},
	})
	return nil
}

func setKeyframe(s *State, op SetKeyframe, gen *idGen) error {
	c, err := findClipPtr(s, op.ClipID)
	if err != nil {
		return err
	}
	var fx *Effect
	for i := range c.Effects {
		if c.Effects[i].ID == op.EffectID {
			fx = &c.Effects[i]
			break
		}
	}
	if fx == nil {
		return notFound("effect", op.EffectID)
	}
	if op.Property == "" {
		return invalid("keyframe property is required")
	}

	id := op.KeyframeID
	if id != "" {
		for _, kf := range fx.Keyframes {
			if kf.ID == id {
				return duplicate("keyframe", id)
			}
		}
	} else {
		id = gen.next("kf", fx.ID, op.Property)
	}
	fx.Keyframes = append(fx.Keyframes, Keyframe{
		ID:       id,
		Property: op.Property,
		TimeMs:   op.TimeMs,
		Value:    op.Value,
		Easing:   op.Easing,
	})
	return nil
}

func setExportPreset(s *State, op SetExportPreset) error {
	switch {
	case IsNamedPreset(op.Preset):
		s.Resolution = Resolution{Width: DefaultWidth, Height: DefaultHeight}
	case op.Preset == PresetCustom:
		if op.Width != nil {
			s.Resolution.Width = max(*op.Width, MinResolution)
		}
		if op.Height != nil {
			s.Resolution.Height = max(*op.Height, MinResolution)
		}
	default:
		return invalid("unknown export preset %q", op.Preset)
	}
	s.ExportPreset = op.Preset
	return nil
}

func sortClips(t *Track) {
	sort.SliceStable(t.Clips, func(i, j int) bool {
		return t.Clips[i].TimelineInMs < t.Clips[j].TimelineInMs
	})
}

func sortTracks(s *State) {
	sort.SliceStable(s.Tracks, func(i, j int) bool {
		return s.Tracks[i].Order < s.Tracks[j].Order
	})
}

func truncateLabel(label string) string {
	runes := []rune(label)
	if len(runes) > MaxLabelLength {
		return string(runes[:MaxLabelLength])
	}
	return label
}

func clamp[T int | int64](v, lo, hi T) T {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
