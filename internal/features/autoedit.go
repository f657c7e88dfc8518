package features

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mayowa2133/hookforge/internal/timeline"
)

const (
	ActionRemove     = "remove"
	ActionLabel      = "label"
	ActionTransition = "transition"
	ActionMuteTrack  = "mute_track"
)

// Rule applies Action to every clip for which When evaluates to true.
// When is an expr-lang expression over ClipEnv, for example
// `duration_ms < 500 && track_kind == "VIDEO"`.
type Rule struct {
	Name           string `json:"name,omitempty" yaml:"name" validate:"max=64"`
	When           string `json:"when" yaml:"when" validate:"required,max=512,rule_expr"`
	Action         string `json:"action" yaml:"action" validate:"required,oneof=remove label transition mute_track"`
	Label          string `json:"label,omitempty" yaml:"label" validate:"required_if=Action label,max=160"`
	TransitionType string `json:"transition_type,omitempty" yaml:"transition_type" validate:"required_if=Action transition,max=64"`
	DurationMs     int64  `json:"duration_ms,omitempty" yaml:"duration_ms" validate:"gte=0,lte=10000"`
}

type AutoEditRequest struct {
	Rules []Rule `json:"rules" validate:"required,min=1,max=50,dive"`
}

// ClipEnv is what a rule expression sees for one clip.
type ClipEnv struct {
	ID            string   `expr:"id"`
	TrackID       string   `expr:"track_id"`
	TrackKind     string   `expr:"track_kind"`
	TrackMuted    bool     `expr:"track_muted"`
	Index         int      `expr:"index"`
	ClipCount     int      `expr:"clip_count"`
	IsFirst       bool     `expr:"is_first"`
	IsLast        bool     `expr:"is_last"`
	AssetID       string   `expr:"asset_id"`
	SlotKey       string   `expr:"slot_key"`
	Label         string   `expr:"label"`
	StartMs       int64    `expr:"start_ms"`
	EndMs         int64    `expr:"end_ms"`
	DurationMs    int64    `expr:"duration_ms"`
	SourceInMs    int64    `expr:"source_in_ms"`
	SourceOutMs   int64    `expr:"source_out_ms"`
	GapBeforeMs   int64    `expr:"gap_before_ms"`
	Effects       []string `expr:"effects"`
	HasTransition bool     `expr:"has_transition"`
	TimelineMs    int64    `expr:"timeline_ms"`
}

func compileRule(src string) (*vm.Program, error) {
	return expr.Compile(src, expr.Env(ClipEnv{}), expr.AsBool())
}

// RuleMatch records which rule fired for which clip.
type RuleMatch struct {
	Rule   string `json:"rule"`
	ClipID string `json:"clip_id"`
	Action string `json:"action"`
}

type AutoEditPlan struct {
	Operations []timeline.Operation `json:"-"`
	Matches    []RuleMatch          `json:"matches"`
}

type compiledRule struct {
	Rule
	program *vm.Program
}

// Planner evaluates a fixed rule set against timelines.
type Planner struct {
	rules []compiledRule
}

func NewPlanner(rules []Rule) (*Planner, error) {
	if err := checkStruct(AutoEditRequest{Rules: rules}); err != nil {
		return nil, err
	}
	p := &Planner{}
	for i, r := range rules {
		program, err := compileRule(r.When)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", ErrInvalidInput, i, err)
		}
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule_%d", i)
		}
		p.rules = append(p.rules, compiledRule{Rule: r, program: program})
	}
	return p, nil
}

// Plan evaluates the rules in order against each clip; the first rule that
// matches a clip wins. Tracks are muted at most once.
func (p *Planner) Plan(s *timeline.State) (*AutoEditPlan, error) {
	plan := &AutoEditPlan{Matches: []RuleMatch{}}
	muted := map[string]bool{}
	timelineMs := timelineEnd(s)

	for ti := range s.Tracks {
		track := &s.Tracks[ti]
		var prevOut int64
		for ci, c := range track.Clips {
			env := clipEnv(track, ci, prevOut, timelineMs)
			prevOut = max(prevOut, c.TimelineOutMs)

			for _, r := range p.rules {
				out, err := expr.Run(r.program, env)
				if err != nil {
					return nil, fmt.Errorf("evaluate rule %s on clip %s: %w", r.Name, c.ID, err)
				}
				if matched, _ := out.(bool); !matched {
					continue
				}
				if r.Action == ActionMuteTrack && muted[track.ID] {
					break
				}
				plan.Operations = append(plan.Operations, r.operation(track.ID, c.ID))
				plan.Matches = append(plan.Matches, RuleMatch{Rule: r.Name, ClipID: c.ID, Action: r.Action})
				if r.Action == ActionMuteTrack {
					muted[track.ID] = true
				}
				break
			}
		}
	}
	return plan, nil
}

func (r compiledRule) operation(trackID, clipID string) timeline.Operation {
	switch r.Action {
	case ActionRemove:
		return timeline.RemoveClip{ClipID: clipID}
	case ActionLabel:
		return timeline.SetClipLabel{ClipID: clipID, Label: r.Label}
	case ActionTransition:
		return timeline.SetTransition{ClipID: clipID, TransitionType: r.TransitionType, DurationMs: r.DurationMs}
	default:
		muted := true
		return timeline.SetTrackAudio{TrackID: trackID, Muted: &muted}
	}
}

// AutoEditOps compiles req's rules and plans them against s.
func AutoEditOps(s *timeline.State, req AutoEditRequest) (*AutoEditPlan, error) {
	p, err := NewPlanner(req.Rules)
	if err != nil {
		return nil, err
	}
	return p.Plan(s)
}

func clipEnv(t *timeline.Track, i int, prevOut, timelineMs int64) ClipEnv {
	c := &t.Clips[i]
	effects := make([]string, 0, len(c.Effects))
	for _, e := range c.Effects {
		effects = append(effects, e.Type)
	}
	_, hasTransition := c.Transition()
	gap := int64(0)
	if i > 0 {
		gap = max(c.TimelineInMs-prevOut, 0)
	}
	return ClipEnv{
		ID:            c.ID,
		TrackID:       t.ID,
		TrackKind:     string(t.Kind),
		TrackMuted:    t.Muted,
		Index:         i,
		ClipCount:     len(t.Clips),
		IsFirst:       i == 0,
		IsLast:        i == len(t.Clips)-1,
		AssetID:       c.AssetID,
		SlotKey:       c.SlotKey,
		Label:         c.Label,
		StartMs:       c.TimelineInMs,
		EndMs:         c.TimelineOutMs,
		DurationMs:    c.DurationMs(),
		SourceInMs:    c.SourceInMs,
		SourceOutMs:   c.SourceOutMs,
		GapBeforeMs:   gap,
		Effects:       effects,
		HasTransition: hasTransition,
		TimelineMs:    timelineMs,
	}
}

func timelineEnd(s *timeline.State) int64 {
	var end int64
	for _, t := range s.Tracks {
		for _, c := range t.Clips {
			end = max(end, c.TimelineOutMs)
		}
	}
	return end
}
