package timeline

// Result is the uniform outcome of Preview. When Valid is false NextState is
// nil and Issues explains why; the input state is never touched either way.
type Result struct {
	Valid        bool    `json:"valid"`
	NextState    *State  `json:"nextState"`
	TimelineHash string  `json:"timelineHash,omitempty"`
	Revision     int     `json:"revision,omitempty"`
	Issues       []Issue `json:"issues,omitempty"`
}

// Preview is the single gate every batch passes through, for read-only
// previews and for commits alike: clone, execute, validate.
func Preview(s *State, ops []Operation, opts ...Option) Result {
	working := s.Clone()
	if working == nil {
		return failed([]Issue{{Code: IssueApplyFailed, Message: "timeline state is nil"}})
	}

	applied, err := Apply(working, ops, opts...)
	if err != nil {
		return failed([]Issue{{Code: IssueApplyFailed, Message: err.Error()}})
	}

	if issues := Validate(applied.State); len(issues) > 0 {
		return failed(issues)
	}

	return Result{
		Valid:        true,
		NextState:    applied.State,
		TimelineHash: applied.TimelineHash,
		Revision:     applied.Revision,
	}
}

func failed(issues []Issue) Result {
	return Result{Valid: false, Issues: issues}
}
