package timeline

import (
	"encoding/json"
	"fmt"
)

// Encode serializes s into the opaque document stored per project.
func Encode(s *State) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode timeline: %w", err)
	}
	return data, nil
}

// Decode parses a stored document. Missing lists come back empty, not nil.
func Decode(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	return s.Clone(), nil
}
