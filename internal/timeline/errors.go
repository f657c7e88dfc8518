package timeline

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrDuplicateID           = errors.New("duplicate id")
	ErrMergeWithoutSuccessor = errors.New("clip has no successor to merge with")
	ErrInvalidOperation      = errors.New("invalid operation")
	ErrStaleUndo             = errors.New("undo token is stale")
)

// OpError reports which operation of a batch failed.
type OpError struct {
	Index int
	Op    string
	Err   error
}

func (e *OpError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("operation %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("operation %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func notFound(what, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, what, id)
}

func duplicate(what, id string) error {
	return fmt.Errorf("%w: %s %q already exists", ErrDuplicateID, what, id)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}
