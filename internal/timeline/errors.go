package timeline

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected marks an edit that was refused without changing state.
	ErrRejected = errors.New("edit rejected")
	ErrNotFound = errors.New("not found")
)

// RejectedError describes why an edit was refused. It matches ErrRejected
// with errors.Is.
type RejectedError struct {
	Op     string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Is makes errors.Is match ErrRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

func reject(op, format string, args ...any) error {
	return &RejectedError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
