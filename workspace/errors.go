package workspace

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidType   = errors.New("invalid field type")
	ErrDuplicateName = errors.New("duplicate name")
)

// HostError wraps a failure reported by the host workspace that is not one of
// the sentinel conditions.
type HostError struct {
	Op  string
	Err error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("host error in %s: %s", e.Op, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}
