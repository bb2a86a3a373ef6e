package lifecycle

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// PersistenceError reports a failed snapshot write or read. It is fatal to the
// restart transition that produced it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func transitionError(from State, op string) error {
	return fmt.Errorf("%w: %s not allowed in state %s", ErrInvalidTransition, op, from)
}
