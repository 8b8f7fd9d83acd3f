package process

import (
	"errors"
	"fmt"
)

// ErrComputation is matched by every [ComputationError].
var ErrComputation = errors.New("process: computation failed")

// ComputationError reports a failed Update, with the process id and the
// synchronization time at which it failed.
type ComputationError struct {
	Process string
	Time    float64
	Err     error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("process %q failed at t=%g: %v", e.Process, e.Time, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

func (e *ComputationError) Is(target error) bool { return target == ErrComputation }
