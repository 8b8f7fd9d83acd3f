package engine

import "errors"

var (
	// ErrFailed is returned when advancing an engine whose run already failed.
	ErrFailed = errors.New("engine: run failed")

	// ErrTimeStep indicates a process with a non-positive or non-finite time step.
	ErrTimeStep = errors.New("engine: process time step must be positive")

	// ErrTotalTime is returned when asked to run to a NaN or infinite time.
	ErrTotalTime = errors.New("engine: total time must be finite")
)
