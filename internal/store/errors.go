package store

import (
	"errors"
	"fmt"
)

// ErrSchema is the sentinel matched by every [SchemaError].
var ErrSchema = errors.New("store: schema violation")

// SchemaError reports an access to a path that is not declared as a leaf, or a
// delta the leaf's updater cannot integrate.
type SchemaError struct {
	Path   Path
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("store: %s: %s", e.Path, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

func schemaErr(p Path, format string, args ...any) error {
	return &SchemaError{Path: p.Clone(), Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports two declarations of one leaf with different updaters.
type ConflictError struct {
	Path     Path
	Existing string
	Incoming string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("store: %s: updater %q conflicts with declared %q", e.Path, e.Incoming, e.Existing)
}
