package job

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, per spec.md §7. NotFound is deliberately absent
// here: every operation that can encounter a missing job signals it via
// a plain (zero, false) return rather than an error — see Data,
// Priority, and Depends.
var (
	ErrArgumentMissing = errors.New("job: argument missing")
	ErrArgumentType    = errors.New("job: argument type")
	ErrOwnershipLost   = errors.New("job: ownership lost")
	ErrStateViolation  = errors.New("job: state violation")
)

// ArgError reports a missing or malformed caller argument. Callers can
// errors.As for the field name, or errors.Is against ErrArgumentMissing
// / ErrArgumentType for the category.
type ArgError struct {
	Field string
	Kind  error
	Msg   string
}

func (e *ArgError) Error() string { return fmt.Sprintf("job: %s: %s", e.Field, e.Msg) }
func (e *ArgError) Unwrap() error { return e.Kind }

func missingArg(field string) error {
	return &ArgError{Field: field, Kind: ErrArgumentMissing, Msg: "required"}
}

func badArg(field, msg string) error {
	return &ArgError{Field: field, Kind: ErrArgumentType, Msg: msg}
}

// OwnershipError reports that a caller no longer (or never did) hold a
// job's lock.
type OwnershipError struct {
	JID    string
	Worker string
	Actual string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("job: %s: held by %q, not %q", e.JID, e.Actual, e.Worker)
}
func (e *OwnershipError) Unwrap() error { return ErrOwnershipLost }

// StateError reports that an operation required a job to be in one
// state but found it in another.
type StateError struct {
	JID  string
	Want State
	Got  State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("job: %s: requires state %q, has %q", e.JID, e.Want, e.Got)
}
func (e *StateError) Unwrap() error { return ErrStateViolation }
