package jobcore

import (
	"errors"

	"github.com/qedge/jobcore/job"
)

// ErrNoStore is returned by New when no WithStore option was supplied.
var ErrNoStore = errors.New("jobcore: no store configured")

func missingStore() error { return ErrNoStore }

// Typed error kinds, per spec.md §7. These are aliases onto the job
// package's definitions — job raises them, jobcore only re-exports them
// so callers of Engine's methods never need to import job directly.
var (
	ErrArgumentMissing = job.ErrArgumentMissing
	ErrArgumentType    = job.ErrArgumentType
	ErrOwnershipLost   = job.ErrOwnershipLost
	ErrStateViolation  = job.ErrStateViolation
)

// ArgError, OwnershipError, and StateError carry the structured detail
// behind the sentinels above; errors.As unwraps to these from any
// Engine method's returned error.
type (
	ArgError       = job.ArgError
	OwnershipError = job.OwnershipError
	StateError     = job.StateError
)
