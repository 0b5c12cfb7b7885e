package jobcore

import (
	"go.jetify.com/typeid"
)

// opIDPrefix tags every per-call correlation id, per the Logging
// section of SPEC_FULL.md — the one thing the engine's operations don't
// already have a stable identifier for is the call itself.
const opIDPrefix = "op"

// newOpID generates a fresh correlation id for one top-level Engine
// call, so a single operation's cascade of log lines (e.g. a complete
// call's dependent-release lines) can be tied together. Falls back to
// a fixed placeholder if id generation itself fails, since a logging
// aid must never be allowed to abort the operation it is meant to
// describe.
func newOpID() string {
	id, err := typeid.WithPrefix(opIDPrefix)
	if err != nil {
		return opIDPrefix + "_unavailable"
	}
	return id.String()
}
