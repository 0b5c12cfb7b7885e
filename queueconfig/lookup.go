// Package queueconfig implements the read-through configuration lookup
// of spec.md §4.1: a per-queue override falling back to a global value,
// falling back to a compiled-in default. Values live in the store
// itself (the "config" hash), not in process configuration, because the
// lookup is part of the same atomic transaction as the job operation
// consulting it.
package queueconfig

import (
	"context"
	"fmt"
	"strconv"

	"github.com/qedge/jobcore/store"
)

// Known config keys, per spec.md §6 "Config keys read".
const (
	KeyHeartbeat        = "heartbeat"
	KeyJobsHistory      = "jobs-history"
	KeyJobsHistoryCount = "jobs-history-count"
)

// Compiled-in defaults, per spec.md §6.
const (
	DefaultHeartbeatSeconds   int64 = 60
	DefaultJobsHistorySeconds int64 = 604800
	DefaultJobsHistoryCount   int64 = 50000
)

// Lookup reads the store-resident config hash under one namespace.
type Lookup struct {
	namespace string
}

// New returns a Lookup for the given key namespace.
func New(namespace string) Lookup {
	return Lookup{namespace: namespace}
}

// Int resolves an integer config value with the override rule
// "<queue>-<key>" else "<key>" else def. queue may be empty, in which
// case only the global key and the default are consulted. r is
// typically a store.Tx, since the lookup happens inside the same
// transaction as the operation using it.
func (l Lookup) Int(ctx context.Context, r store.Reader, queue, key string, def int64) (int64, error) {
	key1, key2 := key, ""
	if queue != "" {
		key1 = queue + "-" + key
		key2 = key
	}

	if v, ok, err := l.get(ctx, r, key1); err != nil {
		return 0, err
	} else if ok {
		return v, nil
	}
	if key2 != "" {
		if v, ok, err := l.get(ctx, r, key2); err != nil {
			return 0, err
		} else if ok {
			return v, nil
		}
	}
	return def, nil
}

func (l Lookup) get(ctx context.Context, r store.Reader, field string) (int64, bool, error) {
	raw, ok, err := r.HGet(ctx, store.ConfigKey(l.namespace), field)
	if err != nil {
		return 0, false, fmt.Errorf("queueconfig: read %s: %w", field, err)
	}
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("queueconfig: field %s holds non-numeric value %q: %w", field, raw, err)
	}
	return n, true, nil
}

// Heartbeat resolves the lock-lease duration, in seconds, for queue.
func (l Lookup) Heartbeat(ctx context.Context, r store.Reader, queue string) (int64, error) {
	return l.Int(ctx, r, queue, KeyHeartbeat, DefaultHeartbeatSeconds)
}

// JobsHistorySeconds resolves the Completed-GC age bound.
func (l Lookup) JobsHistorySeconds(ctx context.Context, r store.Reader) (int64, error) {
	return l.Int(ctx, r, "", KeyJobsHistory, DefaultJobsHistorySeconds)
}

// JobsHistoryCount resolves the Completed-GC count bound.
func (l Lookup) JobsHistoryCount(ctx context.Context, r store.Reader) (int64, error) {
	return l.Int(ctx, r, "", KeyJobsHistoryCount, DefaultJobsHistoryCount)
}
