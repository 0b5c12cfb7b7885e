// Package history implements the History & Stats Recorder of spec.md
// §2/§3: it decodes and mutates a job's history entries, computes
// run durations, and publishes the store-native pub/sub events
// other processes subscribe to.
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qedge/jobcore/store"
)

// Entry is one stage a job has passed through. Fields are omitted from
// the encoded JSON when zero, matching the source's sparse per-stage
// mapping.
type Entry struct {
	Q      string `json:"q,omitempty"`
	Put    int64  `json:"put,omitempty"`
	Popped int64  `json:"popped,omitempty"`
	Done   int64  `json:"done,omitempty"`
	Worker string `json:"worker,omitempty"`
	Failed int64  `json:"failed,omitempty"`
}

// Decode parses a job's raw history field. An empty string decodes to a
// nil slice, matching "absent -> empty list" for JSON fields (spec.md
// §4.2).
func Decode(raw string) ([]Entry, error) {
	if raw == "" {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("history: decode: %w", err)
	}
	return entries, nil
}

// Encode serialises a history slice back to its stored JSON form.
func Encode(entries []Entry) (string, error) {
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("history: encode: %w", err)
	}
	return string(b), nil
}

// MarkDone sets the Done timestamp on the most recent entry, per
// spec.md §4.3 step 1. It is a no-op on an empty history.
func MarkDone(entries []Entry, now int64) []Entry {
	if len(entries) == 0 {
		return entries
	}
	entries[len(entries)-1].Done = now
	return entries
}

// MarkFailed stamps Failed on the most recent entry owned by worker,
// scanning from the tail so the most recent ownership span is the one
// stamped (spec.md §4.4 step 3). If no entry belongs to worker (which
// includes an empty history), a fresh entry seeded with {worker,
// failed: now} is appended.
func MarkFailed(entries []Entry, worker string, now int64) []Entry {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Worker == worker {
			entries[i].Failed = now
			return entries
		}
	}
	return append(entries, Entry{Worker: worker, Failed: now})
}

// MarkFailedTail stamps Failed on the most recent entry unconditionally
// (unlike MarkFailed, it does not match on worker) — the semantics
// spec.md §4.5 step 4 requires for retry exhaustion. Seeds a fresh
// entry when history is empty.
func MarkFailedTail(entries []Entry, now int64) []Entry {
	if len(entries) == 0 {
		return append(entries, Entry{Failed: now})
	}
	entries[len(entries)-1].Failed = now
	return entries
}

// Append adds a new stage entry, e.g. {q: next, put: now} on advance.
func Append(entries []Entry, e Entry) []Entry {
	return append(entries, e)
}

// RunDuration returns the elapsed time since the most recent entry's
// Popped timestamp — the value spec.md §4.3 step 4 records under the
// wire-compatible but misleadingly named "waiting_duration" stat field.
// Returns 0 if there is no history or the last entry was never popped.
func RunDuration(entries []Entry, now int64) int64 {
	if len(entries) == 0 {
		return 0
	}
	last := entries[len(entries)-1]
	if last.Popped == 0 {
		return 0
	}
	return now - last.Popped
}

// Recorder publishes the store-native pub/sub events of spec.md §6
// under one key namespace.
type Recorder struct {
	namespace string
}

// New returns a Recorder for the given key namespace.
func New(namespace string) Recorder {
	return Recorder{namespace: namespace}
}

// PublishLog JSON-encodes event and publishes it on the log channel.
func (r Recorder) PublishLog(tx store.Tx, event map[string]any) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("history: encode log event: %w", err)
	}
	tx.Publish(store.LogChannel(r.namespace), string(b))
	return nil
}

// PublishIfTracked publishes jid on channel, but only when jid is a
// member of the global tracked set (spec.md §6: "completed, failed —
// just the jid, only if jid is in the tracked set").
func (r Recorder) PublishIfTracked(ctx context.Context, tx store.Tx, channel, jid string) error {
	_, tracked, err := tx.ZScore(ctx, store.TrackedKey(r.namespace), jid)
	if err != nil {
		return fmt.Errorf("history: check tracked: %w", err)
	}
	if tracked {
		tx.Publish(channel, jid)
	}
	return nil
}
