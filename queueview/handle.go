// Package queueview implements the "Queue Handle" of spec.md §2/§3: the
// four ordered-set views a job moves through within one queue (work,
// locks, scheduled, depends), the global known-queues index, and the
// per-day stats sink those sets' occupants report into.
package queueview

import (
	"context"
	"strconv"

	"github.com/qedge/jobcore/store"
)

// Handle is a queue's four ordered-set views plus its stats sink, all
// addressed under one key namespace. A Handle is cheap to construct —
// it carries no state beyond the queue name — and is typically built
// fresh inside each job operation that needs it.
type Handle struct {
	namespace string
	queue     string
}

// New returns a Handle for one queue.
func New(namespace, queue string) Handle {
	return Handle{namespace: namespace, queue: queue}
}

// Queue returns the queue name this Handle addresses.
func (h Handle) Queue() string { return h.queue }

// Score combines priority (descending) and enqueue time (ascending)
// into the single float64 Redis sorted sets require, matching the
// "(−priority, score)" ordering spec.md §3 describes for the work set.
// Priority dominates; the fractional time component only breaks ties
// between jobs of equal priority, and is scaled small enough that it
// can never flip the ordering between two different priorities.
func Score(priority int, now int64) float64 {
	return float64(-priority) + float64(now)/1e15
}

// EnsureKnown adds the queue to the global known-queues index at score
// now, but only the first time it is seen — later calls for the same
// queue leave its first-seen score untouched.
func (h Handle) EnsureKnown(ctx context.Context, tx store.Tx, now int64) error {
	key := store.QueuesKey(h.namespace)
	_, ok, err := tx.ZScore(ctx, key, h.queue)
	if err != nil {
		return err
	}
	if !ok {
		tx.ZAdd(key, float64(now), h.queue)
	}
	return nil
}

// AddWork adds jid to the priority-ordered work set.
func (h Handle) AddWork(tx store.Tx, priority int, now int64, jid string) {
	tx.ZAdd(store.QueueWorkKey(h.namespace, h.queue), Score(priority, now), jid)
}

// AddLocks adds jid to the lock-expiry-ordered locks set.
func (h Handle) AddLocks(tx store.Tx, expires int64, jid string) {
	tx.ZAdd(store.QueueLocksKey(h.namespace, h.queue), float64(expires), jid)
}

// AddScheduled adds jid to the fire-time-ordered scheduled set.
func (h Handle) AddScheduled(tx store.Tx, fireAt int64, jid string) {
	tx.ZAdd(store.QueueScheduledKey(h.namespace, h.queue), float64(fireAt), jid)
}

// AddDepends adds jid to the enqueue-time-ordered depends set.
func (h Handle) AddDepends(tx store.Tx, now int64, jid string) {
	tx.ZAdd(store.QueueDependsKey(h.namespace, h.queue), float64(now), jid)
}

// RemoveFromWork removes jid from the work set.
func (h Handle) RemoveFromWork(tx store.Tx, jid string) {
	tx.ZRem(store.QueueWorkKey(h.namespace, h.queue), jid)
}

// RemoveFromLocks removes jid from the locks set.
func (h Handle) RemoveFromLocks(tx store.Tx, jid string) {
	tx.ZRem(store.QueueLocksKey(h.namespace, h.queue), jid)
}

// RemoveFromScheduled removes jid from the scheduled set.
func (h Handle) RemoveFromScheduled(tx store.Tx, jid string) {
	tx.ZRem(store.QueueScheduledKey(h.namespace, h.queue), jid)
}

// RemoveFromDepends removes jid from the depends set.
func (h Handle) RemoveFromDepends(tx store.Tx, jid string) {
	tx.ZRem(store.QueueDependsKey(h.namespace, h.queue), jid)
}

// RemoveFromActive removes jid from work, locks, and scheduled — the
// three sets a running job can be leaving, per spec.md §4.3 step 3 and
// §4.5 step 1/3. It deliberately does not touch depends, since a job
// reaching complete/fail/retry is by definition not currently blocked
// on dependencies (those operations all require state == running).
func (h Handle) RemoveFromActive(tx store.Tx, jid string) {
	h.RemoveFromWork(tx, jid)
	h.RemoveFromLocks(tx, jid)
	h.RemoveFromScheduled(tx, jid)
}

// InAnyView reports which, if any, of the four ordered-set views
// currently contain jid — used by invariant-checking tests (spec.md
// P1: a jid appears in at most one of a queue's four views).
func (h Handle) InAnyView(ctx context.Context, r store.Reader, jid string) (view string, ok bool, err error) {
	views := []struct {
		name string
		key  string
	}{
		{"work", store.QueueWorkKey(h.namespace, h.queue)},
		{"locks", store.QueueLocksKey(h.namespace, h.queue)},
		{"scheduled", store.QueueScheduledKey(h.namespace, h.queue)},
		{"depends", store.QueueDependsKey(h.namespace, h.queue)},
	}
	for _, v := range views {
		_, present, err := r.ZScore(ctx, v.key, jid)
		if err != nil {
			return "", false, err
		}
		if present {
			return v.name, true, nil
		}
	}
	return "", false, nil
}

// IncrFailureStats increments the failures/failed counters in the
// day-binned stats hash for this queue, per spec.md §6.
func (h Handle) IncrFailureStats(tx store.Tx, now int64) {
	key := store.StatsKey(h.namespace, store.DayBin(now), h.queue)
	tx.HIncrBy(key, "failures", 1)
	tx.HIncrBy(key, "failed", 1)
}

// RecordRunDuration updates the run-duration histogram fields of the
// day-binned stats hash. The field is named "waiting_duration" for wire
// compatibility even though it measures run duration — see spec.md §9's
// open question, preserved verbatim.
func (h Handle) RecordRunDuration(ctx context.Context, tx store.Tx, now int64, seconds int64) error {
	key := store.StatsKey(h.namespace, store.DayBin(now), h.queue)
	const label = "waiting_duration"

	tx.HIncrBy(key, label+"-count", 1)
	tx.HIncrBy(key, label+"-total", seconds)

	if err := bumpExtreme(ctx, tx, key, label+"-min", seconds, func(cur, v int64) bool { return v < cur }); err != nil {
		return err
	}
	if err := bumpExtreme(ctx, tx, key, label+"-max", seconds, func(cur, v int64) bool { return v > cur }); err != nil {
		return err
	}
	return nil
}

// bumpExtreme sets field to seconds if no value is set yet, or if
// better(current, seconds) holds.
func bumpExtreme(ctx context.Context, tx store.Tx, key, field string, seconds int64, better func(cur, v int64) bool) error {
	raw, ok, err := tx.HGet(ctx, key, field)
	if err != nil {
		return err
	}
	if ok {
		cur, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && !better(cur, seconds) {
			return nil
		}
	}
	tx.HSet(key, map[string]string{field: strconv.FormatInt(seconds, 10)})
	return nil
}
