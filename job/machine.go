package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/qedge/jobcore/depgraph"
	"github.com/qedge/jobcore/gc"
	"github.com/qedge/jobcore/history"
	"github.com/qedge/jobcore/queueconfig"
	"github.com/qedge/jobcore/queueview"
	"github.com/qedge/jobcore/store"
)

// updatableFields are the job hash fields Update is permitted to touch.
// jid is immutable and never appears here.
var updatableFields = map[string]bool{
	"klass": true, "state": true, "queue": true, "worker": true,
	"priority": true, "expires": true, "retries": true, "remaining": true,
	"data": true, "tags": true, "history": true, "failure": true,
}

// Machine implements the eight operations of spec.md §4 against a
// store.Store. A Machine is stateless beyond its store handle and is
// safe for concurrent use.
type Machine struct {
	store     store.Store
	namespace string
	cfg       queueconfig.Lookup
	graph     depgraph.Graph
	hist      history.Recorder
	sweeper   gc.Sweeper
	logger    *slog.Logger
}

// Option configures a Machine at construction.
type Option func(*Machine)

// WithLogger sets the logger used for Completed-GC sweep summaries.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// New returns a Machine operating against s.
func New(s store.Store, opts ...Option) *Machine {
	ns := s.Namespace()
	m := &Machine{
		store:     s,
		namespace: ns,
		cfg:       queueconfig.New(ns),
		graph:     depgraph.New(ns),
		hist:      history.New(ns),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sweeper = gc.New(ns, m.logger)
	return m
}

func (m *Machine) jobKey(jid string) string { return store.JobKey(m.namespace, jid) }

// Data returns the full decoded record for jid, or ok=false if no such
// job exists. Per spec.md §7, a missing job is not an error.
func (m *Machine) Data(ctx context.Context, jid string) (Record, bool, error) {
	fields, err := m.store.HGetAll(ctx, m.jobKey(jid))
	if err != nil {
		return Record{}, false, fmt.Errorf("job: data: %w", err)
	}
	if len(fields) == 0 {
		return Record{}, false, nil
	}
	rec, err := recordFromFields(jid, fields)
	if err != nil {
		return Record{}, false, err
	}

	rec.Dependencies, err = m.graph.Dependencies(ctx, m.store, jid)
	if err != nil {
		return Record{}, false, fmt.Errorf("job: data: %w", err)
	}
	rec.Dependents, err = m.graph.Dependents(ctx, m.store, jid)
	if err != nil {
		return Record{}, false, fmt.Errorf("job: data: %w", err)
	}
	_, rec.Tracked, err = m.store.ZScore(ctx, store.TrackedKey(m.namespace), jid)
	if err != nil {
		return Record{}, false, fmt.Errorf("job: data: %w", err)
	}
	return rec, true, nil
}

// Project returns the raw hash values for keys, in order, or ok=false
// if the job does not exist. A key the job hash does not carry yields
// an empty string at that position.
func (m *Machine) Project(ctx context.Context, jid string, keys []string) ([]string, bool, error) {
	exists, err := m.store.Exists(ctx, m.jobKey(jid))
	if err != nil {
		return nil, false, fmt.Errorf("job: project: %w", err)
	}
	if !exists {
		return nil, false, nil
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		v, _, err := m.store.HGet(ctx, m.jobKey(jid), k)
		if err != nil {
			return nil, false, fmt.Errorf("job: project: %w", err)
		}
		out[i] = v
	}
	return out, true, nil
}

// Heartbeat extends jid's lock, per spec.md §4.7. Requires worker to
// already hold the job; returns the new expiry.
func (m *Machine) Heartbeat(ctx context.Context, jid string, now int64, worker string, data json.RawMessage) (int64, error) {
	if worker == "" {
		return 0, missingArg("worker")
	}
	if data != nil && !json.Valid(data) {
		return 0, badArg("data", "must be valid JSON")
	}

	var expires int64
	err := m.store.Watch(ctx, []string{m.jobKey(jid)}, func(tx store.Tx) error {
		fields, err := tx.HGetAll(ctx, m.jobKey(jid))
		if err != nil {
			return err
		}
		actual := fields["worker"]
		if actual == "" || actual != worker {
			return &OwnershipError{JID: jid, Worker: worker, Actual: actual}
		}
		queue := fields["queue"]

		hb, err := m.cfg.Heartbeat(ctx, tx, queue)
		if err != nil {
			return err
		}
		expires = now + hb

		newFields := map[string]string{"expires": strconv.FormatInt(expires, 10), "worker": worker}
		if data != nil {
			newFields["data"] = string(data)
		}
		tx.HSet(m.jobKey(jid), newFields)
		tx.ZAdd(store.WorkerJobsKey(m.namespace, worker), float64(expires), jid)
		if queue != "" {
			queueview.New(m.namespace, queue).AddLocks(tx, expires, jid)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("job: heartbeat: %w", err)
	}
	return expires, nil
}

// Priority updates jid's priority field, per spec.md §4.8. Returns
// ok=false if the job does not exist. If the job is currently present
// in its queue's work set, it is re-inserted at the new priority while
// preserving its relative enqueue-time ordering among same-priority
// jobs; scheduled/depends/locks membership is left untouched.
func (m *Machine) Priority(ctx context.Context, jid string, priority int) (bool, error) {
	var ok bool
	err := m.store.Watch(ctx, []string{m.jobKey(jid)}, func(tx store.Tx) error {
		fields, err := tx.HGetAll(ctx, m.jobKey(jid))
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			ok = false
			return nil
		}
		ok = true

		queue := fields["queue"]
		if queue == "" {
			tx.HSet(m.jobKey(jid), map[string]string{"priority": strconv.Itoa(priority)})
			return nil
		}

		workKey := store.QueueWorkKey(m.namespace, queue)
		oldScore, inWork, err := tx.ZScore(ctx, workKey, jid)
		if err != nil {
			return err
		}
		tx.HSet(m.jobKey(jid), map[string]string{"priority": strconv.Itoa(priority)})
		if inWork {
			oldPriority, _ := strconv.Atoi(fields["priority"])
			frac := oldScore + float64(oldPriority)
			tx.ZAdd(workKey, -float64(priority)+frac, jid)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("job: priority: %w", err)
	}
	return ok, nil
}

// Update bulk-overwrites recognised scalar fields on the job hash, per
// spec.md §4.9. It performs no ownership or state validation and is
// intended for administrative paths and composition from queue-level
// operations.
func (m *Machine) Update(ctx context.Context, jid string, fields map[string]string) error {
	filtered := make(map[string]string, len(fields))
	for k, v := range fields {
		if updatableFields[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	err := m.store.Watch(ctx, []string{m.jobKey(jid)}, func(tx store.Tx) error {
		tx.HSet(m.jobKey(jid), filtered)
		return nil
	})
	if err != nil {
		return fmt.Errorf("job: update: %w", err)
	}
	return nil
}
