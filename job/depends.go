package job

import (
	"context"
	"fmt"

	"github.com/qedge/jobcore/queueview"
	"github.com/qedge/jobcore/store"
)

// Depends adjusts a job's dependency edges while it is in the depends
// state, per spec.md §4.6. command must be "on" or "off"; for "off",
// args of exactly ["all"] removes every dependency, otherwise each
// listed jid's edge is removed individually. Returns ok=false without
// mutation if the job does not exist or is not currently in the
// depends state — per spec.md §7, this is not an error.
func (m *Machine) Depends(ctx context.Context, jid string, now int64, command string, args ...string) (bool, error) {
	if command != "on" && command != "off" {
		return false, badArg("command", fmt.Sprintf("unknown depends command %q", command))
	}

	var ok bool
	err := m.store.Watch(ctx, []string{m.jobKey(jid)}, func(tx store.Tx) error {
		fields, err := tx.HGetAll(ctx, m.jobKey(jid))
		if err != nil {
			return err
		}
		if len(fields) == 0 || fields["state"] != string(StateDepends) {
			ok = false
			return nil
		}
		rec, err := recordFromFields(jid, fields)
		if err != nil {
			return err
		}

		if command == "on" {
			ok = true
			return m.dependsOn(ctx, tx, jid, args)
		}

		ok = true
		if len(args) == 1 && args[0] == "all" {
			return m.dependsOffAll(ctx, tx, jid, now, rec)
		}
		return m.dependsOffSome(ctx, tx, jid, now, rec, args)
	})
	if err != nil {
		return false, fmt.Errorf("job: depends: %w", err)
	}
	return ok, nil
}

func (m *Machine) dependsOn(ctx context.Context, tx store.Tx, jid string, deps []string) error {
	for _, d := range deps {
		dFields, err := tx.HGetAll(ctx, m.jobKey(d))
		if err != nil {
			return err
		}
		if len(dFields) == 0 || dFields["state"] == string(StateComplete) {
			continue
		}
		m.graph.AddEdge(tx, d, jid)
	}
	return nil
}

func (m *Machine) dependsOffAll(ctx context.Context, tx store.Tx, jid string, now int64, rec Record) error {
	deps, err := m.graph.Dependencies(ctx, tx, jid)
	if err != nil {
		return err
	}
	for _, d := range deps {
		m.graph.RemoveEdge(tx, d, jid)
	}
	m.graph.DeleteDependencies(tx, jid)
	m.releaseIfReady(tx, jid, now, rec)
	return nil
}

func (m *Machine) dependsOffSome(ctx context.Context, tx store.Tx, jid string, now int64, rec Record, deps []string) error {
	// Edge removals are only queued, so reads in this transaction keep
	// seeing the original dependencies set; track what is left here.
	current, err := m.graph.Dependencies(ctx, tx, jid)
	if err != nil {
		return err
	}
	left := make(map[string]bool, len(current))
	for _, d := range current {
		left[d] = true
	}
	for _, d := range deps {
		m.graph.RemoveEdge(tx, d, jid)
		delete(left, d)
		if len(left) == 0 {
			m.releaseIfReady(tx, jid, now, rec)
		}
	}
	return nil
}

// releaseIfReady moves jid from its queue's depends set to its work
// set, per spec.md §4.6's "move to work" step. It is a no-op if the job
// was never enqueued on a queue.
func (m *Machine) releaseIfReady(tx store.Tx, jid string, now int64, rec Record) {
	if rec.Queue == "" {
		return
	}
	qh := queueview.New(m.namespace, rec.Queue)
	qh.RemoveFromDepends(tx, jid)
	qh.AddWork(tx, rec.Priority, now, jid)
	tx.HSet(m.jobKey(jid), map[string]string{"state": string(StateWaiting)})
}
