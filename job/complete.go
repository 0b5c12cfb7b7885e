package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/qedge/jobcore/history"
	"github.com/qedge/jobcore/queueview"
	"github.com/qedge/jobcore/store"
)

// CompleteOptions carries the optional arguments to Complete, per
// spec.md §4.3 and the "explicit options record" redesign of §9.
type CompleteOptions struct {
	// Next advances the job to this queue instead of terminating it.
	Next string
	// Delay, in seconds, schedules the job on Next rather than making it
	// immediately workable. Requires Next; mutually exclusive with
	// Depends.
	Delay int64
	// Depends lists jids the job must wait on before becoming workable
	// on Next. Requires Next; mutually exclusive with Delay.
	Depends []string
}

// Complete finishes a worker's turn with a job, per spec.md §4.3.
// Without Next it terminates the job; with Next it advances the job,
// optionally after a delay or behind new dependencies. Returns the
// resulting state.
func (m *Machine) Complete(ctx context.Context, jid string, now int64, worker, queue string, data json.RawMessage, opts CompleteOptions) (State, error) {
	if worker == "" {
		return "", missingArg("worker")
	}
	if queue == "" {
		return "", missingArg("queue")
	}
	if len(data) == 0 {
		return "", missingArg("data")
	}
	var probe map[string]any
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", badArg("data", "must be a JSON object")
	}
	if opts.Delay > 0 && len(opts.Depends) > 0 {
		return "", badArg("delay", "mutually exclusive with depends")
	}
	if (opts.Delay > 0 || len(opts.Depends) > 0) && opts.Next == "" {
		return "", badArg("next", "required when delay or depends is set")
	}

	var result State
	err := m.store.Watch(ctx, []string{m.jobKey(jid)}, func(tx store.Tx) error {
		fields, err := tx.HGetAll(ctx, m.jobKey(jid))
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return &StateError{JID: jid, Want: StateRunning, Got: ""}
		}
		rec, err := recordFromFields(jid, fields)
		if err != nil {
			return err
		}
		if rec.Worker != worker {
			return &OwnershipError{JID: jid, Worker: worker, Actual: rec.Worker}
		}
		if rec.State != StateRunning {
			return &StateError{JID: jid, Want: StateRunning, Got: rec.State}
		}

		entries := history.MarkDone(rec.History, now)
		runDuration := history.RunDuration(entries, now)

		qh := queueview.New(m.namespace, queue)
		qh.RemoveFromActive(tx, jid)
		if err := qh.RecordRunDuration(ctx, tx, now, runDuration); err != nil {
			return err
		}
		tx.ZRem(store.WorkerJobsKey(m.namespace, worker), jid)
		if err := m.hist.PublishIfTracked(ctx, tx, store.CompletedChannel(m.namespace), jid); err != nil {
			return err
		}

		if opts.Next != "" {
			r, err := m.completeAdvance(ctx, tx, jid, now, queue, rec, entries, data, opts)
			if err != nil {
				return err
			}
			result = r
			return nil
		}

		r, err := m.completeTerminal(ctx, tx, jid, now, queue, rec, entries, data)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("job: complete: %w", err)
	}
	return result, nil
}

// completeAdvance implements spec.md §4.3 step 7: moving the job onto
// Next, either scheduled, blocked on new dependencies, or immediately
// workable.
func (m *Machine) completeAdvance(ctx context.Context, tx store.Tx, jid string, now int64, fromQueue string, rec Record, entries []history.Entry, data json.RawMessage, opts CompleteOptions) (State, error) {
	if err := m.hist.PublishLog(tx, map[string]any{
		"jid": jid, "event": "advanced", "queue": fromQueue, "to": opts.Next,
	}); err != nil {
		return "", err
	}
	entries = history.Append(entries, history.Entry{Q: opts.Next, Put: now})

	next := queueview.New(m.namespace, opts.Next)
	if err := next.EnsureKnown(ctx, tx, now); err != nil {
		return "", err
	}

	historyJSON, err := history.Encode(entries)
	if err != nil {
		return "", err
	}
	base := map[string]string{
		"worker":    "",
		"failure":   "{}",
		"queue":     opts.Next,
		"expires":   "0",
		"remaining": strconv.Itoa(rec.Retries),
		"data":      string(data),
		"history":   historyJSON,
	}

	if opts.Delay > 0 {
		next.AddScheduled(tx, now+opts.Delay, jid)
		base["state"] = string(StateScheduled)
		tx.HSet(m.jobKey(jid), base)
		return StateScheduled, nil
	}

	addedEdge := false
	for _, d := range opts.Depends {
		dFields, err := tx.HGetAll(ctx, m.jobKey(d))
		if err != nil {
			return "", err
		}
		if len(dFields) == 0 || dFields["state"] == string(StateComplete) {
			continue
		}
		m.graph.AddEdge(tx, d, jid)
		addedEdge = true
	}
	if addedEdge {
		next.AddDepends(tx, now, jid)
		base["state"] = string(StateDepends)
		tx.HSet(m.jobKey(jid), base)
		return StateDepends, nil
	}

	next.AddWork(tx, rec.Priority, now, jid)
	base["state"] = string(StateWaiting)
	tx.HSet(m.jobKey(jid), base)
	return StateWaiting, nil
}

// completeTerminal implements spec.md §4.3 step 8: terminating the job,
// running Completed-GC, and cascading release to dependents.
func (m *Machine) completeTerminal(ctx context.Context, tx store.Tx, jid string, now int64, queue string, rec Record, entries []history.Entry, data json.RawMessage) (State, error) {
	if err := m.hist.PublishLog(tx, map[string]any{
		"jid": jid, "event": "completed", "queue": queue,
	}); err != nil {
		return "", err
	}

	historyJSON, err := history.Encode(entries)
	if err != nil {
		return "", err
	}
	tx.HSet(m.jobKey(jid), map[string]string{
		"state":     string(StateComplete),
		"worker":    "",
		"queue":     "",
		"expires":   "0",
		"failure":   "{}",
		"remaining": strconv.Itoa(rec.Retries),
		"data":      string(data),
		"history":   historyJSON,
	})
	tx.ZAdd(store.CompletedKey(m.namespace), float64(now), jid)

	if err := m.sweeper.Run(ctx, tx, now); err != nil {
		return "", err
	}

	if err := m.cascadeRelease(ctx, tx, jid, now); err != nil {
		return "", err
	}
	m.graph.DeleteDependents(tx, jid)

	return StateComplete, nil
}

// cascadeRelease implements spec.md §4.3 step 8.e: for every dependent
// of the completing job, remove the completed edge and, once a
// dependent has no dependencies left, release it from depends to work.
func (m *Machine) cascadeRelease(ctx context.Context, tx store.Tx, jid string, now int64) error {
	dependents, err := m.graph.Dependents(ctx, tx, jid)
	if err != nil {
		return err
	}
	for _, dep := range dependents {
		m.graph.RemoveEdge(tx, jid, dep)

		remaining, err := m.graph.DependencyCount(ctx, tx, dep)
		if err != nil {
			return err
		}
		// RemoveEdge is only queued, so the count read above still
		// includes jid.
		isDep, err := tx.SIsMember(ctx, store.JobDependenciesKey(m.namespace, dep), jid)
		if err != nil {
			return err
		}
		if isDep {
			remaining--
		}
		if remaining > 0 {
			continue
		}

		depFields, err := tx.HGetAll(ctx, m.jobKey(dep))
		if err != nil {
			return err
		}
		if len(depFields) == 0 {
			continue
		}
		depQueue := depFields["queue"]
		depPriority, _ := strconv.Atoi(depFields["priority"])
		if depQueue != "" {
			dh := queueview.New(m.namespace, depQueue)
			dh.RemoveFromDepends(tx, dep)
			dh.AddWork(tx, depPriority, now, dep)
		}
		tx.HSet(m.jobKey(dep), map[string]string{"state": string(StateWaiting)})
	}
	return nil
}
