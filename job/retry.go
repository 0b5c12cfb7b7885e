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

// Retry releases a job back for another attempt (or exhausts it), per
// spec.md §4.5. Returns the new remaining-attempts count, which is
// negative once retries are exhausted.
func (m *Machine) Retry(ctx context.Context, jid string, now int64, queue, worker string, delay int64) (int, error) {
	if queue == "" {
		return 0, missingArg("queue")
	}
	if worker == "" {
		return 0, missingArg("worker")
	}

	var result int
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

		qh := queueview.New(m.namespace, queue)
		qh.RemoveFromLocks(tx, jid)
		tx.ZRem(store.WorkerJobsKey(m.namespace, worker), jid)

		remaining := rec.Remaining - 1

		if remaining < 0 {
			group := fmt.Sprintf("failed-retries-%s", queue)
			entries := history.MarkFailedTail(rec.History, now)
			historyJSON, err := history.Encode(entries)
			if err != nil {
				return err
			}
			failure := Failure{
				Group:   group,
				Message: fmt.Sprintf("Job exhausted retries in queue %q", queue),
				When:    now,
				Worker:  worker,
			}
			failureJSON, err := json.Marshal(failure)
			if err != nil {
				return fmt.Errorf("job: encode failure: %w", err)
			}

			tx.HSet(m.jobKey(jid), map[string]string{
				"state":     string(StateFailed),
				"worker":    "",
				"expires":   "",
				"remaining": strconv.Itoa(remaining),
				"history":   historyJSON,
				"failure":   string(failureJSON),
			})
			tx.SAdd(store.FailuresKey(m.namespace), group)
			tx.LPush(store.FailureGroupKey(m.namespace, group), jid)
			result = remaining
			return nil
		}

		if delay > 0 {
			qh.AddScheduled(tx, now+delay, jid)
			tx.HSet(m.jobKey(jid), map[string]string{
				"state": string(StateScheduled), "worker": "", "expires": "0",
				"remaining": strconv.Itoa(remaining),
			})
		} else {
			qh.AddWork(tx, rec.Priority, now, jid)
			tx.HSet(m.jobKey(jid), map[string]string{
				"state": string(StateWaiting), "worker": "", "expires": "0",
				"remaining": strconv.Itoa(remaining),
			})
		}
		result = remaining
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("job: retry: %w", err)
	}
	return result, nil
}
