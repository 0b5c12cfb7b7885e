package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qedge/jobcore/history"
	"github.com/qedge/jobcore/queueview"
	"github.com/qedge/jobcore/store"
)

// Fail records a worker-reported failure, per spec.md §4.4. Unlike
// Complete and Retry, Fail does not check that worker matches the job's
// current owner — only that the job is running — since a failure report
// is attributed information, not a claim of exclusive ownership.
func (m *Machine) Fail(ctx context.Context, jid string, now int64, worker, group, message string, data json.RawMessage) (string, error) {
	if worker == "" {
		return "", missingArg("worker")
	}
	if group == "" {
		return "", missingArg("group")
	}
	if message == "" {
		return "", missingArg("message")
	}
	if data != nil && !json.Valid(data) {
		return "", badArg("data", "must be valid JSON")
	}

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
		if rec.State != StateRunning {
			return &StateError{JID: jid, Want: StateRunning, Got: rec.State}
		}

		if err := m.hist.PublishLog(tx, map[string]any{
			"jid": jid, "event": "failed", "worker": worker, "group": group, "message": message,
		}); err != nil {
			return err
		}
		if err := m.hist.PublishIfTracked(ctx, tx, store.FailedChannel(m.namespace), jid); err != nil {
			return err
		}
		if rec.Worker != "" {
			tx.ZRem(store.WorkerJobsKey(m.namespace, rec.Worker), jid)
		}

		entries := history.MarkFailed(rec.History, worker, now)

		queueview.New(m.namespace, rec.Queue).IncrFailureStats(tx, now)
		queueview.New(m.namespace, rec.Queue).RemoveFromActive(tx, jid)

		newData := rec.Data
		if data != nil {
			newData = data
		}

		historyJSON, err := history.Encode(entries)
		if err != nil {
			return err
		}
		failure := Failure{Group: group, Message: message, When: now, Worker: worker}
		failureJSON, err := json.Marshal(failure)
		if err != nil {
			return fmt.Errorf("job: encode failure: %w", err)
		}

		tx.HSet(m.jobKey(jid), map[string]string{
			"state":   string(StateFailed),
			"worker":  "",
			"expires": "",
			"data":    string(newData),
			"history": historyJSON,
			"failure": string(failureJSON),
		})
		tx.SAdd(store.FailuresKey(m.namespace), group)
		tx.LPush(store.FailureGroupKey(m.namespace, group), jid)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("job: fail: %w", err)
	}
	return jid, nil
}
