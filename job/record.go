// Package job implements the Job State Machine of spec.md §2/§4: the
// Job record and the eight operations (data, complete, fail, retry,
// depends, heartbeat, priority, update) that mutate it, each executed
// as one atomic transaction against a store.Store.
package job

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/qedge/jobcore/history"
)

// State is one of the six states a job may occupy, per spec.md §3.
type State string

const (
	StateWaiting   State = "waiting"
	StateRunning   State = "running"
	StateScheduled State = "scheduled"
	StateDepends   State = "depends"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
)

// Failure describes why a job failed. The zero value marshals to "{}",
// matching the source's "empty mapping" representation for a job that
// has never failed.
type Failure struct {
	Group   string `json:"group,omitempty"`
	Message string `json:"message,omitempty"`
	When    int64  `json:"when,omitempty"`
	Worker  string `json:"worker,omitempty"`
}

// Record is the full decoded view of a job, as returned by Data.
type Record struct {
	JID          string
	Klass        string
	State        State
	Queue        string
	Worker       string
	Priority     int
	Expires      string // "0" or "" when unowned; see spec.md §9 open question.
	Retries      int
	Remaining    int
	Data         json.RawMessage
	Tags         []string
	History      []history.Entry
	Failure      Failure
	Dependencies []string
	Dependents   []string
	Tracked      bool
}

// IsOwned reports whether the job currently holds a lock. spec.md §9
// preserves the source's mixed typing of Expires ("0" on most paths,
// "" on fail) — both are treated as "not owned".
func (r Record) IsOwned() bool {
	return r.Expires != "" && r.Expires != "0"
}

// recordFromFields decodes a job hash's flat string map into a Record.
// It does not populate Dependencies, Dependents, or Tracked — callers
// needing those read the corresponding sets separately.
func recordFromFields(jid string, m map[string]string) (Record, error) {
	priority, _ := strconv.Atoi(m["priority"])
	retries, _ := strconv.Atoi(m["retries"])
	remaining, _ := strconv.Atoi(m["remaining"])

	var tags []string
	if raw := m["tags"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return Record{}, fmt.Errorf("job: decode tags for %s: %w", jid, err)
		}
	}

	entries, err := history.Decode(m["history"])
	if err != nil {
		return Record{}, fmt.Errorf("job: decode history for %s: %w", jid, err)
	}

	var failure Failure
	if raw := m["failure"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &failure); err != nil {
			return Record{}, fmt.Errorf("job: decode failure for %s: %w", jid, err)
		}
	}

	data := json.RawMessage(m["data"])
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	return Record{
		JID:       jid,
		Klass:     m["klass"],
		State:     State(m["state"]),
		Queue:     m["queue"],
		Worker:    m["worker"],
		Priority:  priority,
		Expires:   m["expires"],
		Retries:   retries,
		Remaining: remaining,
		Data:      data,
		Tags:      tags,
		History:   entries,
		Failure:   failure,
	}, nil
}
