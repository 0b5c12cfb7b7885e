package jobcore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/qedge/jobcore/job"
	"github.com/qedge/jobcore/store"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger the Engine attaches to every
// operation. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithStore sets the persistence backend. Required — New returns an
// error if no store is configured.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// Engine wires the Job State Machine to a store and exposes the eight
// operations of spec.md §4 as plain Go methods. Engine holds no
// per-job state; every call resolves current state from the store
// atomically.
type Engine struct {
	store  store.Store
	logger *slog.Logger
	m      *job.Machine
}

// New constructs an Engine. WithStore is required.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, missingStore()
	}
	e.m = job.New(e.store, job.WithLogger(e.logger))
	return e, nil
}

// Logger returns the Engine's structured logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Store returns the Engine's backing store.
func (e *Engine) Store() store.Store { return e.store }

// call wraps one top-level Engine operation with a correlation id and
// Debug/Warn logging, per SPEC_FULL.md's Logging section.
func (e *Engine) call(ctx context.Context, op, jid string, fn func(*slog.Logger) error) error {
	start := time.Now()
	l := e.logger.With("op", op, "jid", jid, "op_id", newOpID())
	err := fn(l)
	if err != nil {
		l.Warn("operation failed", "elapsed", time.Since(start), "error", err)
		return err
	}
	l.Debug("operation ok", "elapsed", time.Since(start))
	return nil
}

// Data returns the full decoded record for jid, or ok=false if it does
// not exist.
func (e *Engine) Data(ctx context.Context, jid string) (job.Record, bool, error) {
	var rec job.Record
	var ok bool
	err := e.call(ctx, "data", jid, func(*slog.Logger) error {
		var err error
		rec, ok, err = e.m.Data(ctx, jid)
		return err
	})
	return rec, ok, err
}

// Project returns raw hash values for keys, in order.
func (e *Engine) Project(ctx context.Context, jid string, keys []string) ([]string, bool, error) {
	var vals []string
	var ok bool
	err := e.call(ctx, "data", jid, func(*slog.Logger) error {
		var err error
		vals, ok, err = e.m.Project(ctx, jid, keys)
		return err
	})
	return vals, ok, err
}

// Complete finishes a worker's turn with a job, per spec.md §4.3.
func (e *Engine) Complete(ctx context.Context, jid string, now int64, worker, queue string, data json.RawMessage, opts job.CompleteOptions) (job.State, error) {
	var state job.State
	err := e.call(ctx, "complete", jid, func(l *slog.Logger) error {
		var err error
		state, err = e.m.Complete(ctx, jid, now, worker, queue, data, opts)
		if err == nil {
			l.Debug("completed", "worker", worker, "queue", queue, "next", opts.Next, "result_state", state)
		}
		return err
	})
	return state, err
}

// Fail records a worker-reported failure, per spec.md §4.4.
func (e *Engine) Fail(ctx context.Context, jid string, now int64, worker, group, message string, data json.RawMessage) (string, error) {
	var out string
	err := e.call(ctx, "fail", jid, func(*slog.Logger) error {
		var err error
		out, err = e.m.Fail(ctx, jid, now, worker, group, message, data)
		return err
	})
	return out, err
}

// Retry releases a job back for another attempt, per spec.md §4.5.
func (e *Engine) Retry(ctx context.Context, jid string, now int64, queue, worker string, delay int64) (int, error) {
	var remaining int
	err := e.call(ctx, "retry", jid, func(*slog.Logger) error {
		var err error
		remaining, err = e.m.Retry(ctx, jid, now, queue, worker, delay)
		return err
	})
	return remaining, err
}

// Depends adjusts a job's dependency edges, per spec.md §4.6.
func (e *Engine) Depends(ctx context.Context, jid string, now int64, command string, args ...string) (bool, error) {
	var ok bool
	err := e.call(ctx, "depends", jid, func(*slog.Logger) error {
		var err error
		ok, err = e.m.Depends(ctx, jid, now, command, args...)
		return err
	})
	return ok, err
}

// Heartbeat extends a job's lock, per spec.md §4.7.
func (e *Engine) Heartbeat(ctx context.Context, jid string, now int64, worker string, data json.RawMessage) (int64, error) {
	var expires int64
	err := e.call(ctx, "heartbeat", jid, func(*slog.Logger) error {
		var err error
		expires, err = e.m.Heartbeat(ctx, jid, now, worker, data)
		return err
	})
	return expires, err
}

// Priority updates a job's priority, per spec.md §4.8.
func (e *Engine) Priority(ctx context.Context, jid string, priority int) (bool, error) {
	var ok bool
	err := e.call(ctx, "priority", jid, func(*slog.Logger) error {
		var err error
		ok, err = e.m.Priority(ctx, jid, priority)
		return err
	})
	return ok, err
}

// Update bulk-overwrites recognised scalar fields, per spec.md §4.9.
func (e *Engine) Update(ctx context.Context, jid string, fields map[string]string) error {
	return e.call(ctx, "update", jid, func(*slog.Logger) error {
		return e.m.Update(ctx, jid, fields)
	})
}
