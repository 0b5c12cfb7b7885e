// Package depgraph maintains the job dependency DAG as the paired
// forward/reverse edge sets spec.md §3/§9 describe: every edge is
// written on both sides in the same transaction, so invariant P4
// (`j ∈ k.dependents` ⇔ `k ∈ j.dependencies`) holds at every committed
// state.
package depgraph

import (
	"context"

	"github.com/qedge/jobcore/store"
)

// Graph addresses the dependency sets of one namespace.
type Graph struct {
	namespace string
}

// New returns a Graph over the given key namespace.
func New(namespace string) Graph {
	return Graph{namespace: namespace}
}

// AddEdge records that to depends on from: from is added to to's
// dependencies, and to is added to from's dependents.
func (g Graph) AddEdge(tx store.Tx, from, to string) {
	tx.SAdd(store.JobDependenciesKey(g.namespace, to), from)
	tx.SAdd(store.JobDependentsKey(g.namespace, from), to)
}

// RemoveEdge undoes AddEdge in both directions.
func (g Graph) RemoveEdge(tx store.Tx, from, to string) {
	tx.SRem(store.JobDependenciesKey(g.namespace, to), from)
	tx.SRem(store.JobDependentsKey(g.namespace, from), to)
}

// Dependencies returns the jids jid is currently waiting on.
func (g Graph) Dependencies(ctx context.Context, r store.Reader, jid string) ([]string, error) {
	return r.SMembers(ctx, store.JobDependenciesKey(g.namespace, jid))
}

// Dependents returns the jids currently waiting on jid.
func (g Graph) Dependents(ctx context.Context, r store.Reader, jid string) ([]string, error) {
	return r.SMembers(ctx, store.JobDependentsKey(g.namespace, jid))
}

// DependencyCount returns the number of jids jid is still waiting on,
// without transferring the full set.
func (g Graph) DependencyCount(ctx context.Context, r store.Reader, jid string) (int64, error) {
	return r.SCard(ctx, store.JobDependenciesKey(g.namespace, jid))
}

// DeleteDependencies removes jid's whole dependencies set, e.g. once a
// job is released to waiting with no dependencies left.
func (g Graph) DeleteDependencies(tx store.Tx, jid string) {
	tx.Del(store.JobDependenciesKey(g.namespace, jid))
}

// DeleteDependents removes jid's whole dependents set, e.g. once jid
// has completed and every dependent has been cascaded.
func (g Graph) DeleteDependents(tx store.Tx, jid string) {
	tx.Del(store.JobDependentsKey(g.namespace, jid))
}
