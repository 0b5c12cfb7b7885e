package depgraph_test

import (
	"context"
	"testing"

	"github.com/qedge/jobcore/depgraph"
	"github.com/qedge/jobcore/store"
	"github.com/qedge/jobcore/store/memstore"
)

func TestAddEdge_IsSymmetric(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	g := depgraph.New("")

	st.Watch(ctx, nil, func(tx store.Tx) error {
		g.AddEdge(tx, "b", "a") // a depends on b
		return nil
	})

	deps, err := g.Dependencies(ctx, st, "a")
	if err != nil || len(deps) != 1 || deps[0] != "b" {
		t.Fatalf("dependencies = %v err=%v", deps, err)
	}
	dependents, err := g.Dependents(ctx, st, "b")
	if err != nil || len(dependents) != 1 || dependents[0] != "a" {
		t.Fatalf("dependents = %v err=%v", dependents, err)
	}
}

func TestRemoveEdge_UndoesBothSides(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	g := depgraph.New("")

	st.Watch(ctx, nil, func(tx store.Tx) error {
		g.AddEdge(tx, "b", "a")
		g.RemoveEdge(tx, "b", "a")
		return nil
	})

	count, err := g.DependencyCount(ctx, st, "a")
	if err != nil || count != 0 {
		t.Fatalf("count = %d err=%v", count, err)
	}
	dependents, err := g.Dependents(ctx, st, "b")
	if err != nil || len(dependents) != 0 {
		t.Fatalf("dependents = %v err=%v", dependents, err)
	}
}

func TestDeleteDependents_ClearsWholeSet(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	g := depgraph.New("")

	st.Watch(ctx, nil, func(tx store.Tx) error {
		g.AddEdge(tx, "root", "a")
		g.AddEdge(tx, "root", "b")
		return nil
	})
	st.Watch(ctx, nil, func(tx store.Tx) error {
		g.DeleteDependents(tx, "root")
		return nil
	})
	dependents, err := g.Dependents(ctx, st, "root")
	if err != nil || len(dependents) != 0 {
		t.Fatalf("dependents = %v err=%v, want none", dependents, err)
	}
	// Deleting the dependents set does not clean up the other side —
	// callers (job.completeTerminal) only do this once every dependent
	// has already had its own edge individually removed via cascade.
	count, err := g.DependencyCount(ctx, st, "a")
	if err != nil || count != 1 {
		t.Fatalf("count = %d err=%v, want 1 (unaffected)", count, err)
	}
}
