package gc_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/qedge/jobcore/gc"
	"github.com/qedge/jobcore/store"
	"github.com/qedge/jobcore/store/memstore"
)

func TestRun_EvictsByAge(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	sweeper := gc.New("", nil)

	st.Watch(ctx, nil, func(tx store.Tx) error {
		tx.HSet(store.ConfigKey(""), map[string]string{"jobs-history": "100", "jobs-history-count": "1000"})
		tx.ZAdd(store.CompletedKey(""), 10, "old") // now(500) - 100 = 400 cutoff, 10 < 400
		tx.ZAdd(store.CompletedKey(""), 490, "recent")
		tx.HSet(store.JobKey("", "old"), map[string]string{"state": "complete"})
		tx.HSet(store.JobKey("", "recent"), map[string]string{"state": "complete"})
		return nil
	})

	err := st.Watch(ctx, nil, func(tx store.Tx) error {
		return sweeper.Run(ctx, tx, 500)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if ok, _ := st.Exists(ctx, store.JobKey("", "old")); ok {
		t.Fatal("old job should have been evicted")
	}
	if ok, _ := st.Exists(ctx, store.JobKey("", "recent")); !ok {
		t.Fatal("recent job should remain")
	}
	if _, ok, _ := st.ZScore(ctx, store.CompletedKey(""), "old"); ok {
		t.Fatal("old should be removed from completed set")
	}
}

func TestRun_EvictsExcessByCountOldestFirst(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	sweeper := gc.New("", nil)

	st.Watch(ctx, nil, func(tx store.Tx) error {
		tx.HSet(store.ConfigKey(""), map[string]string{"jobs-history": "1000000", "jobs-history-count": "2"})
		for i, jid := range []string{"a", "b", "c"} {
			tx.ZAdd(store.CompletedKey(""), float64(i), jid)
			tx.HSet(store.JobKey("", jid), map[string]string{"state": "complete"})
		}
		return nil
	})

	err := st.Watch(ctx, nil, func(tx store.Tx) error {
		return sweeper.Run(ctx, tx, 500)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if ok, _ := st.Exists(ctx, store.JobKey("", "a")); ok {
		t.Fatal("a (oldest) should have been evicted to respect the count bound")
	}
	if ok, _ := st.Exists(ctx, store.JobKey("", "b")); !ok {
		t.Fatal("b should remain")
	}
	if ok, _ := st.Exists(ctx, store.JobKey("", "c")); !ok {
		t.Fatal("c should remain")
	}
}

func TestEvict_CleansTagIndices(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	sweeper := gc.New("", nil)

	tags, _ := json.Marshal([]string{"nightly"})
	st.Watch(ctx, nil, func(tx store.Tx) error {
		tx.HSet(store.ConfigKey(""), map[string]string{"jobs-history": "0", "jobs-history-count": "0"})
		tx.ZAdd(store.CompletedKey(""), 1, "a")
		tx.HSet(store.JobKey("", "a"), map[string]string{"state": "complete", "tags": string(tags)})
		tx.ZAdd(store.TagKey("", "nightly"), 1, "a")
		tx.ZAdd(store.TagsKey(""), 1, "nightly")
		return nil
	})

	err := st.Watch(ctx, nil, func(tx store.Tx) error {
		return sweeper.Run(ctx, tx, 100)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if _, ok, _ := st.ZScore(ctx, store.TagKey("", "nightly"), "a"); ok {
		t.Fatal("a should be removed from its tag index")
	}
	if _, ok, _ := st.ZScore(ctx, store.TagsKey(""), "nightly"); ok {
		t.Fatal("tag with zero remaining members should be removed from the tags index")
	}
}

func TestRun_NoopWhenNothingToEvict(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	sweeper := gc.New("", nil)

	st.Watch(ctx, nil, func(tx store.Tx) error {
		tx.HSet(store.ConfigKey(""), map[string]string{"jobs-history": "1000000", "jobs-history-count": "1000"})
		tx.ZAdd(store.CompletedKey(""), 490, "a")
		tx.HSet(store.JobKey("", "a"), map[string]string{"state": "complete"})
		return nil
	})
	err := st.Watch(ctx, nil, func(tx store.Tx) error {
		return sweeper.Run(ctx, tx, 500)
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if ok, _ := st.Exists(ctx, store.JobKey("", "a")); !ok {
		t.Fatal("a should remain")
	}
}
