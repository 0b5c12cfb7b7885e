package queueview_test

import (
	"context"
	"testing"

	"github.com/qedge/jobcore/queueview"
	"github.com/qedge/jobcore/store"
	"github.com/qedge/jobcore/store/memstore"
)

func TestScore_PriorityDominatesTime(t *testing.T) {
	hi := queueview.Score(10, 1000)
	lo := queueview.Score(1, 1)
	if hi >= lo {
		t.Fatalf("higher priority should sort first (lower score): hi=%v lo=%v", hi, lo)
	}
}

func TestScore_TimeBreaksTies(t *testing.T) {
	earlier := queueview.Score(5, 100)
	later := queueview.Score(5, 200)
	if earlier >= later {
		t.Fatalf("same priority, earlier enqueue should sort first: earlier=%v later=%v", earlier, later)
	}
}

func TestEnsureKnown_FirstSeenScoreSticks(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	h := queueview.New("", "q1")

	st.Watch(ctx, nil, func(tx store.Tx) error { return h.EnsureKnown(ctx, tx, 100) })
	st.Watch(ctx, nil, func(tx store.Tx) error { return h.EnsureKnown(ctx, tx, 200) })

	score, ok, err := st.ZScore(ctx, store.QueuesKey(""), "q1")
	if err != nil || !ok || score != 100 {
		t.Fatalf("score = %v ok=%v err=%v, want 100", score, ok, err)
	}
}

func TestInAnyView(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	h := queueview.New("", "q1")

	if view, ok, err := h.InAnyView(ctx, st, "a"); err != nil || ok {
		t.Fatalf("view=%q ok=%v err=%v, want not present", view, ok, err)
	}

	st.Watch(ctx, nil, func(tx store.Tx) error {
		h.AddLocks(tx, 500, "a")
		return nil
	})
	view, ok, err := h.InAnyView(ctx, st, "a")
	if err != nil || !ok || view != "locks" {
		t.Fatalf("view=%q ok=%v err=%v, want locks", view, ok, err)
	}
}

func TestRemoveFromActive_LeavesDependsAlone(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	h := queueview.New("", "q1")

	st.Watch(ctx, nil, func(tx store.Tx) error {
		h.AddWork(tx, 0, 1, "a")
		h.AddDepends(tx, 1, "a")
		return nil
	})
	st.Watch(ctx, nil, func(tx store.Tx) error {
		h.RemoveFromActive(tx, "a")
		return nil
	})
	if _, ok, _ := st.ZScore(ctx, store.QueueWorkKey("", "q1"), "a"); ok {
		t.Fatal("expected a removed from work")
	}
	if _, ok, _ := st.ZScore(ctx, store.QueueDependsKey("", "q1"), "a"); !ok {
		t.Fatal("expected a to remain in depends")
	}
}

func TestRecordRunDuration_TracksExtremes(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	h := queueview.New("", "q1")

	st.Watch(ctx, nil, func(tx store.Tx) error { return h.RecordRunDuration(ctx, tx, 100, 30) })
	st.Watch(ctx, nil, func(tx store.Tx) error { return h.RecordRunDuration(ctx, tx, 100, 10) })
	st.Watch(ctx, nil, func(tx store.Tx) error { return h.RecordRunDuration(ctx, tx, 100, 50) })

	key := store.StatsKey("", store.DayBin(100), "q1")
	count, _, _ := st.HGet(ctx, key, "waiting_duration-count")
	total, _, _ := st.HGet(ctx, key, "waiting_duration-total")
	min, _, _ := st.HGet(ctx, key, "waiting_duration-min")
	max, _, _ := st.HGet(ctx, key, "waiting_duration-max")
	if count != "3" || total != "90" || min != "10" || max != "50" {
		t.Fatalf("count=%s total=%s min=%s max=%s", count, total, min, max)
	}
}
