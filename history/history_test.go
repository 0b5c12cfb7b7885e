package history_test

import (
	"context"
	"testing"

	"github.com/qedge/jobcore/history"
	"github.com/qedge/jobcore/store"
	"github.com/qedge/jobcore/store/memstore"
)

func TestDecodeEncode_RoundTrip(t *testing.T) {
	entries := []history.Entry{{Q: "q1", Put: 10, Popped: 20}}
	encoded, err := history.Encode(entries)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := history.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0] != entries[0] {
		t.Fatalf("decoded = %+v, want %+v", decoded, entries)
	}
}

func TestDecode_Empty(t *testing.T) {
	entries, err := history.Decode("")
	if err != nil || entries != nil {
		t.Fatalf("entries = %v err=%v, want nil/nil", entries, err)
	}
}

func TestMarkDone_SetsLastEntry(t *testing.T) {
	entries := []history.Entry{{Q: "q1"}, {Q: "q2"}}
	got := history.MarkDone(entries, 99)
	if got[1].Done != 99 || got[0].Done != 0 {
		t.Fatalf("entries = %+v", got)
	}
}

func TestMarkDone_EmptyIsNoop(t *testing.T) {
	got := history.MarkDone(nil, 99)
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestMarkFailed_StampsMostRecentMatchFromTail(t *testing.T) {
	entries := []history.Entry{
		{Q: "q1", Worker: "w1"},
		{Q: "q1", Worker: "w2"},
		{Q: "q1", Worker: "w1"},
	}
	got := history.MarkFailed(entries, "w1", 500)
	if got[2].Failed != 500 {
		t.Fatalf("expected most recent w1 entry (index 2) stamped: %+v", got)
	}
	if got[0].Failed != 0 {
		t.Fatalf("expected earlier w1 entry (index 0) untouched: %+v", got)
	}
}

func TestMarkFailed_NoMatchAppends(t *testing.T) {
	entries := []history.Entry{{Q: "q1", Worker: "w2"}}
	got := history.MarkFailed(entries, "w1", 500)
	if len(got) != 2 || got[1].Worker != "w1" || got[1].Failed != 500 {
		t.Fatalf("got = %+v", got)
	}
}

func TestMarkFailedTail_StampsLastRegardlessOfWorker(t *testing.T) {
	entries := []history.Entry{{Worker: "w1"}, {Worker: "w2"}}
	got := history.MarkFailedTail(entries, 700)
	if got[1].Failed != 700 || got[0].Failed != 0 {
		t.Fatalf("got = %+v", got)
	}
}

func TestRunDuration(t *testing.T) {
	entries := []history.Entry{{Popped: 100}}
	if d := history.RunDuration(entries, 130); d != 30 {
		t.Fatalf("duration = %d, want 30", d)
	}
	if d := history.RunDuration(nil, 130); d != 0 {
		t.Fatalf("duration = %d, want 0 for empty history", d)
	}
	if d := history.RunDuration([]history.Entry{{}}, 130); d != 0 {
		t.Fatalf("duration = %d, want 0 for never-popped entry", d)
	}
}

func TestPublishIfTracked(t *testing.T) {
	st := memstore.New("")
	ctx := context.Background()
	r := history.New("")

	st.Watch(ctx, nil, func(tx store.Tx) error {
		return r.PublishIfTracked(ctx, tx, "completed", "a")
	})
	if len(st.Published) != 0 {
		t.Fatalf("expected no publish for untracked jid, got %+v", st.Published)
	}

	st.Watch(ctx, nil, func(tx store.Tx) error {
		tx.ZAdd(store.TrackedKey(""), 1, "a")
		return nil
	})
	st.Watch(ctx, nil, func(tx store.Tx) error {
		return r.PublishIfTracked(ctx, tx, "completed", "a")
	})
	if len(st.Published) != 1 || st.Published[0].Payload != "a" || st.Published[0].Channel != "completed" {
		t.Fatalf("Published = %+v", st.Published)
	}
}
