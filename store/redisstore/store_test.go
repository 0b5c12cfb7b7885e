package redisstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/qedge/jobcore/store"
	"github.com/qedge/jobcore/store/redisstore"
)

// newTestStore boots a disposable Redis container and returns a Store
// against it. Skipped under -short, since it needs a container runtime.
func newTestStore(t *testing.T) *redisstore.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redisstore integration test in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	s := redisstore.New(client, "jc-test:")
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return s
}

func TestRedisStore_WatchCommitsAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Watch(ctx, []string{"j:a"}, func(tx store.Tx) error {
		tx.HSet("j:a", map[string]string{"state": "running"})
		tx.ZAdd("ql:q1-work", 1.5, "a")
		return nil
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	fields, err := s.HGetAll(ctx, "j:a")
	if err != nil || fields["state"] != "running" {
		t.Fatalf("fields = %v err=%v", fields, err)
	}
	score, ok, err := s.ZScore(ctx, "ql:q1-work", "a")
	if err != nil || !ok || score != 1.5 {
		t.Fatalf("score=%v ok=%v err=%v", score, ok, err)
	}
}

func TestRedisStore_WatchRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sentinel := errors.New("boom")

	err := s.Watch(ctx, []string{"j:b"}, func(tx store.Tx) error {
		tx.HSet("j:b", map[string]string{"state": "running"})
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	exists, err := s.Exists(ctx, "j:b")
	if err != nil || exists {
		t.Fatalf("exists=%v err=%v, want false", exists, err)
	}
}

func TestRedisStore_ConcurrentWatchesSerializeOnKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Watch(ctx, []string{"j:c"}, func(tx store.Tx) error {
		tx.HSet("j:c", map[string]string{"counter": "0"})
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	const n = 20
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			errCh <- s.Watch(ctx, []string{"j:c"}, func(tx store.Tx) error {
				tx.HIncrBy("j:c", "counter", 1)
				return nil
			})
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("concurrent watch %d: %v", i, err)
		}
	}

	v, _, err := s.HGet(ctx, "j:c", "counter")
	if err != nil || v != "20" {
		t.Fatalf("counter = %q err=%v, want 20", v, err)
	}
}

func TestRedisStore_SubscribeReceivesPublish(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msgs, unsub, err := s.Subscribe(ctx, "jc-test-log")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	// Subscribe's Receive confirmation makes the subsequent publish
	// deterministic, but leave a moment for the pub/sub fan-out.
	time.Sleep(50 * time.Millisecond)

	err = s.Watch(ctx, nil, func(tx store.Tx) error {
		tx.Publish("jc-test-log", "hello")
		return nil
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	select {
	case got := <-msgs:
		if got != "hello" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}
