// Package store defines the storage primitives the job-queue engine's
// components are built against: hashes, sorted sets, sets, lists, and
// pub/sub, plus a single transactional seam (Watch) that every mutating
// job operation uses to get all-or-nothing semantics.
//
// Two backends implement Store: store/redisstore (the canonical,
// wire-compatible backend) and store/memstore (an in-process backend for
// tests). Every other package in this module is written once against
// the Store/Tx interfaces below; their unit tests run against
// store/memstore.
package store

import "context"

// Reader is the read-side of the store, available both outside a
// transaction (for exploratory reads, e.g. before opening a Watch) and
// inside one (via Tx, where reads observe the transaction's snapshot).
type Reader interface {
	// HGetAll returns every field of a hash, or an empty map if the key
	// does not exist.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HGet returns a single field of a hash. ok is false if the key or
	// field does not exist.
	HGet(ctx context.Context, key, field string) (value string, ok bool, err error)

	// Exists reports whether key exists (as any type).
	Exists(ctx context.Context, key string) (bool, error)

	// SMembers returns every member of a set, or an empty slice if it
	// does not exist.
	SMembers(ctx context.Context, key string) ([]string, error)

	// SIsMember reports whether member is present in the set at key.
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// SCard returns the cardinality of the set at key.
	SCard(ctx context.Context, key string) (int64, error)

	// ZScore returns the score of member in the sorted set at key. ok is
	// false if the member is absent.
	ZScore(ctx context.Context, key, member string) (score float64, ok bool, err error)

	// ZRangeByScore returns members with score in [min, max], ascending.
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	// ZCard returns the cardinality of the sorted set at key.
	ZCard(ctx context.Context, key string) (int64, error)

	// LRange returns the list elements between start and stop
	// (inclusive, 0-indexed, negative indices count from the tail — the
	// same semantics as Redis LRANGE).
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// Writer is the write side of a transaction. Every call queues a
// mutation that is applied atomically, alongside every other queued
// mutation in the same Tx, when the enclosing Watch's function returns
// nil. Writer methods do not themselves return errors: a malformed
// argument is a programmer error caught by tests, not a runtime
// condition callers need to branch on.
type Writer interface {
	// HSet sets one or more fields of a hash, creating it if absent.
	HSet(key string, fields map[string]string)

	// HDel deletes one or more fields from a hash.
	HDel(key string, fields ...string)

	// HIncrBy atomically increments an integer hash field, creating the
	// field (from 0) if absent.
	HIncrBy(key, field string, delta int64)

	// Del deletes one or more keys outright, regardless of type.
	Del(keys ...string)

	// SAdd adds one or more members to a set, creating it if absent.
	SAdd(key string, members ...string)

	// SRem removes one or more members from a set.
	SRem(key string, members ...string)

	// ZAdd sets member's score in a sorted set, creating it if absent.
	ZAdd(key string, score float64, member string)

	// ZRem removes one or more members from a sorted set.
	ZRem(key string, members ...string)

	// LPush prepends one or more values to a list.
	LPush(key string, values ...string)

	// Publish sends payload to a pub/sub channel. Delivery is
	// best-effort and has no bearing on the transaction's outcome.
	Publish(channel, payload string)
}

// Tx is the view of the store available inside a Watch callback: reads
// against the transaction's snapshot, and writes queued for atomic
// application.
type Tx interface {
	Reader
	Writer
}

// Store is the full store facade every component (queueconfig,
// queueview, depgraph, history, gc, job) is written against.
type Store interface {
	Reader

	// Namespace returns the key-prefix this Store was constructed with,
	// e.g. "" or "myapp:".
	Namespace() string

	// Watch executes fn as a single atomic transaction. keys names every
	// key whose value fn's decision depends on; a backend that supports
	// optimistic concurrency (redisstore) re-runs fn from scratch if any
	// of keys changed between the read and the commit. fn must be
	// idempotent and free of side effects visible outside the Tx it is
	// given, since it may run more than once per call to Watch.
	//
	// If fn returns a non-nil error, no writes are applied and Watch
	// returns that error unwrapped (callers use errors.Is/As against it
	// directly). Watch itself only wraps backend-level failures (network
	// errors, exceeded retry budget).
	Watch(ctx context.Context, keys []string, fn func(Tx) error) error

	// Subscribe registers for messages published to channel. The
	// returned channel is closed, and the cancel func becomes a no-op,
	// once cancel is called or ctx is done. Subscribe exists primarily
	// for tests observing the events a job operation publishes.
	Subscribe(ctx context.Context, channel string) (msgs <-chan string, cancel func(), err error)
}
