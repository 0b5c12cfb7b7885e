// Package redisstore is the canonical store.Store backend, wire-compatible
// with the exact key layout of spec.md §6. It is built on
// github.com/redis/go-redis/v9, the same driver the module's teacher
// package uses for its own Redis-backed store.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/qedge/jobcore/store"
)

// maxWatchRetries bounds the read-decide-write retry loop Watch runs
// when a concurrent writer invalidates the watched keys. It is not
// configurable: a caller that needs more than this many retries under
// contention has a design problem outside this package's remit.
const maxWatchRetries = 16

// Option configures a Store at construction.
type Option func(*Store)

// WithLogger sets the structured logger used for retry/backend warnings.
// Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is a store.Store backed by a live Redis connection.
type Store struct {
	client    redis.Cmdable
	namespace string
	logger    *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New wraps an existing redis.Cmdable (a *redis.Client or
// *redis.ClusterClient) as a store.Store under the given key namespace.
func New(client redis.Cmdable, namespace string, opts ...Option) *Store {
	s := &Store{client: client, namespace: namespace, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespace returns the key-prefix this Store was constructed with.
func (s *Store) Namespace() string { return s.namespace }

// Ping checks connectivity to the backing Redis instance.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: hgetall %s: %w", key, err)
	}
	return m, nil
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redisstore: hget %s %s: %w", key, field, err)
	}
	return v, true, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	m, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: smembers %s: %w", key, err)
	}
	return m, nil
}

func (s *Store) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: sismember %s: %w", key, err)
	}
	return ok, nil
}

func (s *Store) SCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: scard %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redisstore: zscore %s %s: %w", key, member, err)
	}
	return score, true, nil
}

func (s *Store) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	m, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: zrangebyscore %s: %w", key, err)
	}
	return m, nil
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: zcard %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: lrange %s: %w", key, err)
	}
	return m, nil
}

// Subscribe wraps a native Redis pub/sub channel subscription, translating
// *redis.Message into plain payload strings.
func (s *Store) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	client, ok := s.client.(*redis.Client)
	if !ok {
		return nil, nil, fmt.Errorf("redisstore: subscribe %s: client does not support pub/sub", channel)
	}
	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redisstore: subscribe %s: %w", channel, err)
	}

	out := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-done:
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		select {
		case <-done:
			return
		default:
			close(done)
		}
		_ = sub.Close()
	}
	return out, cancel, nil
}

// Watch runs fn against a Redis MULTI/EXEC transaction guarded by
// WATCH on keys, retrying the whole read-decide-write cycle when a
// concurrent writer changes a watched key before EXEC. This is the
// standard go-redis optimistic-concurrency idiom and is how this
// package recovers the atomicity spec.md's source gets from an
// embedded server-side script — see DESIGN.md.
func (s *Store) Watch(ctx context.Context, keys []string, fn func(store.Tx) error) error {
	client, ok := s.client.(*redis.Client)
	if !ok {
		return s.watchNoRetry(ctx, fn)
	}

	var lastErr error
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		txf := func(rtx *redis.Tx) error {
			tx := &txn{ctx: ctx, rtx: rtx}
			if err := fn(tx); err != nil {
				return err
			}
			_, pipeErr := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				tx.flush(pipe)
				return nil
			})
			return pipeErr
		}

		err := client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			lastErr = err
			s.logger.Debug("redisstore: watch retry", "attempt", attempt, "keys", keys)
			continue
		}
		return err
	}
	return fmt.Errorf("redisstore: watch: exceeded %d retries on %v: %w", maxWatchRetries, keys, lastErr)
}

// watchNoRetry is used when the underlying Cmdable isn't a *redis.Client
// (e.g. a cluster client or a test double) and therefore lacks WATCH
// support; it runs fn once against a bare pipeline, which is only safe
// when the caller cannot race itself (tests, single-writer setups).
func (s *Store) watchNoRetry(ctx context.Context, fn func(store.Tx) error) error {
	tx := &txn{ctx: ctx, rtx: nil, direct: s.client}
	if err := fn(tx); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	tx.flush(pipe)
	_, err := pipe.Exec(ctx)
	return err
}

func formatScore(f float64) string {
	return fmt.Sprintf("%.17g", f)
}
