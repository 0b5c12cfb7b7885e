package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// txn implements store.Tx. Reads go straight through to the watched
// client (or, outside a real WATCH, the plain client) since they observe
// a consistent snapshot for the lifetime of the callback; writes are
// buffered as pipeline closures and flushed together inside the
// enclosing TxPipelined block so they commit atomically.
type txn struct {
	ctx    context.Context
	rtx    *redis.Tx
	direct redis.Cmdable // used only when rtx is nil (no WATCH support)
	writes []func(redis.Pipeliner)
}

func (t *txn) cmdable() redis.Cmdable {
	if t.rtx != nil {
		return t.rtx
	}
	return t.direct
}

func (t *txn) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := t.cmdable().HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (t *txn) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := t.cmdable().HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (t *txn) Exists(ctx context.Context, key string) (bool, error) {
	n, err := t.cmdable().Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *txn) SMembers(ctx context.Context, key string) ([]string, error) {
	return t.cmdable().SMembers(ctx, key).Result()
}

func (t *txn) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return t.cmdable().SIsMember(ctx, key, member).Result()
}

func (t *txn) SCard(ctx context.Context, key string) (int64, error) {
	return t.cmdable().SCard(ctx, key).Result()
}

func (t *txn) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := t.cmdable().ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (t *txn) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return t.cmdable().ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
}

func (t *txn) ZCard(ctx context.Context, key string) (int64, error) {
	return t.cmdable().ZCard(ctx, key).Result()
}

func (t *txn) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return t.cmdable().LRange(ctx, key, start, stop).Result()
}

func (t *txn) HSet(key string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	kv := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	t.writes = append(t.writes, func(p redis.Pipeliner) { p.HSet(t.ctx, key, kv...) })
}

func (t *txn) HDel(key string, fields ...string) {
	if len(fields) == 0 {
		return
	}
	t.writes = append(t.writes, func(p redis.Pipeliner) { p.HDel(t.ctx, key, fields...) })
}

func (t *txn) HIncrBy(key, field string, delta int64) {
	t.writes = append(t.writes, func(p redis.Pipeliner) { p.HIncrBy(t.ctx, key, field, delta) })
}

func (t *txn) Del(keys ...string) {
	if len(keys) == 0 {
		return
	}
	t.writes = append(t.writes, func(p redis.Pipeliner) { p.Del(t.ctx, keys...) })
}

func (t *txn) SAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	vals := toAny(members)
	t.writes = append(t.writes, func(p redis.Pipeliner) { p.SAdd(t.ctx, key, vals...) })
}

func (t *txn) SRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	vals := toAny(members)
	t.writes = append(t.writes, func(p redis.Pipeliner) { p.SRem(t.ctx, key, vals...) })
}

func (t *txn) ZAdd(key string, score float64, member string) {
	t.writes = append(t.writes, func(p redis.Pipeliner) {
		p.ZAdd(t.ctx, key, redis.Z{Score: score, Member: member})
	})
}

func (t *txn) ZRem(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	vals := toAny(members)
	t.writes = append(t.writes, func(p redis.Pipeliner) { p.ZRem(t.ctx, key, vals...) })
}

func (t *txn) LPush(key string, values ...string) {
	if len(values) == 0 {
		return
	}
	vals := toAny(values)
	t.writes = append(t.writes, func(p redis.Pipeliner) { p.LPush(t.ctx, key, vals...) })
}

func (t *txn) Publish(channel, payload string) {
	t.writes = append(t.writes, func(p redis.Pipeliner) { p.Publish(t.ctx, channel, payload) })
}

func (t *txn) flush(pipe redis.Pipeliner) {
	for _, w := range t.writes {
		w(pipe)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
