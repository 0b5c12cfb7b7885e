package memstore

import (
	"context"
	"strconv"
)

// txn implements store.Tx inside a Watch, which holds the Store's
// transaction mutex. Reads go through the Store's own read methods and
// see no concurrent writes, since writes only happen in a Watch commit;
// writes are buffered as closures and only applied by commitLocked, so
// a callback that returns an error leaves the store byte-for-byte
// unchanged.
type txn struct {
	ctx    context.Context
	store  *Store
	writes []func()
}

func (t *txn) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return t.store.HGetAll(ctx, key)
}

func (t *txn) HGet(ctx context.Context, key, field string) (string, bool, error) {
	return t.store.HGet(ctx, key, field)
}

func (t *txn) Exists(ctx context.Context, key string) (bool, error) {
	return t.store.Exists(ctx, key)
}

func (t *txn) SMembers(ctx context.Context, key string) ([]string, error) {
	return t.store.SMembers(ctx, key)
}

func (t *txn) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return t.store.SIsMember(ctx, key, member)
}

func (t *txn) SCard(ctx context.Context, key string) (int64, error) {
	return t.store.SCard(ctx, key)
}

func (t *txn) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	return t.store.ZScore(ctx, key, member)
}

func (t *txn) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return t.store.ZRangeByScore(ctx, key, min, max)
}

func (t *txn) ZCard(ctx context.Context, key string) (int64, error) {
	return t.store.ZCard(ctx, key)
}

func (t *txn) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return t.store.LRange(ctx, key, start, stop)
}

func (t *txn) HSet(key string, fields map[string]string) {
	t.writes = append(t.writes, func() {
		h, ok := t.store.hashes[key]
		if !ok {
			h = make(map[string]string, len(fields))
			t.store.hashes[key] = h
		}
		for k, v := range fields {
			h[k] = v
		}
	})
}

func (t *txn) HDel(key string, fields ...string) {
	t.writes = append(t.writes, func() {
		h := t.store.hashes[key]
		for _, f := range fields {
			delete(h, f)
		}
	})
}

func (t *txn) HIncrBy(key, field string, delta int64) {
	t.writes = append(t.writes, func() {
		h, ok := t.store.hashes[key]
		if !ok {
			h = make(map[string]string)
			t.store.hashes[key] = h
		}
		cur, _ := strconv.ParseInt(h[field], 10, 64)
		h[field] = strconv.FormatInt(cur+delta, 10)
	})
}

func (t *txn) Del(keys ...string) {
	t.writes = append(t.writes, func() {
		for _, key := range keys {
			delete(t.store.hashes, key)
			delete(t.store.sets, key)
			delete(t.store.zsets, key)
			delete(t.store.lists, key)
		}
	})
}

func (t *txn) SAdd(key string, members ...string) {
	t.writes = append(t.writes, func() {
		set, ok := t.store.sets[key]
		if !ok {
			set = make(map[string]struct{}, len(members))
			t.store.sets[key] = set
		}
		for _, m := range members {
			set[m] = struct{}{}
		}
	})
}

func (t *txn) SRem(key string, members ...string) {
	t.writes = append(t.writes, func() {
		set := t.store.sets[key]
		for _, m := range members {
			delete(set, m)
		}
	})
}

func (t *txn) ZAdd(key string, score float64, member string) {
	t.writes = append(t.writes, func() {
		z, ok := t.store.zsets[key]
		if !ok {
			z = make(map[string]float64)
			t.store.zsets[key] = z
		}
		z[member] = score
	})
}

func (t *txn) ZRem(key string, members ...string) {
	t.writes = append(t.writes, func() {
		z := t.store.zsets[key]
		for _, m := range members {
			delete(z, m)
		}
	})
}

func (t *txn) LPush(key string, values ...string) {
	t.writes = append(t.writes, func() {
		l := t.store.lists[key]
		for _, v := range values {
			l = append([]string{v}, l...)
		}
		t.store.lists[key] = l
	})
}

func (t *txn) Publish(channel, payload string) {
	t.writes = append(t.writes, func() {
		t.store.publish(channel, payload)
	})
}

func (t *txn) commitLocked() {
	for _, w := range t.writes {
		w()
	}
}
