// Package memstore is an in-process, mutex-protected implementation of
// store.Store, used for fast, deterministic unit tests of every
// component built on the store facade. It mirrors the module's teacher
// package's own store/memory backend, which exists for the same reason.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/qedge/jobcore/store"
)

// Store is a pure-Go, mutex-protected store.Store. Its Watch is a single
// mutex held for the callback's duration — safe because there is only
// one process, hence nothing else to serialize against.
type Store struct {
	// txMu serializes Watch calls; mu guards the maps for each
	// individual read and for the commit of a transaction's writes.
	txMu      sync.Mutex
	mu        sync.Mutex
	namespace string

	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	zsets  map[string]map[string]float64
	lists  map[string][]string

	subMu sync.Mutex
	subs  map[string][]chan string

	// Published records every message ever sent via Publish, in order,
	// for tests that want to assert on emitted events without racing a
	// subscriber goroutine.
	Published []PublishedMessage
}

// PublishedMessage records one call to Publish.
type PublishedMessage struct {
	Channel string
	Payload string
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store under the given key namespace.
func New(namespace string) *Store {
	return &Store{
		namespace: namespace,
		hashes:    make(map[string]map[string]string),
		sets:      make(map[string]map[string]struct{}),
		zsets:     make(map[string]map[string]float64),
		lists:     make(map[string][]string),
		subs:      make(map[string][]chan string),
	}
}

func (s *Store) Namespace() string { return s.namespace }

func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *Store) HGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked(key), nil
}

func (s *Store) existsLocked(key string) bool {
	if h, ok := s.hashes[key]; ok && len(h) > 0 {
		return true
	}
	if st, ok := s.sets[key]; ok && len(st) > 0 {
		return true
	}
	if z, ok := s.zsets[key]; ok && len(z) > 0 {
		return true
	}
	if l, ok := s.lists[key]; ok && len(l) > 0 {
		return true
	}
	return false
}

func (s *Store) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) SIsMember(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[key][member]
	return ok, nil
}

func (s *Store) SCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.sets[key])), nil
}

func (s *Store) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.zsets[key][member]
	return score, ok, nil
}

func (s *Store) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return zRangeByScoreLocked(s.zsets[key], min, max), nil
}

func zRangeByScoreLocked(z map[string]float64, min, max float64) []string {
	type pair struct {
		member string
		score  float64
	}
	pairs := make([]pair, 0, len(z))
	for m, sc := range z {
		if sc >= min && sc <= max {
			pairs = append(pairs, pair{m, sc})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score < pairs[j].score
		}
		return pairs[i].member < pairs[j].member
	})
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.member
	}
	return out
}

func (s *Store) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.zsets[key])), nil
}

func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[key]
	n := int64(len(l))
	start, stop = normalizeRange(start, stop, n)
	if start > stop || n == 0 {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out, nil
}

func normalizeRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

// Watch takes the store's transaction mutex for the duration of fn, then
// applies every write fn queued under the data mutex. Since only one
// Watch can run at a time in-process, there is nothing to retry: the
// "keys" argument is accepted for interface parity with redisstore but
// otherwise unused.
func (s *Store) Watch(ctx context.Context, _ []string, fn func(store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &txn{ctx: ctx, store: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.commitLocked()
	return nil
}

func (s *Store) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	out := make(chan string, 16)
	s.subMu.Lock()
	s.subs[channel] = append(s.subs[channel], out)
	s.subMu.Unlock()

	cancelled := make(chan struct{})
	cancel := func() {
		select {
		case <-cancelled:
			return
		default:
			close(cancelled)
		}
		s.subMu.Lock()
		defer s.subMu.Unlock()
		subs := s.subs[channel]
		for i, ch := range subs {
			if ch == out {
				s.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(out)
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-cancelled:
		}
	}()

	return out, cancel, nil
}

func (s *Store) publish(channel, payload string) {
	s.Published = append(s.Published, PublishedMessage{Channel: channel, Payload: payload})
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs[channel] {
		select {
		case ch <- payload:
		default:
			// slow subscriber; drop rather than block the transaction
		}
	}
}
