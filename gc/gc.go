// Package gc implements Completed-GC (spec.md §2/§4.3 step 8.d): bounding
// the retained completed-job set by age and count, cleaning tag indices
// on eviction. It runs as part of the same transaction as the complete
// operation that triggers it, not as a standalone background sweep.
package gc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/qedge/jobcore/queueconfig"
	"github.com/qedge/jobcore/store"
)

// Sweeper bounds the completed set for one namespace.
type Sweeper struct {
	namespace string
	cfg       queueconfig.Lookup
	logger    *slog.Logger
}

// New returns a Sweeper for the given key namespace, logging summaries
// to logger (slog.Default() if nil).
func New(namespace string, logger *slog.Logger) Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return Sweeper{namespace: namespace, cfg: queueconfig.New(namespace), logger: logger}
}

// Run evicts every completed jid older than the configured age bound,
// then trims any remaining excess beyond the configured count bound,
// oldest first. It must be called with a store.Tx belonging to the same
// transaction as the complete operation that triggered it.
func (s Sweeper) Run(ctx context.Context, tx store.Tx, now int64) error {
	ageSeconds, err := s.cfg.JobsHistorySeconds(ctx, tx)
	if err != nil {
		return fmt.Errorf("gc: resolve jobs-history: %w", err)
	}
	countLimit, err := s.cfg.JobsHistoryCount(ctx, tx)
	if err != nil {
		return fmt.Errorf("gc: resolve jobs-history-count: %w", err)
	}

	completedKey := store.CompletedKey(s.namespace)
	cutoff := now - ageSeconds

	aged, err := tx.ZRangeByScore(ctx, completedKey, math.Inf(-1), float64(cutoff-1))
	if err != nil {
		return fmt.Errorf("gc: list aged: %w", err)
	}

	total, err := tx.ZCard(ctx, completedKey)
	if err != nil {
		return fmt.Errorf("gc: count completed: %w", err)
	}

	evict := append([]string{}, aged...)
	remaining := total - int64(len(aged))
	var byCount int
	if remaining > countLimit {
		excess := remaining - countLimit
		rest, err := tx.ZRangeByScore(ctx, completedKey, float64(cutoff), math.Inf(1))
		if err != nil {
			return fmt.Errorf("gc: list remaining: %w", err)
		}
		if int64(len(rest)) < excess {
			excess = int64(len(rest))
		}
		evict = append(evict, rest[:excess]...)
		byCount = int(excess)
	}

	if len(evict) == 0 {
		return nil
	}

	for _, jid := range evict {
		if err := s.evict(ctx, tx, jid); err != nil {
			return err
		}
	}

	s.logger.Info("gc: sweep",
		"cycle", uuid.NewString(),
		"evicted_count", len(evict),
		"evicted_by_age", len(aged),
		"evicted_by_count", byCount,
	)
	return nil
}

func (s Sweeper) evict(ctx context.Context, tx store.Tx, jid string) error {
	jobKey := store.JobKey(s.namespace, jid)

	raw, ok, err := tx.HGet(ctx, jobKey, "tags")
	if err != nil {
		return fmt.Errorf("gc: read tags for %s: %w", jid, err)
	}
	if ok && raw != "" {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			return fmt.Errorf("gc: decode tags for %s: %w", jid, err)
		}
		for _, tag := range tags {
			tx.ZRem(store.TagKey(s.namespace, tag), jid)
			if err := s.decrementTagCount(ctx, tx, tag); err != nil {
				return err
			}
		}
	}

	tx.ZRem(store.CompletedKey(s.namespace), jid)
	tx.Del(jobKey, store.JobDependenciesKey(s.namespace, jid), store.JobDependentsKey(s.namespace, jid))
	return nil
}

// decrementTagCount lowers a tag's cardinality score in the global tags
// index by one, removing the tag entirely once it reaches zero.
func (s Sweeper) decrementTagCount(ctx context.Context, tx store.Tx, tag string) error {
	tagsKey := store.TagsKey(s.namespace)
	score, ok, err := tx.ZScore(ctx, tagsKey, tag)
	if err != nil {
		return fmt.Errorf("gc: read tag count for %s: %w", tag, err)
	}
	if !ok {
		return nil
	}
	if score-1 <= 0 {
		tx.ZRem(tagsKey, tag)
		return nil
	}
	tx.ZAdd(tagsKey, score-1, tag)
	return nil
}
