// Package retry schedules deferred reattempts with exponential backoff and
// a hard permanent-failure cutoff.
//
// Attempt counts live in a fast-store hash; pending items live in a sorted
// set keyed by their next-eligible time. PopDue gives at-least-once
// semantics: a crash between the range read and the removal can hand the
// same item to a later poller, so consumers must be idempotent.
package retry

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/talgya/gridworld/internal/kvstore"
	"github.com/talgya/gridworld/internal/metrics"
)

const attemptsHash = "retry:attempts"

// Config bounds the retry policy for one class of items.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// Result reports the outcome of a Schedule call.
type Result struct {
	ShouldRetry        bool
	Attempt            int
	NextDelay          time.Duration
	MaxAttemptsReached bool
}

// Scheduler tracks attempts and queues deferred work.
type Scheduler struct {
	store kvstore.Store
	met   *metrics.Set
}

// NewScheduler creates a scheduler on the given store. met may be nil.
func NewScheduler(store kvstore.Store, met *metrics.Set) *Scheduler {
	return &Scheduler{store: store, met: met}
}

// Schedule records a failed attempt for itemID and, while the attempt count
// is within cfg.MaxAttempts, inserts it into queueKey at now + delay where
// delay = BaseDelay * Multiplier^(attempt-1). Once attempts exceed the
// maximum the item is marked permanently failed and never rescheduled.
// A store failure fails closed: the item is not retried.
func (s *Scheduler) Schedule(queueKey, itemID string, cfg Config, now time.Time) (Result, error) {
	attempt64, err := s.store.HIncr(attemptsHash, itemID, 1)
	if err != nil {
		slog.Error("retry schedule failed, item abandoned", "item", itemID, "error", err)
		return Result{}, fmt.Errorf("increment attempts for %s: %w", itemID, err)
	}
	attempt := int(attempt64)

	if attempt > cfg.MaxAttempts {
		if err := s.store.HDel(attemptsHash, itemID); err != nil {
			slog.Warn("retry attempt cleanup failed", "item", itemID, "error", err)
		}
		if _, err := s.store.Incr("retry:permanent_failures"); err != nil {
			slog.Warn("permanent failure count failed", "item", itemID, "error", err)
		}
		if s.met != nil {
			s.met.RetryPermanent.Inc()
		}
		slog.Warn("retry attempts exhausted", "item", itemID, "attempts", attempt-1)
		return Result{Attempt: attempt, MaxAttemptsReached: true}, nil
	}

	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
	score := float64(now.Add(delay).UnixMilli())
	if err := s.store.ZAdd(queueKey, itemID, score); err != nil {
		slog.Error("retry enqueue failed, item abandoned", "item", itemID, "queue", queueKey, "error", err)
		return Result{}, fmt.Errorf("enqueue %s on %s: %w", itemID, queueKey, err)
	}

	return Result{ShouldRetry: true, Attempt: attempt, NextDelay: delay}, nil
}

// PopDue returns and removes every item in queueKey whose scheduled time is
// at or before now. Two concurrent pollers racing on the same window may
// each claim different items; at most one removes any given item, and only
// removed items are returned.
func (s *Scheduler) PopDue(queueKey string, now time.Time) ([]string, error) {
	due, err := s.store.ZRangeByScore(queueKey, float64(now.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", queueKey, err)
	}

	var claimed []string
	for _, item := range due {
		removed, err := s.store.ZRem(queueKey, item)
		if err != nil {
			slog.Warn("retry dequeue failed", "item", item, "queue", queueKey, "error", err)
			continue
		}
		if removed {
			claimed = append(claimed, item)
		}
	}
	return claimed, nil
}

// Clear drops attempt tracking and queue membership for itemID after it has
// been processed successfully.
func (s *Scheduler) Clear(queueKey, itemID string) {
	if _, err := s.store.ZRem(queueKey, itemID); err != nil {
		slog.Warn("retry queue cleanup failed", "item", itemID, "error", err)
	}
	if err := s.store.HDel(attemptsHash, itemID); err != nil {
		slog.Warn("retry attempt cleanup failed", "item", itemID, "error", err)
	}
}
