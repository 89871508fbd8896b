// Package kvstore defines the shared fast-store the coordination layer
// runs on: expiring keys for locks, counters, sorted sets for the retry
// queue, and hash fields for attempt tracking. Each primitive is atomic on
// its own; callers compose them and must tolerate at-least-once effects.
package kvstore

import "time"

// Store is the shared fast-store collaborator.
type Store interface {
	// SetNX stores value under key with a TTL, only if the key is absent
	// or expired. Returns true if the value was stored.
	SetNX(key, value string, ttl time.Duration) (bool, error)

	// Get returns the live (unexpired) value for key.
	Get(key string) (value string, ok bool, err error)

	// CompareAndDelete removes key only if its live value equals value.
	// Returns true if the key was removed.
	CompareAndDelete(key, value string) (bool, error)

	// Incr atomically increments the counter at key and returns the
	// new value.
	Incr(key string) (int64, error)

	// ZAdd inserts member into the sorted set with the given score,
	// replacing any previous score.
	ZAdd(set, member string, score float64) error

	// ZRangeByScore returns members with score <= max, in score order.
	ZRangeByScore(set string, max float64) ([]string, error)

	// ZRem removes member from the sorted set. Returns true if the
	// member was present; under concurrent pollers at most one caller
	// sees true for a given member.
	ZRem(set, member string) (bool, error)

	// HIncr atomically adds delta to a hash field and returns the
	// new value.
	HIncr(hash, field string, delta int64) (int64, error)

	// HDel removes a hash field.
	HDel(hash, field string) error
}
