// Package lock provides key-scoped mutual exclusion with TTL-bound
// ownership tokens on top of the shared fast-store.
//
// Contention is an expected outcome here, not an error: Acquire polls until
// its timeout and then reports "not acquired", leaving the caller to skip
// the unit of work or try again next cycle. TTLs bound how long a crashed
// holder can wedge a key; a holder that overruns its TTL may find its
// release is a no-op because the key was reassigned.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/gridworld/internal/kvstore"
	"github.com/talgya/gridworld/internal/metrics"
)

// Manager coordinates exclusive ownership of string keys.
type Manager struct {
	store      kvstore.Store
	met        *metrics.Set
	contention atomic.Int64
}

// NewManager creates a lock manager on the given store. met may be nil.
func NewManager(store kvstore.Store, met *metrics.Set) *Manager {
	return &Manager{store: store, met: met}
}

// Acquire claims exclusive ownership of key, returning an opaque token that
// must be presented to Release. On conflict it polls every retryDelay until
// acquireTimeout elapses or ctx is done, then returns ok=false. Timing out
// is a normal outcome, never an error.
func (m *Manager) Acquire(ctx context.Context, key string, ttl, acquireTimeout, retryDelay time.Duration) (token string, ok bool) {
	token = uuid.NewString()
	deadline := time.Now().Add(acquireTimeout)

	for {
		stored, err := m.store.SetNX(key, token, ttl)
		if err != nil {
			slog.Warn("lock acquire store error", "key", key, "error", err)
			m.recordContention()
			return "", false
		}
		if stored {
			return token, true
		}

		if time.Now().After(deadline) {
			m.recordContention()
			return "", false
		}

		select {
		case <-ctx.Done():
			m.recordContention()
			return "", false
		case <-time.After(retryDelay):
		}
	}
}

// Release gives up ownership of key. It succeeds only when token matches
// the live holder; a stale token (TTL expired and the key reassigned) is a
// benign no-op logged at warning level.
func (m *Manager) Release(key, token string) bool {
	removed, err := m.store.CompareAndDelete(key, token)
	if err != nil {
		slog.Warn("lock release store error", "key", key, "error", err)
		return false
	}
	if !removed {
		slog.Warn("lock release skipped: token no longer holds key", "key", key)
	}
	return removed
}

// Contention returns how many acquisitions have timed out or failed.
func (m *Manager) Contention() int64 {
	return m.contention.Load()
}

func (m *Manager) recordContention() {
	m.contention.Add(1)
	if m.met != nil {
		m.met.LockContention.Inc()
	}
}

// CoupleKey forms the canonical lock key for an unordered pair of people.
// The identifiers are sorted ascending so CoupleKey(a, b) == CoupleKey(b, a),
// which prevents circular waits between two pairing attempts racing in
// opposite order.
func CoupleKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("lock:couple:%d:%d", a, b)
}

// TileKey forms the sync lock key serializing reconciliation for a tile.
func TileKey(tileID int) string {
	return fmt.Sprintf("lock:reconcile:%d", tileID)
}

// FamilyKey forms the lock key guarding one family's delivery.
func FamilyKey(familyID int64) string {
	return fmt.Sprintf("lock:family:%d", familyID)
}
