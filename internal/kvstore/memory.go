package kvstore

import (
	"sort"
	"sync"
	"time"
)

type expiringValue struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// Memory is an in-process Store implementation. All operations take one
// mutex, which makes each primitive atomic exactly the way a shared
// key-value server would.
type Memory struct {
	mu       sync.Mutex
	values   map[string]expiringValue
	counters map[string]int64
	zsets    map[string]map[string]float64
	hashes   map[string]map[string]int64

	now func() time.Time // overridable in tests
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		values:   make(map[string]expiringValue),
		counters: make(map[string]int64),
		zsets:    make(map[string]map[string]float64),
		hashes:   make(map[string]map[string]int64),
		now:      time.Now,
	}
}

func (m *Memory) live(key string) (expiringValue, bool) {
	v, ok := m.values[key]
	if !ok {
		return expiringValue{}, false
	}
	if !v.expiresAt.IsZero() && !m.now().Before(v.expiresAt) {
		delete(m.values, key)
		return expiringValue{}, false
	}
	return v, true
}

// SetNX implements Store.
func (m *Memory) SetNX(key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}
	ev := expiringValue{value: value}
	if ttl > 0 {
		ev.expiresAt = m.now().Add(ttl)
	}
	m.values[key] = ev
	return true, nil
}

// Get implements Store.
func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return v.value, true, nil
}

// CompareAndDelete implements Store.
func (m *Memory) CompareAndDelete(key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.live(key)
	if !ok || v.value != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

// Incr implements Store.
func (m *Memory) Incr(key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[key]++
	return m.counters[key], nil
}

// ZAdd implements Store.
func (m *Memory) ZAdd(set, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	zs, ok := m.zsets[set]
	if !ok {
		zs = make(map[string]float64)
		m.zsets[set] = zs
	}
	zs[member] = score
	return nil
}

// ZRangeByScore implements Store.
func (m *Memory) ZRangeByScore(set string, max float64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	zs := m.zsets[set]
	type scored struct {
		member string
		score  float64
	}
	var due []scored
	for member, score := range zs {
		if score <= max {
			due = append(due, scored{member, score})
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].score != due[j].score {
			return due[i].score < due[j].score
		}
		return due[i].member < due[j].member
	})

	members := make([]string, len(due))
	for i, s := range due {
		members[i] = s.member
	}
	return members, nil
}

// ZRem implements Store.
func (m *Memory) ZRem(set, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	zs, ok := m.zsets[set]
	if !ok {
		return false, nil
	}
	if _, present := zs[member]; !present {
		return false, nil
	}
	delete(zs, member)
	return true, nil
}

// HIncr implements Store.
func (m *Memory) HIncr(hash, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hashes[hash]
	if !ok {
		h = make(map[string]int64)
		m.hashes[hash] = h
	}
	h[field] += delta
	return h[field], nil
}

// HDel implements Store.
func (m *Memory) HDel(hash, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.hashes[hash]; ok {
		delete(h, field)
	}
	return nil
}
