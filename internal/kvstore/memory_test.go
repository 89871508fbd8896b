package kvstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozenMemory(at time.Time) (*Memory, *time.Time) {
	now := at
	m := NewMemory()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestSetNXOnlyFirstWins(t *testing.T) {
	m := NewMemory()

	ok, err := m.SetNX("k", "a", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetNX("k", "b", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	v, found, err := m.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", v)
}

func TestSetNXExpiry(t *testing.T) {
	m, now := frozenMemory(time.Unix(1000, 0))

	ok, err := m.SetNX("k", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Still held just under the TTL.
	*now = now.Add(999 * time.Millisecond)
	ok, err = m.SetNX("k", "b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// At the TTL the key lapses and a new writer wins.
	*now = now.Add(time.Millisecond)
	ok, err = m.SetNX("k", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	v, found, err := m.Get("k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", v)
}

func TestCompareAndDelete(t *testing.T) {
	m := NewMemory()
	_, err := m.SetNX("k", "tok", 0)
	require.NoError(t, err)

	ok, err := m.CompareAndDelete("k", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.CompareAndDelete("k", "tok")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CompareAndDelete("k", "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncr(t *testing.T) {
	m := NewMemory()
	for want := int64(1); want <= 3; want++ {
		got, err := m.Incr("c")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSortedSetRangeAndRemove(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.ZAdd("q", "late", 300))
	require.NoError(t, m.ZAdd("q", "early", 100))
	require.NoError(t, m.ZAdd("q", "mid", 200))

	due, err := m.ZRangeByScore("q", 250)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "mid"}, due)

	removed, err := m.ZRem("q", "early")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = m.ZRem("q", "early")
	require.NoError(t, err)
	assert.False(t, removed)

	due, err = m.ZRangeByScore("q", 1000)
	require.NoError(t, err)
	assert.Equal(t, []string{"mid", "late"}, due)
}

func TestZAddUpdatesScore(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.ZAdd("q", "x", 100))
	require.NoError(t, m.ZAdd("q", "x", 500))

	due, err := m.ZRangeByScore("q", 200)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestHashIncrAndDelete(t *testing.T) {
	m := NewMemory()

	n, err := m.HIncr("h", "f", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.HIncr("h", "f", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, m.HDel("h", "f"))

	n, err = m.HIncr("h", "f", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
