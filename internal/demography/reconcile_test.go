package demography

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/lock"
)

func TestReconcilePopulatesEmptyTile(t *testing.T) {
	e := newEnv(t)

	out, events, err := e.reconciler().Reconcile(context.Background(), 1, 20, today)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Before)
	assert.Equal(t, 20, out.Created)
	assert.Equal(t, 20, out.After)
	assert.Equal(t, 20, countEvents(events, EventBirth))

	n, err := e.store.LivingCount(1)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

func TestReconcileDeficitCreatesExactShortfall(t *testing.T) {
	e := newEnv(t)
	e.cfg.PregnancyChance = 0
	for i := 0; i < 50; i++ {
		e.addAdult(t, true, 1, today)
		e.addAdult(t, false, 1, today)
	}

	out, _, err := e.reconciler().Reconcile(context.Background(), 1, 120, today)
	require.NoError(t, err)
	assert.Equal(t, 100, out.Before)
	assert.Equal(t, 0, out.Born)
	assert.Equal(t, 20, out.Created)
	assert.Equal(t, 120, out.After)
}

func TestReconcileDrainsDueDeliveriesBeforeCreating(t *testing.T) {
	e := newEnv(t)
	e.cfg.PregnancyChance = 0
	e.addPregnant(t, 1, today, today) // two adults plus one due delivery

	out, events, err := e.reconciler().Reconcile(context.Background(), 1, 3, today)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Before)
	assert.Equal(t, 1, out.Born)
	assert.Equal(t, 0, out.Created)
	assert.Equal(t, 3, out.After)
	assert.Equal(t, 1, countEvents(events, EventBirth))
}

func TestReconcileSurplusRemovesOldestFirst(t *testing.T) {
	e := newEnv(t)
	eldest := e.addPerson(t, true, 1, calendar.Date{Year: 3950, Month: 1, Day: 1})
	second := e.addPerson(t, false, 1, calendar.Date{Year: 3960, Month: 1, Day: 1})
	young := e.addPerson(t, true, 1, calendar.Date{Year: 4010, Month: 1, Day: 1})

	out, events, err := e.reconciler().Reconcile(context.Background(), 1, 1, today)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Removed)
	assert.Equal(t, 1, out.After)
	assert.Equal(t, 2, countEvents(events, EventDeath))

	gotEldest, err := e.store.GetPerson(eldest.ID)
	require.NoError(t, err)
	assert.False(t, gotEldest.Alive)
	gotSecond, err := e.store.GetPerson(second.ID)
	require.NoError(t, err)
	assert.False(t, gotSecond.Alive)
	gotYoung, err := e.store.GetPerson(young.ID)
	require.NoError(t, err)
	assert.True(t, gotYoung.Alive)
}

func TestReconcileNoopAtTarget(t *testing.T) {
	e := newEnv(t)
	e.addAdult(t, true, 1, today)
	e.addAdult(t, false, 1, today)

	out, events, err := e.reconciler().Reconcile(context.Background(), 1, 2, today)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Before)
	assert.Equal(t, 2, out.After)
	assert.Empty(t, events)
}

func TestReconcileBusyTile(t *testing.T) {
	e := newEnv(t)

	key := lock.TileKey(1)
	token, ok := e.locks.Acquire(context.Background(), key, time.Minute, time.Millisecond, time.Millisecond)
	require.True(t, ok)
	defer e.locks.Release(key, token)

	_, _, err := e.reconciler().Reconcile(context.Background(), 1, 10, today)
	assert.ErrorIs(t, err, ErrTileBusy)

	n, err := e.store.LivingCount(1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReconcileCreatedResidentsNeverBornInFuture(t *testing.T) {
	e := newEnv(t)

	_, events, err := e.reconciler().Reconcile(context.Background(), 1, 50, today)
	require.NoError(t, err)

	for _, ev := range events {
		if ev.Type != EventBirth {
			continue
		}
		p, err := e.store.GetPerson(personID(t, ev))
		require.NoError(t, err)
		assert.False(t, p.Birth().After(today), "resident %d born in the future", p.ID)
	}
}
