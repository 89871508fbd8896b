package people

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridworld/internal/calendar"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func addPerson(t *testing.T, st *Store, male bool, tileID int, birth calendar.Date) Person {
	t.Helper()
	p := Person{
		FirstName:  "Test",
		LastName:   "Person",
		Male:       male,
		TileID:     tileID,
		Alive:      true,
		BirthYear:  birth.Year,
		BirthMonth: birth.Month,
		BirthDay:   birth.Day,
	}
	_, err := st.InsertPerson(&p)
	require.NoError(t, err)
	return p
}

func TestInsertAndGetPerson(t *testing.T) {
	st := newTestStore(t)
	p := addPerson(t, st, true, 3, calendar.Date{Year: 4000, Month: 2, Day: 5})

	got, err := st.GetPerson(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, 3, got.TileID)
	assert.True(t, got.Male)
	assert.Equal(t, calendar.Date{Year: 4000, Month: 2, Day: 5}, got.Birth())

	_, err = st.GetPerson(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEligibleAdultsCutoff(t *testing.T) {
	st := newTestStore(t)
	cutoff := calendar.Date{Year: 4000, Month: 6, Day: 4}

	onCutoff := addPerson(t, st, true, 1, cutoff)
	before := addPerson(t, st, false, 1, calendar.Date{Year: 3990, Month: 1, Day: 1})
	addPerson(t, st, true, 1, calendar.Date{Year: 4000, Month: 6, Day: 5})  // one day too young
	addPerson(t, st, true, 2, calendar.Date{Year: 3990, Month: 1, Day: 1}) // wrong tile

	eligible, err := st.EligibleAdults(1, cutoff)
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	ids := []PersonID{eligible[0].ID, eligible[1].ID}
	assert.Contains(t, ids, onCutoff.ID)
	assert.Contains(t, ids, before.ID)
}

func TestEligibleAdultsExcludesMarriedAndDead(t *testing.T) {
	st := newTestStore(t)
	birth := calendar.Date{Year: 3980, Month: 1, Day: 1}
	today := calendar.Date{Year: 4020, Month: 1, Day: 1}

	h := addPerson(t, st, true, 1, birth)
	w := addPerson(t, st, false, 1, birth)
	single := addPerson(t, st, true, 1, birth)
	dead := addPerson(t, st, false, 1, birth)

	_, err := st.InsertFamily(h.ID, w.ID, 1, today, true)
	require.NoError(t, err)
	require.NoError(t, st.MarkDead([]PersonID{dead.ID}))

	eligible, err := st.EligibleAdults(1, today)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, single.ID, eligible[0].ID)
}

func TestInsertFamilyRejectsTakenSpouse(t *testing.T) {
	st := newTestStore(t)
	birth := calendar.Date{Year: 3980, Month: 1, Day: 1}
	today := calendar.Date{Year: 4020, Month: 1, Day: 1}

	h := addPerson(t, st, true, 1, birth)
	w := addPerson(t, st, false, 1, birth)
	other := addPerson(t, st, false, 1, birth)

	fam, err := st.InsertFamily(h.ID, w.ID, 1, today, true)
	require.NoError(t, err)
	assert.True(t, fam.Active)
	assert.Equal(t, Childless, fam.Pregnancy)

	// The husband is taken now: the second insert fails and writes nothing.
	_, err = st.InsertFamily(h.ID, other.ID, 1, today, true)
	assert.ErrorIs(t, err, ErrSpouseTaken)

	got, err := st.GetPerson(other.ID)
	require.NoError(t, err)
	assert.Nil(t, got.FamilyID)
}

func TestInsertFamilyRejectsDeadSpouse(t *testing.T) {
	st := newTestStore(t)
	birth := calendar.Date{Year: 3980, Month: 1, Day: 1}
	today := calendar.Date{Year: 4020, Month: 1, Day: 1}

	h := addPerson(t, st, true, 1, birth)
	w := addPerson(t, st, false, 1, birth)
	require.NoError(t, st.MarkDead([]PersonID{w.ID}))

	_, err := st.InsertFamily(h.ID, w.ID, 1, today, true)
	assert.ErrorIs(t, err, ErrSpouseTaken)
}

func TestPregnancyTransitions(t *testing.T) {
	st := newTestStore(t)
	birth := calendar.Date{Year: 3980, Month: 1, Day: 1}
	today := calendar.Date{Year: 4020, Month: 1, Day: 1}
	due := today.AddMonths(9)

	h := addPerson(t, st, true, 1, birth)
	w := addPerson(t, st, false, 1, birth)
	fam, err := st.InsertFamily(h.ID, w.ID, 1, today, true)
	require.NoError(t, err)

	ok, err := st.SetPregnant(fam.ID, due)
	require.NoError(t, err)
	assert.True(t, ok)

	// Guarded transition: a second start loses.
	ok, err = st.SetPregnant(fam.ID, due)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := st.GetFamily(fam.ID)
	require.NoError(t, err)
	gotDue, pregnant := got.DueDate()
	require.True(t, pregnant)
	assert.Equal(t, due, gotDue)

	ok, err = st.SetChildless(fam.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.SetChildless(fam.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDueFamilies(t *testing.T) {
	st := newTestStore(t)
	birth := calendar.Date{Year: 3980, Month: 1, Day: 1}
	today := calendar.Date{Year: 4020, Month: 1, Day: 1}

	mk := func(due calendar.Date) Family {
		h := addPerson(t, st, true, 1, birth)
		w := addPerson(t, st, false, 1, birth)
		fam, err := st.InsertFamily(h.ID, w.ID, 1, today, true)
		require.NoError(t, err)
		ok, err := st.SetPregnant(fam.ID, due)
		require.NoError(t, err)
		require.True(t, ok)
		return fam
	}

	dueNow := mk(today)
	duePast := mk(today.AddDays(-10))
	mk(today.AddDays(1)) // not yet due

	due, err := st.DueFamilies(1, today)
	require.NoError(t, err)
	require.Len(t, due, 2)
	ids := []FamilyID{due[0].ID, due[1].ID}
	assert.Contains(t, ids, dueNow.ID)
	assert.Contains(t, ids, duePast.ID)

	pending, err := st.PendingDeliveries(1)
	require.NoError(t, err)
	assert.Equal(t, 3, pending)
}

func TestMarkDeadWidowsSpouse(t *testing.T) {
	st := newTestStore(t)
	birth := calendar.Date{Year: 3980, Month: 1, Day: 1}
	today := calendar.Date{Year: 4020, Month: 1, Day: 1}

	h := addPerson(t, st, true, 1, birth)
	w := addPerson(t, st, false, 1, birth)
	fam, err := st.InsertFamily(h.ID, w.ID, 1, today, true)
	require.NoError(t, err)

	require.NoError(t, st.MarkDead([]PersonID{h.ID}))

	gotH, err := st.GetPerson(h.ID)
	require.NoError(t, err)
	assert.False(t, gotH.Alive)
	assert.Nil(t, gotH.FamilyID)

	// Widow is alive, unmarried, and eligible again.
	gotW, err := st.GetPerson(w.ID)
	require.NoError(t, err)
	assert.True(t, gotW.Alive)
	assert.Nil(t, gotW.FamilyID)

	gotFam, err := st.GetFamily(fam.ID)
	require.NoError(t, err)
	assert.False(t, gotFam.Active)

	eligible, err := st.EligibleAdults(1, today)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, w.ID, eligible[0].ID)
}

func TestOldestLiving(t *testing.T) {
	st := newTestStore(t)
	old := addPerson(t, st, true, 1, calendar.Date{Year: 3950, Month: 1, Day: 1})
	older := addPerson(t, st, false, 1, calendar.Date{Year: 3940, Month: 8, Day: 2})
	addPerson(t, st, true, 1, calendar.Date{Year: 4000, Month: 1, Day: 1})

	got, err := st.OldestLiving(1, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, older.ID, got[0].ID)
	assert.Equal(t, old.ID, got[1].ID)
}

func TestDemographicsAndCounts(t *testing.T) {
	st := newTestStore(t)
	birth := calendar.Date{Year: 3980, Month: 1, Day: 1}
	today := calendar.Date{Year: 4020, Month: 1, Day: 1}

	h := addPerson(t, st, true, 1, birth)
	w := addPerson(t, st, false, 1, birth)
	addPerson(t, st, false, 2, birth)
	fam, err := st.InsertFamily(h.ID, w.ID, 1, today, true)
	require.NoError(t, err)
	_, err = st.SetPregnant(fam.ID, today.AddMonths(9))
	require.NoError(t, err)

	d, err := st.Demographics()
	require.NoError(t, err)
	assert.Equal(t, 3, d.Population)
	assert.Equal(t, 1, d.Males)
	assert.Equal(t, 2, d.Females)
	assert.Equal(t, 2, d.Married)
	assert.Equal(t, 1, d.Pregnant)

	byTile, err := st.LivingByTile()
	require.NoError(t, err)
	assert.Equal(t, map[int]int{1: 2, 2: 1}, byTile)

	n, err := st.LivingCount(1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEventLogAndMeta(t *testing.T) {
	st := newTestStore(t)

	pid := int64(12)
	rows := []EventRow{
		{Type: "marriage", Year: 4000, Month: 1, Day: 1},
		{Type: "birth", Year: 4000, Month: 1, Day: 2, PersonID: &pid},
	}
	require.NoError(t, st.InsertEvents(rows))

	got, err := st.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "birth", got[0].Type) // newest first
	require.NotNil(t, got[0].PersonID)
	assert.Equal(t, pid, *got[0].PersonID)

	_, err = st.GetMeta("calendar_date")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.SaveMeta("calendar_date", "4000-01-02"))
	v, err := st.GetMeta("calendar_date")
	require.NoError(t, err)
	assert.Equal(t, "4000-01-02", v)
}
