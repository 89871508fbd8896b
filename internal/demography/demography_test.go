package demography

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/entropy"
	"github.com/talgya/gridworld/internal/kvstore"
	"github.com/talgya/gridworld/internal/lock"
	"github.com/talgya/gridworld/internal/metrics"
	"github.com/talgya/gridworld/internal/people"
	"github.com/talgya/gridworld/internal/retry"
)

type env struct {
	store   *people.Store
	kv      *kvstore.Memory
	locks   *lock.Manager
	retries *retry.Scheduler
	rng     *entropy.Source
	met     *metrics.Set
	cfg     Config
}

// newEnv builds the coordination stack on a throwaway database with lock
// timings tightened so contention tests finish quickly.
func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := people.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	kv := kvstore.NewMemory()
	met := metrics.New(prometheus.NewRegistry())
	cfg := DefaultConfig()
	cfg.AcquireTimeout = 20 * time.Millisecond
	cfg.ReconcileWaitTimeout = 20 * time.Millisecond
	cfg.RetryDelay = time.Millisecond

	return &env{
		store:   store,
		kv:      kv,
		locks:   lock.NewManager(kv, met),
		retries: retry.NewScheduler(kv, met),
		rng:     entropy.NewSource(42),
		met:     met,
		cfg:     cfg,
	}
}

func (e *env) orchestrator() *Orchestrator {
	return NewOrchestrator(e.store, e.locks, e.rng, e.met, e.cfg)
}

func (e *env) deliveries() *DeliveryProcessor {
	return NewDeliveryProcessor(e.store, e.locks, e.retries, e.rng, e.met, e.cfg)
}

func (e *env) reconciler() *Reconciler {
	return NewReconciler(e.store, e.locks, e.deliveries(), e.orchestrator(), nil, e.rng, e.met, e.cfg)
}

func (e *env) addAdult(t *testing.T, male bool, tileID int, today calendar.Date) people.Person {
	t.Helper()
	return e.addPerson(t, male, tileID, calendar.Date{Year: today.Year - 25, Month: 1, Day: 1})
}

func (e *env) addPerson(t *testing.T, male bool, tileID int, birth calendar.Date) people.Person {
	t.Helper()
	p := people.Person{
		FirstName:  "Test",
		LastName:   "Resident",
		Male:       male,
		TileID:     tileID,
		Alive:      true,
		BirthYear:  birth.Year,
		BirthMonth: birth.Month,
		BirthDay:   birth.Day,
	}
	_, err := e.store.InsertPerson(&p)
	require.NoError(t, err)
	return p
}

// addPregnant creates a married couple with a pregnancy due on the given date.
func (e *env) addPregnant(t *testing.T, tileID int, today, due calendar.Date) people.Family {
	t.Helper()
	h := e.addAdult(t, true, tileID, today)
	w := e.addAdult(t, false, tileID, today)
	fam, err := e.store.InsertFamily(h.ID, w.ID, tileID, today, true)
	require.NoError(t, err)
	ok, err := e.store.SetPregnant(fam.ID, due)
	require.NoError(t, err)
	require.True(t, ok)
	return fam
}

func personID(t *testing.T, ev Event) people.PersonID {
	t.Helper()
	require.NotNil(t, ev.PersonID)
	return people.PersonID(*ev.PersonID)
}

func countEvents(events []Event, typ string) int {
	n := 0
	for _, e := range events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
