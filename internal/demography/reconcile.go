package demography

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/entropy"
	"github.com/talgya/gridworld/internal/lock"
	"github.com/talgya/gridworld/internal/metrics"
	"github.com/talgya/gridworld/internal/names"
	"github.com/talgya/gridworld/internal/people"
)

// ErrTileBusy reports that another reconciliation already holds the tile's
// sync lock. The caller should treat the tile as handled for this pass.
var ErrTileBusy = errors.New("tile reconciliation already in progress")

// RemovalPolicy selects which residents leave the world when a tile is over
// target. The default removes the oldest first; alternatives can plug in.
type RemovalPolicy interface {
	SelectForRemoval(tileID, count int, today calendar.Date) ([]people.PersonID, error)
}

// OldestFirst removes the longest-lived residents when a tile runs a
// surplus.
type OldestFirst struct {
	Store *people.Store
}

func (p OldestFirst) SelectForRemoval(tileID, count int, _ calendar.Date) ([]people.PersonID, error) {
	elders, err := p.Store.OldestLiving(tileID, count)
	if err != nil {
		return nil, err
	}
	ids := make([]people.PersonID, len(elders))
	for i, e := range elders {
		ids[i] = e.ID
	}
	return ids, nil
}

// Reconciler converges a tile's living population toward its target count.
// Each call runs under the tile's sync lock, so concurrent requests for the
// same tile serialize rather than double-apply.
type Reconciler struct {
	store    *people.Store
	locks    *lock.Manager
	delivery *DeliveryProcessor
	forms    *Orchestrator
	removal  RemovalPolicy
	rng      *entropy.Source
	met      *metrics.Set
	cfg      Config
}

func NewReconciler(store *people.Store, locks *lock.Manager, delivery *DeliveryProcessor, forms *Orchestrator, removal RemovalPolicy, rng *entropy.Source, met *metrics.Set, cfg Config) *Reconciler {
	if removal == nil {
		removal = OldestFirst{Store: store}
	}
	return &Reconciler{
		store:    store,
		locks:    locks,
		delivery: delivery,
		forms:    forms,
		removal:  removal,
		rng:      rng,
		met:      met,
		cfg:      cfg,
	}
}

// ReconcileOutcome reports what one reconciliation pass changed.
type ReconcileOutcome struct {
	TileID  int `json:"tile_id"`
	Target  int `json:"target"`
	Before  int `json:"population_before"`
	After   int `json:"population_after"`
	Born    int `json:"born"`
	Created int `json:"created"`
	Removed int `json:"removed"`
}

// Reconcile moves the tile's population toward target. Under deficit it
// drains pending deliveries first, then materializes new adults with
// sampled sex, age, and birth date, then runs a formation cycle so the
// newcomers can pair. Under surplus the removal policy picks who leaves.
func (r *Reconciler) Reconcile(ctx context.Context, tileID, target int, today calendar.Date) (ReconcileOutcome, []Event, error) {
	out := ReconcileOutcome{TileID: tileID, Target: target}

	key := lock.TileKey(tileID)
	token, ok := r.locks.Acquire(ctx, key, r.cfg.ReconcileLockTTL, r.cfg.ReconcileWaitTimeout, r.cfg.RetryDelay)
	if !ok {
		return out, nil, ErrTileBusy
	}
	defer r.locks.Release(key, token)

	before, err := r.store.LivingCount(tileID)
	if err != nil {
		return out, nil, fmt.Errorf("living count for tile %d: %w", tileID, err)
	}
	out.Before = before

	var events []Event
	switch {
	case before < target:
		born, birthEvents, err := r.delivery.ProcessDue(ctx, tileID, today)
		if err != nil {
			return out, nil, err
		}
		out.Born = born
		events = append(events, birthEvents...)

		deficit := target - before - born
		for i := 0; i < deficit; i++ {
			id, err := r.createAdult(tileID, today)
			if err != nil {
				return out, events, fmt.Errorf("populate tile %d: %w", tileID, err)
			}
			out.Created++
			events = append(events, newEvent(EventBirth, today, id))
		}

		fout, formEvents, err := r.forms.FormFamilies(ctx, tileID, today)
		if err != nil {
			return out, events, err
		}
		events = append(events, formEvents...)
		slog.Debug("post-reconcile formation", "tile_id", tileID, "families", fout.Families)

	case before > target:
		surplus := before - target
		ids, err := r.removal.SelectForRemoval(tileID, surplus, today)
		if err != nil {
			return out, nil, fmt.Errorf("removal selection for tile %d: %w", tileID, err)
		}
		if err := r.store.MarkDead(ids); err != nil {
			return out, nil, fmt.Errorf("remove surplus on tile %d: %w", tileID, err)
		}
		out.Removed = len(ids)
		for _, id := range ids {
			r.met.DeathsTotal.Inc()
			events = append(events, newEvent(EventDeath, today, id))
		}
	}

	after, err := r.store.LivingCount(tileID)
	if err != nil {
		return out, events, fmt.Errorf("living count for tile %d: %w", tileID, err)
	}
	out.After = after

	slog.Info("tile reconciled", "tile_id", tileID, "target", target,
		"before", before, "after", after,
		"born", out.Born, "created", out.Created, "removed", out.Removed)
	return out, events, nil
}

// createAdult materializes one new adult resident with sampled attributes.
func (r *Reconciler) createAdult(tileID int, today calendar.Date) (people.PersonID, error) {
	male := r.rng.RandomSex()
	age := r.rng.RandomAge()
	birth := r.rng.RandomBirthDate(today, age)
	p := people.Person{
		FirstName:  names.First(r.rng, male),
		LastName:   names.Last(r.rng),
		Male:       male,
		TileID:     tileID,
		Alive:      true,
		BirthYear:  birth.Year,
		BirthMonth: birth.Month,
		BirthDay:   birth.Day,
	}
	id, err := r.store.InsertPerson(&p)
	if err != nil {
		return 0, err
	}
	r.met.BirthsTotal.Inc()
	return id, nil
}
