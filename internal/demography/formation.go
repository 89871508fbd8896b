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
	"github.com/talgya/gridworld/internal/people"
)

// Orchestrator pairs eligible adults into families, bounded per cycle so no
// single tile monopolizes a pass. Every pair is created under a couple lock
// and the spouses are re-read inside the store transaction, so stale
// eligibility snapshots can never produce a double marriage.
type Orchestrator struct {
	store *people.Store
	locks *lock.Manager
	rng   *entropy.Source
	met   *metrics.Set
	cfg   Config
}

func NewOrchestrator(store *people.Store, locks *lock.Manager, rng *entropy.Source, met *metrics.Set, cfg Config) *Orchestrator {
	return &Orchestrator{store: store, locks: locks, rng: rng, met: met, cfg: cfg}
}

// FormationOutcome summarizes one formation cycle on one tile.
type FormationOutcome struct {
	Eligible    int `json:"eligible"`
	Families    int `json:"families_formed"`
	Pregnancies int `json:"pregnancies_started"`
	Skipped     int `json:"pairs_skipped"`
}

// FormFamilies runs one formation cycle on a tile. Candidate order is
// randomized, pairing stops at the per-cycle cap, and a pair whose couple
// lock is contended is skipped for this cycle rather than waited on. A
// per-pair failure never aborts the cycle; only the eligibility query
// failing does.
func (o *Orchestrator) FormFamilies(ctx context.Context, tileID int, today calendar.Date) (FormationOutcome, []Event, error) {
	var out FormationOutcome

	cutoff := calendar.Date{Year: today.Year - o.cfg.AdultAge, Month: today.Month, Day: today.Day}
	eligible, err := o.store.EligibleAdults(tileID, cutoff)
	if err != nil {
		return out, nil, fmt.Errorf("eligible adults for tile %d: %w", tileID, err)
	}
	out.Eligible = len(eligible)

	o.rng.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	var males, females []people.Person
	for _, p := range eligible {
		if p.Male {
			males = append(males, p)
		} else {
			females = append(females, p)
		}
	}

	pairs := len(males)
	if len(females) < pairs {
		pairs = len(females)
	}

	var events []Event
	for i := 0; i < pairs && out.Families < o.cfg.MaxFamiliesPerCycle; i++ {
		husband, wife := males[i], females[i]

		key := lock.CoupleKey(int64(husband.ID), int64(wife.ID))
		token, ok := o.locks.Acquire(ctx, key, o.cfg.CoupleLockTTL, o.cfg.AcquireTimeout, o.cfg.RetryDelay)
		if !ok {
			out.Skipped++
			continue
		}

		fam, err := o.store.InsertFamily(husband.ID, wife.ID, tileID, today, true)
		o.locks.Release(key, token)
		if err != nil {
			if errors.Is(err, people.ErrSpouseTaken) {
				slog.Debug("spouse no longer eligible, pair skipped",
					"tile_id", tileID, "husband_id", husband.ID, "wife_id", wife.ID)
				out.Skipped++
				continue
			}
			slog.Error("family creation failed", "tile_id", tileID,
				"husband_id", husband.ID, "wife_id", wife.ID, "error", err)
			out.Skipped++
			continue
		}

		out.Families++
		o.met.FamiliesFormed.Inc()
		events = append(events, newEvent(EventMarriage, today, husband.ID))

		// The pregnancy roll happens after the family exists; if the roll
		// or the pregnancy write fails, the family stands.
		if o.rng.Float() < o.cfg.PregnancyChance {
			due := today.AddMonths(o.cfg.TermMonths)
			set, err := o.store.SetPregnant(fam.ID, due)
			if err != nil {
				slog.Warn("pregnancy start failed, family kept",
					"family_id", fam.ID, "error", err)
				continue
			}
			if set {
				out.Pregnancies++
				o.met.PregnanciesTotal.Inc()
				events = append(events, newEvent(EventPregnancyStarted, today, wife.ID))
			}
		}
	}

	if out.Families > 0 || out.Skipped > 0 {
		slog.Info("formation cycle complete", "tile_id", tileID,
			"eligible", out.Eligible, "families", out.Families,
			"pregnancies", out.Pregnancies, "skipped", out.Skipped)
	}
	return out, events, nil
}
