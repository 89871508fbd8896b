package demography

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/entropy"
	"github.com/talgya/gridworld/internal/lock"
	"github.com/talgya/gridworld/internal/metrics"
	"github.com/talgya/gridworld/internal/names"
	"github.com/talgya/gridworld/internal/people"
	"github.com/talgya/gridworld/internal/retry"
)

// DeliveryProcessor turns due pregnancies into children. Deliveries whose
// store writes fail transiently go onto a per-tile retry queue with
// exponential backoff; a delivery that keeps failing is dropped as a
// permanent failure and the family stays pregnant until the next daily
// due-date sweep picks it up again.
type DeliveryProcessor struct {
	store   *people.Store
	locks   *lock.Manager
	retries *retry.Scheduler
	rng     *entropy.Source
	met     *metrics.Set
	cfg     Config

	now func() time.Time
}

func NewDeliveryProcessor(store *people.Store, locks *lock.Manager, retries *retry.Scheduler, rng *entropy.Source, met *metrics.Set, cfg Config) *DeliveryProcessor {
	return &DeliveryProcessor{
		store:   store,
		locks:   locks,
		retries: retries,
		rng:     rng,
		met:     met,
		cfg:     cfg,
		now:     time.Now,
	}
}

func deliveryQueue(tileID int) string {
	return fmt.Sprintf("retryq:deliveries:%d", tileID)
}

// ProcessDue delivers every family on the tile whose due date has passed,
// plus any deliveries whose retry backoff has elapsed. Returns the number
// of children born and the birth events.
func (p *DeliveryProcessor) ProcessDue(ctx context.Context, tileID int, today calendar.Date) (int, []Event, error) {
	due, err := p.store.DueFamilies(tileID, today)
	if err != nil {
		return 0, nil, fmt.Errorf("due families for tile %d: %w", tileID, err)
	}

	queue := deliveryQueue(tileID)
	retryIDs, err := p.retries.PopDue(queue, p.now())
	if err != nil {
		slog.Warn("retry queue poll failed", "queue", queue, "error", err)
	}

	candidates := make([]people.FamilyID, 0, len(due)+len(retryIDs))
	seen := make(map[people.FamilyID]bool, len(due)+len(retryIDs))
	for _, f := range due {
		if !seen[f.ID] {
			seen[f.ID] = true
			candidates = append(candidates, f.ID)
		}
	}
	for _, raw := range retryIDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			slog.Warn("discarding malformed retry item", "queue", queue, "item", raw)
			continue
		}
		fid := people.FamilyID(id)
		if !seen[fid] {
			seen[fid] = true
			candidates = append(candidates, fid)
		}
	}

	var born int
	var events []Event
	for _, fid := range candidates {
		ev, delivered := p.deliver(ctx, queue, fid, today)
		if delivered {
			born++
			events = append(events, ev)
		}
	}
	return born, events, nil
}

// deliver creates the child for one due family. The family lock keeps two
// pollers from delivering the same pregnancy; the state re-read under the
// lock makes an already-completed delivery a no-op.
func (p *DeliveryProcessor) deliver(ctx context.Context, queue string, fid people.FamilyID, today calendar.Date) (Event, bool) {
	key := lock.FamilyKey(int64(fid))
	token, ok := p.locks.Acquire(ctx, key, p.cfg.CoupleLockTTL, p.cfg.AcquireTimeout, p.cfg.RetryDelay)
	if !ok {
		// Someone else holds the family; the due-date sweep finds it again
		// tomorrow if the holder did not deliver.
		return Event{}, false
	}
	defer p.locks.Release(key, token)

	fam, err := p.store.GetFamily(fid)
	if err != nil {
		p.reschedule(queue, fid, "family read failed", err)
		return Event{}, false
	}
	due, pregnant := fam.DueDate()
	if !fam.Active || !pregnant || due.After(today) {
		p.retries.Clear(queue, strconv.FormatInt(int64(fid), 10))
		return Event{}, false
	}

	husband, err := p.store.GetPerson(fam.HusbandID)
	if err != nil {
		p.reschedule(queue, fid, "father read failed", err)
		return Event{}, false
	}

	male := p.rng.RandomSex()
	child := people.Person{
		FirstName:  names.First(p.rng, male),
		LastName:   husband.LastName,
		Male:       male,
		TileID:     fam.TileID,
		Alive:      true,
		BirthYear:  today.Year,
		BirthMonth: today.Month,
		BirthDay:   today.Day,
	}
	childID, err := p.store.InsertPerson(&child)
	if err != nil {
		p.reschedule(queue, fid, "child insert failed", err)
		return Event{}, false
	}

	if _, err := p.store.SetChildless(fid); err != nil {
		// The child exists; retrying would deliver twice. Log and let the
		// state re-read clear the pregnancy on the next attempt.
		slog.Error("pregnancy reset failed after delivery", "family_id", fid, "error", err)
	}
	p.retries.Clear(queue, strconv.FormatInt(int64(fid), 10))
	p.met.BirthsTotal.Inc()

	slog.Info("child delivered", "family_id", fid, "person_id", childID, "tile_id", fam.TileID)
	return newEvent(EventBirth, today, childID), true
}

func (p *DeliveryProcessor) reschedule(queue string, fid people.FamilyID, reason string, cause error) {
	item := strconv.FormatInt(int64(fid), 10)
	res, err := p.retries.Schedule(queue, item, p.cfg.Retry, p.now())
	if err != nil {
		slog.Error("delivery retry scheduling failed", "family_id", fid, "error", err)
		return
	}
	if res.MaxAttemptsReached {
		slog.Error("delivery abandoned after max attempts",
			"family_id", fid, "attempts", res.Attempt, "reason", reason, "error", cause)
		return
	}
	slog.Warn("delivery rescheduled", "family_id", fid,
		"attempt", res.Attempt, "next_delay", res.NextDelay, "reason", reason, "error", cause)
}
