// Package engine drives the daily simulation loop: it advances the world
// calendar on a wall-clock ticker and runs the demographic pipeline across
// every habitable tile when the day changes.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/demography"
	"github.com/talgya/gridworld/internal/metrics"
	"github.com/talgya/gridworld/internal/people"
	"github.com/talgya/gridworld/internal/world"
)

// Broadcaster pushes a typed payload to connected stream clients.
// Dispatch is fire-and-forget; a failed or slow delivery never blocks or
// fails the simulation.
type Broadcaster interface {
	Broadcast(eventType string, payload any)
}

// TickEvent is the per-day summary pushed to stream clients after each
// completed simulation day.
type TickEvent struct {
	Date        string `json:"date"`
	Year        int    `json:"year"`
	Month       int    `json:"month"`
	Day         int    `json:"day"`
	Population  int    `json:"population"`
	Births      int    `json:"births"`
	Deaths      int    `json:"deaths"`
	Marriages   int    `json:"marriages"`
	Pregnancies int    `json:"pregnancies"`
}

// Coordinator runs the demographic pipeline. Tiles are processed
// concurrently and independently: one tile failing or sitting busy never
// stops the others.
type Coordinator struct {
	worldMap   *world.Map
	store      *people.Store
	clock      *calendar.Clock
	delivery   *demography.DeliveryProcessor
	forms      *demography.Orchestrator
	reconciler *demography.Reconciler
	hub        Broadcaster
	met        *metrics.Set
}

func NewCoordinator(
	worldMap *world.Map,
	store *people.Store,
	clock *calendar.Clock,
	delivery *demography.DeliveryProcessor,
	forms *demography.Orchestrator,
	reconciler *demography.Reconciler,
	hub Broadcaster,
	met *metrics.Set,
) *Coordinator {
	return &Coordinator{
		worldMap:   worldMap,
		store:      store,
		clock:      clock,
		delivery:   delivery,
		forms:      forms,
		reconciler: reconciler,
		hub:        hub,
		met:        met,
	}
}

// DayChanged runs one full simulation day. Each habitable tile gets its own
// goroutine: deliveries first, then a formation cycle, then reconciliation
// toward the tile's target. Events from every tile are persisted in one
// batch and summarized in a single calendar_tick broadcast.
func (c *Coordinator) DayChanged(today calendar.Date) {
	var (
		mu     sync.Mutex
		events []demography.Event
	)

	ctx := context.Background()
	var wg sync.WaitGroup
	for _, tile := range c.worldMap.Habitable() {
		wg.Add(1)
		go func(t *world.Tile) {
			defer wg.Done()
			tileEvents := c.processTile(ctx, t, today)
			mu.Lock()
			events = append(events, tileEvents...)
			mu.Unlock()
		}(tile)
	}
	wg.Wait()

	if err := c.store.InsertEvents(demography.Rows(events)); err != nil {
		slog.Error("event batch persist failed", "date", today, "error", err)
	}
	if err := c.store.SaveMeta("calendar_date", today.String()); err != nil {
		slog.Error("calendar checkpoint failed", "date", today, "error", err)
	}

	summary := c.summarize(today, events)
	c.hub.Broadcast("calendar_tick", summary)

	slog.Info("day complete", "date", today,
		"population", summary.Population,
		"births", summary.Births, "deaths", summary.Deaths,
		"marriages", summary.Marriages, "pregnancies", summary.Pregnancies)
}

func (c *Coordinator) processTile(ctx context.Context, t *world.Tile, today calendar.Date) []demography.Event {
	var events []demography.Event

	born, birthEvents, err := c.delivery.ProcessDue(ctx, t.ID, today)
	if err != nil {
		slog.Error("delivery pass failed", "tile_id", t.ID, "error", err)
	}
	events = append(events, birthEvents...)
	if born > 0 {
		slog.Debug("deliveries completed", "tile_id", t.ID, "born", born)
	}

	_, formEvents, err := c.forms.FormFamilies(ctx, t.ID, today)
	if err != nil {
		slog.Error("formation pass failed", "tile_id", t.ID, "error", err)
	}
	events = append(events, formEvents...)

	outcome, recEvents, err := c.reconciler.Reconcile(ctx, t.ID, t.Target(), today)
	switch {
	case errors.Is(err, demography.ErrTileBusy):
		slog.Debug("tile busy, reconcile skipped", "tile_id", t.ID)
	case err != nil:
		slog.Error("reconcile failed", "tile_id", t.ID, "error", err)
	default:
		events = append(events, recEvents...)
		c.hub.Broadcast("population_reconciled", outcome)
	}
	return events
}

// ReconcileTile handles an operator-driven target change: it moves the tile
// toward the given target immediately, persists the resulting events, and
// pushes exactly one population_reconciled notification.
func (c *Coordinator) ReconcileTile(ctx context.Context, tileID, target int) (demography.ReconcileOutcome, error) {
	today := c.clock.Today()
	outcome, events, err := c.reconciler.Reconcile(ctx, tileID, target, today)
	if err != nil {
		return outcome, err
	}
	if err := c.store.InsertEvents(demography.Rows(events)); err != nil {
		slog.Error("event batch persist failed", "tile_id", tileID, "error", err)
	}
	c.hub.Broadcast("population_reconciled", outcome)
	return outcome, nil
}

func (c *Coordinator) summarize(today calendar.Date, events []demography.Event) TickEvent {
	ev := TickEvent{
		Date:  today.String(),
		Year:  today.Year,
		Month: today.Month,
		Day:   today.Day,
	}
	for _, e := range events {
		switch e.Type {
		case demography.EventBirth:
			ev.Births++
		case demography.EventDeath:
			ev.Deaths++
		case demography.EventMarriage:
			ev.Marriages++
		case demography.EventPregnancyStarted:
			ev.Pregnancies++
		}
	}

	if counts, err := c.store.LivingByTile(); err == nil {
		for _, n := range counts {
			ev.Population += n
		}
	} else {
		slog.Warn("population count failed", "error", err)
	}
	return ev
}
