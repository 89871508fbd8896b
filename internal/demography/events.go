// Package demography implements the lifecycle coordination layer: bounded
// family formation, pregnancy and delivery scheduling, and per-tile
// population reconciliation. Operations mutate nothing without first
// re-reading current state under a lock, and they return the events they
// produced instead of broadcasting them; callers persist and dispatch.
package demography

import (
	"github.com/talgya/gridworld/internal/calendar"
	"github.com/talgya/gridworld/internal/people"
)

// Event types emitted by lifecycle operations.
const (
	EventMarriage         = "marriage"
	EventPregnancyStarted = "pregnancy_started"
	EventBirth            = "birth"
	EventDeath            = "death"
)

// Event is one demographic occurrence, dated on the simulated calendar.
type Event struct {
	Type     string        `json:"event_type"`
	Date     calendar.Date `json:"date"`
	PersonID *int64        `json:"person_id,omitempty"`
}

func newEvent(typ string, date calendar.Date, personID people.PersonID) Event {
	id := int64(personID)
	return Event{Type: typ, Date: date, PersonID: &id}
}

// Rows converts events to their persisted form.
func Rows(events []Event) []people.EventRow {
	rows := make([]people.EventRow, len(events))
	for i, e := range events {
		rows[i] = people.EventRow{
			Type:     e.Type,
			Year:     e.Date.Year,
			Month:    e.Date.Month,
			Day:      e.Date.Day,
			PersonID: e.PersonID,
		}
	}
	return rows
}
