// Package people holds the person/family domain model and its SQLite-backed
// durable store. The store is the single authority on person and family
// records: the coordination layer keeps no copies and re-reads current
// state immediately before mutating under lock.
package people

import (
	"github.com/talgya/gridworld/internal/calendar"
)

// PersonID identifies a person.
type PersonID int64

// FamilyID identifies a family.
type FamilyID int64

// Person is one inhabitant of the world.
type Person struct {
	ID        PersonID  `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Male      bool      `db:"male" json:"male"`
	TileID    int       `db:"tile_id" json:"tile_id"`
	Alive     bool      `db:"alive" json:"alive"`
	FamilyID  *FamilyID `db:"family_id" json:"family_id,omitempty"`

	BirthYear  int `db:"birth_year" json:"birth_year"`
	BirthMonth int `db:"birth_month" json:"birth_month"`
	BirthDay   int `db:"birth_day" json:"birth_day"`
}

// Birth returns the person's birth date.
func (p Person) Birth() calendar.Date {
	return calendar.Date{Year: p.BirthYear, Month: p.BirthMonth, Day: p.BirthDay}
}

// Age returns the person's age in completed simulated years as of today.
func (p Person) Age(today calendar.Date) int {
	return calendar.Age(p.Birth(), today)
}

// PregnancyState describes a family's pregnancy tracking.
type PregnancyState uint8

const (
	// Childless means the family has no pregnancy underway.
	Childless PregnancyState = iota
	// Pregnant means a delivery is due at the family's due date.
	Pregnant
)

// Family joins one husband and one wife on a tile. Neither spouse may
// simultaneously be a spouse in another active family.
type Family struct {
	ID        FamilyID `db:"id" json:"id"`
	HusbandID PersonID `db:"husband_id" json:"husband_id"`
	WifeID    PersonID `db:"wife_id" json:"wife_id"`
	TileID    int      `db:"tile_id" json:"tile_id"`
	Active    bool     `db:"active" json:"active"`
	Fertile   bool     `db:"fertile" json:"fertile"`

	CreatedYear  int `db:"created_year" json:"created_year"`
	CreatedMonth int `db:"created_month" json:"created_month"`
	CreatedDay   int `db:"created_day" json:"created_day"`

	Pregnancy PregnancyState `db:"pregnancy" json:"pregnancy"`
	DueYear   *int           `db:"due_year" json:"due_year,omitempty"`
	DueMonth  *int           `db:"due_month" json:"due_month,omitempty"`
	DueDay    *int           `db:"due_day" json:"due_day,omitempty"`
}

// DueDate returns the delivery due date for a pregnant family.
func (f Family) DueDate() (calendar.Date, bool) {
	if f.Pregnancy != Pregnant || f.DueYear == nil || f.DueMonth == nil || f.DueDay == nil {
		return calendar.Date{}, false
	}
	return calendar.Date{Year: *f.DueYear, Month: *f.DueMonth, Day: *f.DueDay}, true
}

// EventRow is a persisted demographic event.
type EventRow struct {
	Type     string `db:"event_type" json:"event_type"`
	Year     int    `db:"year" json:"year"`
	Month    int    `db:"month" json:"month"`
	Day      int    `db:"day" json:"day"`
	PersonID *int64 `db:"person_id" json:"person_id,omitempty"`
}

// Demographics summarizes the living population.
type Demographics struct {
	Population int `json:"population"`
	Males      int `json:"males"`
	Females    int `json:"females"`
	Married    int `json:"married"`
	Pregnant   int `json:"pregnant_families"`
}
