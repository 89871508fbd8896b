// Package calendar implements the simulated calendar: 12 months per year,
// 8 days per month (96 days per year), counting from year 4000.
package calendar

import (
	"fmt"
)

const (
	MonthsPerYear = 12
	DaysPerMonth  = 8
	DaysPerYear   = MonthsPerYear * DaysPerMonth
	StartYear     = 4000
)

// Date is a day on the simulated calendar. Month is 1-12, Day is 1-8.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Start returns the first day of the simulated epoch.
func Start() Date {
	return Date{Year: StartYear, Month: 1, Day: 1}
}

// String formats the date as "YYYY-MM-DD" (zero-padded year).
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Parse reads a "YYYY-MM-DD" date string.
func Parse(s string) (Date, error) {
	var d Date
	if _, err := fmt.Sscanf(s, "%d-%d-%d", &d.Year, &d.Month, &d.Day); err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	if d.Month < 1 || d.Month > MonthsPerYear || d.Day < 1 || d.Day > DaysPerMonth {
		return Date{}, fmt.Errorf("parse date %q: out of range", s)
	}
	return d, nil
}

// DayNumber returns the absolute day index of the date, usable for ordering
// and arithmetic. Day 0 is year 0, month 1, day 1.
func (d Date) DayNumber() int {
	return d.Year*DaysPerYear + (d.Month-1)*DaysPerMonth + (d.Day - 1)
}

// Before reports whether d falls strictly before other.
func (d Date) Before(other Date) bool {
	return d.DayNumber() < other.DayNumber()
}

// After reports whether d falls strictly after other.
func (d Date) After(other Date) bool {
	return d.DayNumber() > other.DayNumber()
}

// Next returns the following calendar day, rolling months and years.
func (d Date) Next() Date {
	d.Day++
	if d.Day > DaysPerMonth {
		d.Day = 1
		d.Month++
		if d.Month > MonthsPerYear {
			d.Month = 1
			d.Year++
		}
	}
	return d
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return fromDayNumber(d.DayNumber() + n)
}

// AddMonths returns the date n months after d, wrapping years and keeping
// the day-of-month.
func (d Date) AddMonths(n int) Date {
	months := d.Year*MonthsPerYear + (d.Month - 1) + n
	return Date{
		Year:  months / MonthsPerYear,
		Month: months%MonthsPerYear + 1,
		Day:   d.Day,
	}
}

func fromDayNumber(n int) Date {
	return Date{
		Year:  n / DaysPerYear,
		Month: (n%DaysPerYear)/DaysPerMonth + 1,
		Day:   n%DaysPerMonth + 1,
	}
}

// Age returns completed simulated years between birth and today, floored
// at zero. A person's age does not increment until their birthday has
// passed in the current year.
func Age(birth, today Date) int {
	age := today.Year - birth.Year
	if today.Month < birth.Month || (today.Month == birth.Month && today.Day < birth.Day) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return age
}
