// Package entropy provides the stochastic inputs for demographic events.
// Every sampling call goes through an explicit Source so simulations can be
// reproduced exactly from a seed; crypto/rand only seeds unseeded runs.
package entropy

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"

	"github.com/talgya/gridworld/internal/calendar"
)

// Source is a seedable random source, safe for concurrent use.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource creates a source from the given seed.
func NewSource(seed int64) *Source {
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// CryptoSeed draws a seed from crypto/rand for runs that did not configure one.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 1
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}

// Float returns a random float64 in [0, 1).
func (s *Source) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Intn returns a random int in [0, n).
func (s *Source) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// IntBetween returns a random int in [lo, hi] inclusive.
func (s *Source) IntBetween(lo, hi int) int {
	return lo + s.Intn(hi-lo+1)
}

// Shuffle randomizes the order of n elements via the swap function.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(n, swap)
}

// RandomSex returns true (male) with probability 0.51.
func (s *Source) RandomSex() bool {
	return s.Float() < 0.51
}

// RandomAge samples an age in simulated years: 5% elderly uniform in
// [61,90], otherwise an even split between uniform [0,22] and uniform
// [23,60]. The overall median lands near 22.
func (s *Source) RandomAge() int {
	if s.Float() < 0.05 {
		return s.IntBetween(61, 90)
	}
	if s.Float() < 0.5 {
		return s.IntBetween(0, 22)
	}
	return s.IntBetween(23, 60)
}

// RandomBirthDate produces a birth date for a person of the given age as of
// today. Month and day are uniform; when the birth year is the current year
// the month and day are clamped so the date never lies in the simulated
// future.
func (s *Source) RandomBirthDate(today calendar.Date, age int) calendar.Date {
	birth := calendar.Date{
		Year:  today.Year - age,
		Month: s.IntBetween(1, calendar.MonthsPerYear),
		Day:   s.IntBetween(1, calendar.DaysPerMonth),
	}
	if birth.Year == today.Year {
		if birth.Month > today.Month {
			birth.Month = today.Month
		}
		if birth.Month == today.Month && birth.Day > today.Day {
			birth.Day = today.Day
		}
	}
	return birth
}
