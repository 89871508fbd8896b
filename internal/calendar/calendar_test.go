package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateStringAndParse(t *testing.T) {
	d := Date{Year: 4000, Month: 3, Day: 7}
	assert.Equal(t, "4000-03-07", d.String())

	parsed, err := Parse("4000-03-07")
	require.NoError(t, err)
	assert.Equal(t, d, parsed)

	_, err = Parse("4000-13-01")
	assert.Error(t, err)
	_, err = Parse("4000-01-09")
	assert.Error(t, err)
	_, err = Parse("garbage")
	assert.Error(t, err)
}

func TestNextRollsMonthAndYear(t *testing.T) {
	d := Date{Year: 4000, Month: 1, Day: 8}
	assert.Equal(t, Date{Year: 4000, Month: 2, Day: 1}, d.Next())

	d = Date{Year: 4000, Month: 12, Day: 8}
	assert.Equal(t, Date{Year: 4001, Month: 1, Day: 1}, d.Next())
}

func TestAddDaysMatchesNext(t *testing.T) {
	d := Date{Year: 4000, Month: 11, Day: 6}
	step := d
	for i := 1; i <= 200; i++ {
		step = step.Next()
		assert.Equal(t, step, d.AddDays(i))
	}
}

func TestAddMonths(t *testing.T) {
	d := Date{Year: 4000, Month: 10, Day: 4}
	assert.Equal(t, Date{Year: 4001, Month: 7, Day: 4}, d.AddMonths(9))
	assert.Equal(t, Date{Year: 4000, Month: 12, Day: 4}, d.AddMonths(2))
	assert.Equal(t, Date{Year: 4001, Month: 1, Day: 4}, d.AddMonths(3))
}

func TestOrdering(t *testing.T) {
	a := Date{Year: 4000, Month: 5, Day: 3}
	b := Date{Year: 4000, Month: 5, Day: 4}
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.After(a))
	assert.False(t, a.Before(a))
}

func TestAgeBirthdayBoundary(t *testing.T) {
	birth := Date{Year: 4000, Month: 6, Day: 4}

	// Day before the birthday: still the previous age.
	assert.Equal(t, 17, Age(birth, Date{Year: 4018, Month: 6, Day: 3}))
	// On the birthday: new age.
	assert.Equal(t, 18, Age(birth, Date{Year: 4018, Month: 6, Day: 4}))
	// Earlier month.
	assert.Equal(t, 17, Age(birth, Date{Year: 4018, Month: 5, Day: 8}))
	// Later month.
	assert.Equal(t, 18, Age(birth, Date{Year: 4018, Month: 7, Day: 1}))
}

func TestAgeNeverNegative(t *testing.T) {
	birth := Date{Year: 4010, Month: 6, Day: 4}
	assert.Equal(t, 0, Age(birth, Date{Year: 4010, Month: 2, Day: 1}))
	assert.Equal(t, 0, Age(birth, Date{Year: 4009, Month: 2, Day: 1}))
}

func TestClockAdvance(t *testing.T) {
	c := NewClock(Date{Year: 4000, Month: 12, Day: 8})
	newDay, oldDay := c.Advance()
	assert.Equal(t, Date{Year: 4000, Month: 12, Day: 8}, oldDay)
	assert.Equal(t, Date{Year: 4001, Month: 1, Day: 1}, newDay)
	assert.Equal(t, newDay, c.Today())
}

func TestSpeedInterval(t *testing.T) {
	day, ok := SpeedInterval("1_day")
	require.True(t, ok)
	assert.Equal(t, time.Second, day)

	year, ok := SpeedInterval("1_year")
	require.True(t, ok)
	assert.Equal(t, time.Second/DaysPerYear, year)

	_, ok = SpeedInterval("warp")
	assert.False(t, ok)
}
