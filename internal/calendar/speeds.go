package calendar

import "time"

// SpeedMode is a named tick rate selectable through the API.
type SpeedMode struct {
	Key      string        `json:"key"`
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval_ms"`
}

var speedModes = []SpeedMode{
	{Key: "1_day", Name: "1 day / second", Interval: time.Second},
	{Key: "1_month", Name: "1 month / second", Interval: time.Second / DaysPerMonth},
	{Key: "1_year", Name: "1 year / second", Interval: time.Second / DaysPerYear},
}

// Speeds lists the selectable speed modes.
func Speeds() []SpeedMode {
	out := make([]SpeedMode, len(speedModes))
	copy(out, speedModes)
	return out
}

// SpeedInterval returns the tick interval for a speed key.
func SpeedInterval(key string) (time.Duration, bool) {
	for _, m := range speedModes {
		if m.Key == key {
			return m.Interval, true
		}
	}
	return 0, false
}
