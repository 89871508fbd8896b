package calendar

import "sync"

// Clock tracks the current simulated date. Safe for concurrent use: the
// runner advances it while API handlers read it.
type Clock struct {
	mu  sync.RWMutex
	cur Date
}

// NewClock creates a clock positioned at the given date.
func NewClock(start Date) *Clock {
	return &Clock{cur: start}
}

// Today returns the current simulated date.
func (c *Clock) Today() Date {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur
}

// Advance moves the clock forward one day and returns the new and the
// previous date.
func (c *Clock) Advance() (newDay, oldDay Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	oldDay = c.cur
	c.cur = c.cur.Next()
	return c.cur, oldDay
}

// Set repositions the clock, used when restoring a saved world.
func (c *Clock) Set(d Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = d
}
