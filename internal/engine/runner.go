package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/gridworld/internal/calendar"
)

// Runner advances the world clock on a wall-clock interval and hands each
// new day to the coordinator. Start and Stop are idempotent; changing speed
// restarts the ticker with the new interval without losing the clock.
type Runner struct {
	clock *calendar.Clock
	onDay func(today calendar.Date)

	mu       sync.Mutex
	interval time.Duration
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

func NewRunner(clock *calendar.Clock, onDay func(today calendar.Date)) *Runner {
	return &Runner{
		clock:    clock,
		onDay:    onDay,
		interval: time.Second,
	}
}

// Start launches the tick loop with the given interval. Starting an already
// running runner only adjusts its interval.
func (r *Runner) Start(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.SetInterval(interval)
		return
	}
	r.interval = interval
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go r.loop(stop, done)
	slog.Info("calendar runner started", "interval", interval, "date", r.clock.Today())
}

// Stop halts the tick loop and waits for the in-flight day to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	<-done
	slog.Info("calendar runner stopped", "date", r.clock.Today())
}

// Running reports whether the tick loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Interval returns the current tick interval.
func (r *Runner) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// SetInterval restarts the ticker with a new interval if running, otherwise
// just records it for the next Start.
func (r *Runner) SetInterval(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	r.mu.Lock()
	wasRunning := r.running
	r.interval = interval
	r.mu.Unlock()

	if wasRunning {
		r.Stop()
		r.Start(interval)
	}
	slog.Info("tick interval changed", "interval", interval)
}

func (r *Runner) loop(stop, done chan struct{}) {
	defer close(done)

	r.mu.Lock()
	ticker := time.NewTicker(r.interval)
	r.mu.Unlock()
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			today, _ := r.clock.Advance()
			r.onDay(today)
		}
	}
}
