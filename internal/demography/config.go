package demography

import (
	"time"

	"github.com/talgya/gridworld/internal/retry"
)

// Config carries the tunables shared by the formation orchestrator, the
// delivery processor and the reconciler.
type Config struct {
	// Formation.
	MaxFamiliesPerCycle int
	PregnancyChance     float64
	TermMonths          int
	AdultAge            int

	// Couple and family locks.
	CoupleLockTTL  time.Duration
	AcquireTimeout time.Duration
	RetryDelay     time.Duration

	// Tile reconciliation lock.
	ReconcileLockTTL     time.Duration
	ReconcileWaitTimeout time.Duration

	// Delivery retry policy.
	Retry retry.Config
}

func DefaultConfig() Config {
	return Config{
		MaxFamiliesPerCycle:  5,
		PregnancyChance:      0.30,
		TermMonths:           9,
		AdultAge:             18,
		CoupleLockTTL:        5 * time.Second,
		AcquireTimeout:       500 * time.Millisecond,
		RetryDelay:           25 * time.Millisecond,
		ReconcileLockTTL:     30 * time.Second,
		ReconcileWaitTimeout: 2 * time.Second,
		Retry: retry.Config{
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			Multiplier:  2,
		},
	}
}
