// Package metrics exposes the simulation's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Set holds the counters the coordination layer reports. Components take a
// *Set at construction so tests can use their own registries.
type Set struct {
	LockContention   prometheus.Counter
	RetryPermanent   prometheus.Counter
	BroadcastsTotal  prometheus.Counter
	FamiliesFormed   prometheus.Counter
	BirthsTotal      prometheus.Counter
	DeathsTotal      prometheus.Counter
	PregnanciesTotal prometheus.Counter
}

// New creates the counter set and registers it with reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		LockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridworld_lock_contention_total",
			Help: "Lock acquisitions that timed out without acquiring.",
		}),
		RetryPermanent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridworld_retry_permanent_failures_total",
			Help: "Retry items abandoned after exceeding max attempts.",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridworld_broadcasts_total",
			Help: "Events dispatched to the broadcast hub.",
		}),
		FamiliesFormed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridworld_families_formed_total",
			Help: "Families created by the formation orchestrator.",
		}),
		BirthsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridworld_births_total",
			Help: "People created by deliveries and reconciliation top-ups.",
		}),
		DeathsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridworld_deaths_total",
			Help: "People removed by reconciliation.",
		}),
		PregnanciesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridworld_pregnancies_total",
			Help: "Pregnancies initiated after family formation.",
		}),
	}
	reg.MustRegister(
		s.LockContention, s.RetryPermanent, s.BroadcastsTotal,
		s.FamiliesFormed, s.BirthsTotal, s.DeathsTotal, s.PregnanciesTotal,
	)
	return s
}
