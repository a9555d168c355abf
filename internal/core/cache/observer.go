package cache

import "time"

// Observer receives cache events for metrics export.
type Observer interface {
	ObserveLookup(tier Tier, outcome Outcome, latency time.Duration)
	ObserveTierUnavailable(operation string)
	ObserveInvalidation(scope string)
}

type nopObserver struct{}

func (nopObserver) ObserveLookup(Tier, Outcome, time.Duration) {}
func (nopObserver) ObserveTierUnavailable(string) {}
func (nopObserver) ObserveInvalidation(string) {}
