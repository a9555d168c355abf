package metrics

import (
	"time"

	"github.com/ebookgov/property-voice-agent/internal/core/cache"
	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

// CacheObserver exports lookup cache events. It satisfies cache.Observer.
type CacheObserver struct {
	m *HTTPServerMetrics
}

func (m *HTTPServerMetrics) CacheObserver() CacheObserver {
	return CacheObserver{m: m}
}

func (o CacheObserver) ObserveLookup(tier cache.Tier, outcome cache.Outcome, latency time.Duration) {
	tierLabel := string(tier)
	if tierLabel == "" {
		tierLabel = "none"
	}
	o.m.cacheLookupsTotal.WithLabelValues(o.m.service, tierLabel, outcome.String()).Inc()

	path := "miss"
	if outcome == cache.OutcomeHit {
		path = "hit"
	}
	o.m.cacheLookupDuration.WithLabelValues(o.m.service, path).Observe(latency.Seconds())
}

func (o CacheObserver) ObserveTierUnavailable(operation string) {
	o.m.cacheTierUnavailable.WithLabelValues(o.m.service, operation).Inc()
}

func (o CacheObserver) ObserveInvalidation(scope string) {
	o.m.cacheInvalidationTotal.WithLabelValues(o.m.service, scope).Inc()
}

// FusionObserver exports one event per fused knowledge search.
type FusionObserver struct {
	m *HTTPServerMetrics
}

func (m *HTTPServerMetrics) FusionObserver() FusionObserver {
	return FusionObserver{m: m}
}

func (o FusionObserver) ObserveFusion(mode domain.FusionMode, degraded bool, results int) {
	label := string(mode)
	if label == "" {
		label = "unknown"
	}
	o.m.fusionRequestsTotal.WithLabelValues(o.m.service, label).Inc()
	if degraded {
		o.m.fusionDegradedTotal.WithLabelValues(o.m.service, label).Inc()
	}
	o.m.fusionResults.WithLabelValues(o.m.service).Observe(float64(results))
}

// ObserveBreakerState matches resilience.StateListener.
func (m *HTTPServerMetrics) ObserveBreakerState(operation, _, to string) {
	value := 0.0
	switch to {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
