package cache

import (
	"sync"
	"time"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

// statsRecorder guards every counter with one mutex so a snapshot never
// pairs a hit count with a latency total from a different moment.
type statsRecorder struct {
	mu             sync.Mutex
	hits           uint64
	misses         uint64
	hitLatency     time.Duration
	missLatency    time.Duration
	hybridSearches uint64
}

func (s *statsRecorder) recordHit(latency time.Duration) {
	s.mu.Lock()
	s.hits++
	s.hitLatency += latency
	s.mu.Unlock()
}

func (s *statsRecorder) recordMiss(latency time.Duration) {
	s.mu.Lock()
	s.misses++
	s.missLatency += latency
	s.mu.Unlock()
}

func (s *statsRecorder) recordHybridSearch() {
	s.mu.Lock()
	s.hybridSearches++
	s.mu.Unlock()
}

func (s *statsRecorder) snapshot() domain.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CacheStats{
		Hits:           s.hits,
		Misses:         s.misses,
		HitLatency:     s.hitLatency,
		MissLatency:    s.missLatency,
		HybridSearches: s.hybridSearches,
	}
}

func (s *statsRecorder) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = 0
	s.misses = 0
	s.hitLatency = 0
	s.missLatency = 0
	s.hybridSearches = 0
}
