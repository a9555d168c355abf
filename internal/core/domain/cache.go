package domain

import (
	"strconv"
	"strings"
	"time"
)

const (
	propertyKeyNamespace = "property"
	aliasKeyNamespace    = "alias"
	searchKeyNamespace   = "search"
)

// CacheKey addresses one cached lookup in every cache tier.
type CacheKey struct {
	Namespace string
	Subject   string
	Kind      string
}

// NewPropertyCacheKey builds the key for a property fact lookup. The subject is
// case-folded so that "Flagstaff Ranch" and "flagstaff ranch" share one entry.
func NewPropertyCacheKey(subjectID string, fact FactType) CacheKey {
	return CacheKey{
		Namespace: propertyKeyNamespace,
		Subject:   NormalizeSubject(subjectID),
		Kind:      string(fact),
	}
}

// NewAliasCacheKey builds the key that maps a spoken subject, such as a
// partial name or a city, onto the property id it resolved to.
func NewAliasCacheKey(subject string) CacheKey {
	return CacheKey{
		Namespace: aliasKeyNamespace,
		Subject:   NormalizeSubject(subject),
		Kind:      "property_id",
	}
}

// NewSearchCacheKey builds the key for a listing search. Queries that differ
// only in case or spacing share one entry.
func NewSearchCacheKey(query string, topK int) CacheKey {
	return CacheKey{
		Namespace: searchKeyNamespace,
		Subject:   NormalizeSubject(query),
		Kind:      "top" + strconv.Itoa(topK),
	}
}

func (k CacheKey) String() string {
	return k.Namespace + ":" + k.Subject + ":" + k.Kind
}

// PropertySubjectPrefix matches every fact type cached for one subject.
func PropertySubjectPrefix(subjectID string) string {
	return propertyKeyNamespace + ":" + NormalizeSubject(subjectID) + ":"
}

// PropertyNamespacePrefix matches every cached property lookup.
func PropertyNamespacePrefix() string {
	return propertyKeyNamespace + ":"
}

// AliasNamespacePrefix matches every cached subject alias.
func AliasNamespacePrefix() string {
	return aliasKeyNamespace + ":"
}

// SearchNamespacePrefix matches every cached listing search.
func SearchNamespacePrefix() string {
	return searchKeyNamespace + ":"
}

var subjectEscaper = strings.NewReplacer("%", "%25", ":", "%3a")

// NormalizeSubject lower-cases the identifier, collapses inner whitespace and
// escapes the key separator. The escape character is escaped too, so distinct
// subjects never share a key.
func NormalizeSubject(subjectID string) string {
	s := strings.ToLower(strings.Join(strings.Fields(subjectID), " "))
	return subjectEscaper.Replace(s)
}

// CacheStats is a point-in-time snapshot of lookup cache counters.
type CacheStats struct {
	Hits        uint64
	Misses      uint64
	HitLatency  time.Duration
	MissLatency time.Duration

	// HybridSearches counts listing index searches that reached the
	// retrieval store.
	HybridSearches uint64
}

func (s CacheStats) Total() uint64 {
	return s.Hits + s.Misses
}

func (s CacheStats) HitRate() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s CacheStats) AvgHitLatency() time.Duration {
	if s.Hits == 0 {
		return 0
	}
	return s.HitLatency / time.Duration(s.Hits)
}

func (s CacheStats) AvgMissLatency() time.Duration {
	if s.Misses == 0 {
		return 0
	}
	return s.MissLatency / time.Duration(s.Misses)
}

// ImprovementFactor is average miss latency divided by average hit latency.
func (s CacheStats) ImprovementFactor() float64 {
	hit := s.AvgHitLatency()
	if hit <= 0 {
		return 0
	}
	return float64(s.AvgMissLatency()) / float64(hit)
}

// InvalidationEvent is broadcast when an underlying record changes out of band.
type InvalidationEvent struct {
	SubjectID string   `json:"subject_id,omitempty"`
	FactType  FactType `json:"fact_type,omitempty"`
	All       bool     `json:"all,omitempty"`
	Origin    string   `json:"origin,omitempty"`
}
