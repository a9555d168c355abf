package domain

import "time"

// ListingTopic tags property documents in the listing index.
const ListingTopic = "property"

type PropertySearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// PropertyMatch is one listing returned by a hybrid search.
type PropertyMatch struct {
	PropertyID  string  `json:"property_id"`
	Name        string  `json:"name,omitempty"`
	Address     string  `json:"address,omitempty"`
	Summary     string  `json:"summary,omitempty"`
	FusedScore  float64 `json:"rrf_score"`
	VectorRank  *int    `json:"vector_rank"`
	KeywordRank *int    `json:"keyword_rank"`
}

type PropertySearchResult struct {
	Query          string          `json:"query"`
	Results        []PropertyMatch `json:"results"`
	Mode           FusionMode      `json:"mode"`
	Degraded       bool            `json:"degraded"`
	DegradedReason string          `json:"degraded_reason,omitempty"`
}

type PropertySearchResponse struct {
	PropertySearchResult
	ResultCount int       `json:"result_count"`
	CacheHit    bool      `json:"cache_hit"`
	LatencyMS   float64   `json:"latency_ms"`
	RetrievedAt time.Time `json:"retrieved_at"`
}
