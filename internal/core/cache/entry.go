package cache

import (
	"encoding/json"
	"time"
)

// Entry is the envelope stored in both tiers.
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
}

// Expired reports whether the entry's age exceeds its TTL. A zero TTL never expires.
func (e Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.StoredAt) > e.TTL
}

type Tier string

const (
	TierNone        Tier = ""
	TierDistributed Tier = "distributed"
	TierLocal       Tier = "local"
)

// Outcome is the result of consulting the cache tiers for one key.
// TierUnavailable is handled exactly like Miss by callers.
type Outcome int

const (
	OutcomeMiss Outcome = iota
	OutcomeHit
	OutcomeTierUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeTierUnavailable:
		return "tier_unavailable"
	default:
		return "miss"
	}
}

// Result is what Get found.
type Result struct {
	Entry   Entry
	Tier    Tier
	Outcome Outcome
}

func (r Result) Found() bool {
	return r.Outcome == OutcomeHit
}
