package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrTemporary, "lookup property", cause)

	if !IsKind(err, ErrTemporary) || !errors.Is(err, cause) {
		t.Fatalf("expected kind and cause in chain: %v", err)
	}
	if got := err.Error(); got != "lookup property: temporary failure: connection refused" {
		t.Fatalf("unexpected message %q", got)
	}
	if WrapError(ErrTemporary, "noop", nil) != nil {
		t.Fatalf("expected nil for nil cause")
	}
}

func TestKindOfPrefersSpecificKind(t *testing.T) {
	inner := WrapError(ErrTemporary, "embed", errors.New("503"))
	err := WrapError(ErrEmbeddingUnavailable, "search knowledge", inner)
	if got := KindOf(err); got != ErrEmbeddingUnavailable {
		t.Fatalf("expected embedding unavailable, got %v", got)
	}
	if got := KindOf(fmt.Errorf("wrapped: %w", inner)); got != ErrTemporary {
		t.Fatalf("expected temporary, got %v", got)
	}
	if KindOf(errors.New("plain")) != nil || KindOf(nil) != nil {
		t.Fatalf("expected nil kind for untyped errors")
	}
}

func TestCacheStatsDerivedValues(t *testing.T) {
	var empty CacheStats
	if empty.HitRate() != 0 || empty.ImprovementFactor() != 0 || empty.AvgHitLatency() != 0 {
		t.Fatalf("expected zero values for empty stats: %+v", empty)
	}

	s := CacheStats{Hits: 4, Misses: 1, HitLatency: 8 * time.Millisecond, MissLatency: 50 * time.Millisecond}
	if s.Total() != 5 || s.HitRate() != 0.8 {
		t.Fatalf("unexpected totals: total=%d rate=%f", s.Total(), s.HitRate())
	}
	if s.AvgHitLatency() != 2*time.Millisecond || s.AvgMissLatency() != 50*time.Millisecond {
		t.Fatalf("unexpected averages: hit=%s miss=%s", s.AvgHitLatency(), s.AvgMissLatency())
	}
	if s.ImprovementFactor() != 25 {
		t.Fatalf("expected improvement factor 25, got %f", s.ImprovementFactor())
	}
}

func TestPropertyCacheKeyNormalizesSubject(t *testing.T) {
	a := NewPropertyCacheKey("  Flagstaff   Ranch ", FactHOA)
	b := NewPropertyCacheKey("flagstaff ranch", FactHOA)
	if a != b {
		t.Fatalf("expected equal keys: %+v %+v", a, b)
	}
	if got := a.String(); got != "property:flagstaff ranch:hoa" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := NewPropertyCacheKey("lot:7", FactGeneral).String(); got != "property:lot%3a7:general" {
		t.Fatalf("separator must be escaped, got %q", got)
	}
	if got := PropertySubjectPrefix("Flagstaff Ranch"); got != "property:flagstaff ranch:" {
		t.Fatalf("unexpected prefix %q", got)
	}
}

func TestNormalizeSubjectKeepsEscapedTextDistinct(t *testing.T) {
	colon := NewPropertyCacheKey("a:b", FactGeneral).String()
	literal := NewPropertyCacheKey("a%3ab", FactGeneral).String()
	if colon == literal {
		t.Fatalf("distinct subjects share key %q", colon)
	}
	if literal != "property:a%253ab:general" {
		t.Fatalf("unexpected key %q", literal)
	}
	if got := NormalizeSubject("100% Solar"); got != "100%25 solar" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestAliasAndSearchKeys(t *testing.T) {
	if got := NewAliasCacheKey(" Flagstaff ").String(); got != "alias:flagstaff:property_id" {
		t.Fatalf("unexpected alias key %q", got)
	}
	if got := NewSearchCacheKey("Solar  Lease", 5).String(); got != "search:solar lease:top5" {
		t.Fatalf("unexpected search key %q", got)
	}
}

func TestParseFactTypeAliases(t *testing.T) {
	cases := map[string]FactType{
		"water":        FactWaterRights,
		" SOLAR ":      FactSolarLease,
		"hoa_fees":     FactHOA,
		"financing":    FactPricing,
		"taxes":        FactPropertyTax,
		"property_tax": FactPropertyTax,
		"square_feet":  FactGeneral,
		"":             FactGeneral,
	}
	for raw, want := range cases {
		if got := ParseFactType(raw); got != want {
			t.Fatalf("ParseFactType(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestFieldJSONRoundTripsUnknown(t *testing.T) {
	type record struct {
		Fee  Field[float64] `json:"fee"`
		Name Field[string]  `json:"name"`
	}
	out, err := json.Marshal(record{Fee: Known(85.0)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"fee":85,"name":null}` {
		t.Fatalf("unexpected json %s", out)
	}

	var in record
	if err := json.Unmarshal([]byte(`{"fee":null,"name":"Mesa"}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := in.Fee.Get(); ok {
		t.Fatalf("expected unknown fee")
	}
	if in.Name.Or("") != "Mesa" || in.Fee.Or(-1) != -1 {
		t.Fatalf("unexpected record %+v", in)
	}
}
