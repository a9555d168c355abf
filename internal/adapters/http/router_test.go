package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ebookgov/property-voice-agent/internal/config"
	"github.com/ebookgov/property-voice-agent/internal/core/cache"
	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

type fakePropertyService struct {
	mu       sync.Mutex
	requests []domain.PropertyFactRequest
	resp     *domain.PropertyFactResponse
	err      error
}

func (f *fakePropertyService) Lookup(_ context.Context, req domain.PropertyFactRequest) (*domain.PropertyFactResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &domain.PropertyFactResponse{
		Data: domain.FactAnswer{SubjectID: req.SubjectID, Text: "Answer for " + req.SubjectID},
	}, nil
}

type fakeKnowledgeService struct {
	mu      sync.Mutex
	queries []domain.KnowledgeQuery
	answer  *domain.KnowledgeAnswer
	err     error
}

func (f *fakeKnowledgeService) Search(_ context.Context, q domain.KnowledgeQuery) (*domain.KnowledgeAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return &domain.KnowledgeAnswer{Answer: "Knowledge for " + q.Query, Mode: domain.FusionHybrid}, nil
}

type fakeListingService struct {
	mu       sync.Mutex
	requests []domain.PropertySearchRequest
	matches  []domain.PropertyMatch
	err      error
}

func (f *fakeListingService) Search(_ context.Context, req domain.PropertySearchRequest) (*domain.PropertySearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.PropertySearchResponse{
		PropertySearchResult: domain.PropertySearchResult{Query: req.Query, Results: f.matches, Mode: domain.FusionHybrid},
		ResultCount:          len(f.matches),
	}, nil
}

type fakeCacheAdmin struct {
	stats  domain.CacheStats
	resets int
	events []domain.InvalidationEvent
	err    error
}

func (f *fakeCacheAdmin) Stats() domain.CacheStats { return f.stats }

func (f *fakeCacheAdmin) ResetStats() { f.resets++ }

func (f *fakeCacheAdmin) Invalidate(_ context.Context, event domain.InvalidationEvent) error {
	f.events = append(f.events, event)
	return f.err
}

type fakeCacheHealth struct {
	health cache.Health
}

func (f fakeCacheHealth) Health(context.Context) cache.Health { return f.health }

type testServices struct {
	properties *fakePropertyService
	listings   *fakeListingService
	knowledge  *fakeKnowledgeService
	admin      *fakeCacheAdmin
}

func newTestRouter(cfg config.Config) (*Router, testServices) {
	ts := testServices{
		properties: &fakePropertyService{},
		listings:   &fakeListingService{},
		knowledge:  &fakeKnowledgeService{},
		admin:      &fakeCacheAdmin{},
	}
	rt := NewRouter(cfg, Services{
		Properties:  ts.properties,
		Listings:    ts.listings,
		Knowledge:   ts.knowledge,
		CacheAdmin:  ts.admin,
		CacheHealth: fakeCacheHealth{health: cache.Health{DistributedConfigured: true, DistributedReachable: true, LocalEntries: 3}},
	})
	return rt, ts
}

func newTestHandler(cfg config.Config) http.Handler {
	rt, _ := newTestRouter(cfg)
	return rt.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", res.Body.String(), err)
	}
	return out
}

func TestHealthzReportsCacheAndKeywordIndex(t *testing.T) {
	handler := newTestHandler(config.Config{QdrantKeywordEnabled: true})

	res := doJSON(t, handler, http.MethodGet, "/healthz", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
	body := decodeBody(t, res)
	if body["status"] != "ok" || body["keyword_index_enabled"] != true {
		t.Fatalf("unexpected health body: %v", body)
	}
	cacheHealth, ok := body["cache"].(map[string]any)
	if !ok || cacheHealth["distributed_reachable"] != true {
		t.Fatalf("expected cache health in body: %v", body)
	}
}

func TestLookupPropertyReturnsServiceResponse(t *testing.T) {
	rt, ts := newTestRouter(config.Config{})
	handler := rt.Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/properties/lookup", `{"subject_id":"AZ-001","fact_type":"water_rights"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(ts.properties.requests) != 1 {
		t.Fatalf("expected one lookup, got %d", len(ts.properties.requests))
	}
	got := ts.properties.requests[0]
	if got.SubjectID != "AZ-001" || got.FactType != "water_rights" {
		t.Fatalf("unexpected request: %+v", got)
	}
	data, _ := decodeBody(t, res)["data"].(map[string]any)
	if data["text"] != "Answer for AZ-001" {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestLookupPropertyValidation(t *testing.T) {
	handler := newTestHandler(config.Config{})

	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{name: "wrong method", method: http.MethodGet, want: http.StatusMethodNotAllowed},
		{name: "invalid json", method: http.MethodPost, body: `{`, want: http.StatusBadRequest},
		{name: "empty body", method: http.MethodPost, want: http.StatusBadRequest},
		{name: "blank subject", method: http.MethodPost, body: `{"subject_id":"  "}`, want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := doJSON(t, handler, tc.method, "/v1/properties/lookup", tc.body)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestLookupPropertyMapsErrors(t *testing.T) {
	rt, ts := newTestRouter(config.Config{})
	handler := rt.Handler()

	ts.properties.err = domain.WrapError(domain.ErrTemporary, "lookup", errors.New("dial tcp: secret-host:5432 refused"))
	res := doJSON(t, handler, http.MethodPost, "/v1/properties/lookup", `{"subject_id":"AZ-001"}`)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "secret-host") {
		t.Fatalf("5xx body must not leak internals: %s", res.Body.String())
	}

	ts.properties.err = domain.WrapError(domain.ErrInvalidInput, "lookup", errors.New("subject_id is required"))
	res = doJSON(t, handler, http.MethodPost, "/v1/properties/lookup", `{"subject_id":"AZ-001"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSearchKnowledgePassesTopic(t *testing.T) {
	rt, ts := newTestRouter(config.Config{})
	handler := rt.Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/knowledge/search", `{"query":"what is a well share","topic":"water"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(ts.knowledge.queries) != 1 || ts.knowledge.queries[0].Topic != "water" {
		t.Fatalf("unexpected queries: %+v", ts.knowledge.queries)
	}
	body := decodeBody(t, res)
	if body["answer"] != "Knowledge for what is a well share" || body["mode"] != string(domain.FusionHybrid) {
		t.Fatalf("unexpected body: %v", body)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/knowledge/search", `{"query":""}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", res.Code)
	}
}

func TestSearchPropertiesReturnsMatches(t *testing.T) {
	rt, ts := newTestRouter(config.Config{})
	ts.listings.matches = []domain.PropertyMatch{{PropertyID: "AZ-FLAG-001", Name: "Flagstaff Ranch", FusedScore: 2.0 / 61}}
	handler := rt.Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/properties/search", `{"query":"ranch with a solar lease","top_k":3}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := ts.listings.requests[0]; got.Query != "ranch with a solar lease" || got.TopK != 3 {
		t.Fatalf("unexpected search request: %+v", got)
	}
	body := decodeBody(t, res)
	results, _ := body["results"].([]any)
	if body["result_count"] != float64(1) || len(results) != 1 || body["mode"] != string(domain.FusionHybrid) {
		t.Fatalf("unexpected body: %v", body)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/properties/search", `{"query":"  "}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty query, got %d", res.Code)
	}
	res = doJSON(t, handler, http.MethodGet, "/v1/properties/search", "")
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestCacheStatsDerivesRates(t *testing.T) {
	rt, ts := newTestRouter(config.Config{})
	ts.admin.stats = domain.CacheStats{
		Hits:           3,
		Misses:         1,
		HitLatency:     3 * time.Millisecond,
		MissLatency:    40 * time.Millisecond,
		HybridSearches: 2,
	}

	res := doJSON(t, rt.Handler(), http.MethodGet, "/v1/cache/stats", "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	body := decodeBody(t, res)
	if body["total_requests"] != float64(4) || body["cache_hits"] != float64(3) || body["cache_misses"] != float64(1) {
		t.Fatalf("unexpected counters: %v", body)
	}
	if body["hit_rate"] != 0.75 || body["hit_rate_percent"] != float64(75) {
		t.Fatalf("unexpected hit rate: %v", body)
	}
	if body["avg_hit_latency_ms"] != float64(1) || body["avg_miss_latency_ms"] != float64(40) {
		t.Fatalf("unexpected latencies: %v", body)
	}
	if body["improvement_factor"] != float64(40) {
		t.Fatalf("unexpected improvement factor: %v", body["improvement_factor"])
	}
	if body["hybrid_searches"] != float64(2) {
		t.Fatalf("unexpected hybrid searches: %v", body["hybrid_searches"])
	}
	if _, ok := body["health"].(map[string]any); !ok {
		t.Fatalf("expected health in stats: %v", body)
	}
}

func TestCacheResetAndInvalidate(t *testing.T) {
	rt, ts := newTestRouter(config.Config{})
	handler := rt.Handler()

	res := doJSON(t, handler, http.MethodPost, "/v1/cache/reset", "")
	if res.Code != http.StatusOK || ts.admin.resets != 1 {
		t.Fatalf("expected reset, got code=%d resets=%d", res.Code, ts.admin.resets)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/cache/invalidate", `{"subject_id":"AZ-001","fact_type":"water"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(ts.admin.events) != 1 {
		t.Fatalf("expected one event, got %d", len(ts.admin.events))
	}
	if ev := ts.admin.events[0]; ev.SubjectID != "AZ-001" || ev.FactType != domain.FactWaterRights || ev.All {
		t.Fatalf("unexpected event: %+v", ev)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/cache/invalidate", `{"all":true}`)
	if res.Code != http.StatusOK || !ts.admin.events[1].All {
		t.Fatalf("expected all invalidation, got code=%d events=%+v", res.Code, ts.admin.events)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/cache/invalidate", `{}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without subject, got %d", res.Code)
	}
}

func TestCacheInvalidateReportsTierFailure(t *testing.T) {
	rt, ts := newTestRouter(config.Config{})
	ts.admin.err = domain.WrapError(domain.ErrTemporary, "invalidate", errors.New("redis down"))

	res := doJSON(t, rt.Handler(), http.MethodPost, "/v1/cache/invalidate", `{"subject_id":"AZ-001"}`)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}
