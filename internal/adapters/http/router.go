package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/ebookgov/property-voice-agent/internal/config"
	"github.com/ebookgov/property-voice-agent/internal/core/cache"
	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/core/ports"
	"github.com/ebookgov/property-voice-agent/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

// CacheHealthReporter reports reachability of the cache tiers.
type CacheHealthReporter interface {
	Health(ctx context.Context) cache.Health
}

type Services struct {
	Properties  ports.PropertyFactService
	Listings    ports.PropertySearchService
	Knowledge   ports.KnowledgeQueryService
	CacheAdmin  ports.CacheAdmin
	CacheHealth CacheHealthReporter
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

type Router struct {
	cfg      config.Config
	services Services
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
}

func NewRouter(cfg config.Config, services Services, opts ...RouterOption) *Router {
	rt := &Router{
		cfg:      cfg,
		services: services,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/properties/lookup", rt.lookupProperty)
	mux.HandleFunc("/v1/properties/search", rt.searchProperties)
	mux.HandleFunc("/v1/knowledge/search", rt.searchKnowledge)
	mux.HandleFunc("/api/vapi/webhook", rt.voiceWebhook)
	mux.HandleFunc("/v1/cache/stats", rt.cacheStats)
	mux.HandleFunc("/v1/cache/reset", rt.cacheReset)
	mux.HandleFunc("/v1/cache/invalidate", rt.cacheInvalidate)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = newBackpressureGate(rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, rt.rejectHook("backpressure"))(handler)
	handler = rateLimitMiddleware(handler, rt.newLimiter(), rt.rejectHook("rate_limited"))
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler, rt.logger)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) newLimiter() *rate.Limiter {
	if rt.cfg.APIRateLimitRPS <= 0 {
		return nil
	}
	burst := rt.cfg.APIRateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst)
}

func (rt *Router) rejectHook(reason string) func() {
	if rt.metrics == nil {
		return nil
	}
	return func() {
		rt.metrics.RecordRejected(reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":                "ok",
		"keyword_index_enabled": rt.cfg.QdrantKeywordEnabled,
	}
	if rt.services.CacheHealth != nil {
		resp["cache"] = rt.services.CacheHealth.Health(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) lookupProperty(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.PropertyFactRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.SubjectID) == "" {
		writeError(w, http.StatusBadRequest, "subject_id is required")
		return
	}

	resp, err := rt.services.Properties.Lookup(r.Context(), req)
	if err != nil {
		rt.writeServiceError(w, r, "property_lookup_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) searchProperties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.PropertySearchRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := rt.services.Listings.Search(r.Context(), req)
	if err != nil {
		rt.writeServiceError(w, r, "property_search_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) searchKnowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req domain.KnowledgeQuery
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	answer, err := rt.services.Knowledge.Search(r.Context(), req)
	if err != nil {
		rt.writeServiceError(w, r, "knowledge_search_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type cacheStatsResponse struct {
	TotalRequests     uint64        `json:"total_requests"`
	CacheHits         uint64        `json:"cache_hits"`
	CacheMisses       uint64        `json:"cache_misses"`
	HitRate           float64       `json:"hit_rate"`
	HitRatePercent    float64       `json:"hit_rate_percent"`
	AvgHitLatencyMS   float64       `json:"avg_hit_latency_ms"`
	AvgMissLatencyMS  float64       `json:"avg_miss_latency_ms"`
	ImprovementFactor float64       `json:"improvement_factor"`
	HybridSearches    uint64        `json:"hybrid_searches"`
	Health            *cache.Health `json:"health,omitempty"`
}

func (rt *Router) cacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats := rt.services.CacheAdmin.Stats()
	hitRate := stats.HitRate()
	resp := cacheStatsResponse{
		TotalRequests:     stats.Total(),
		CacheHits:         stats.Hits,
		CacheMisses:       stats.Misses,
		HitRate:           hitRate,
		HitRatePercent:    hitRate * 100,
		AvgHitLatencyMS:   float64(stats.AvgHitLatency().Microseconds()) / 1000.0,
		AvgMissLatencyMS:  float64(stats.AvgMissLatency().Microseconds()) / 1000.0,
		ImprovementFactor: stats.ImprovementFactor(),
		HybridSearches:    stats.HybridSearches,
	}
	if rt.services.CacheHealth != nil {
		health := rt.services.CacheHealth.Health(r.Context())
		resp.Health = &health
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) cacheReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rt.services.CacheAdmin.ResetStats()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (rt *Router) cacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		SubjectID string `json:"subject_id"`
		FactType  string `json:"fact_type"`
		All       bool   `json:"all"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	event := domain.InvalidationEvent{
		SubjectID: strings.TrimSpace(req.SubjectID),
		All:       req.All,
	}
	if strings.TrimSpace(req.FactType) != "" {
		event.FactType = domain.ParseFactType(req.FactType)
	}
	if !event.All && event.SubjectID == "" {
		writeError(w, http.StatusBadRequest, "subject_id is required unless all is set")
		return
	}

	if err := rt.services.CacheAdmin.Invalidate(r.Context(), event); err != nil {
		rt.writeServiceError(w, r, "cache_invalidate_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "event": event})
}

func (rt *Router) writeServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error(event, "request_id", requestIDFromContext(r.Context()), "error_kind", errorKindLabel(err), "error", err)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
