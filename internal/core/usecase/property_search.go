package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ebookgov/property-voice-agent/internal/core/cache"
	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/core/ports"
)

const (
	defaultListingSearchTTL      = time.Hour
	maxListingTopK               = 20
	defaultResolveMinVectorScore = 0.75
)

type PropertySearchConfig struct {
	TTL time.Duration
	// ResolveMinVectorScore is the similarity a vector-only top hit needs
	// before free-form speech is resolved to it.
	ResolveMinVectorScore float64
}

// PropertySearchUseCase runs cached hybrid searches over the listing index.
type PropertySearchUseCase struct {
	embedder ports.Embedder
	fusion   *FusionEngine
	cache    *cache.LookupCache
	cfg      PropertySearchConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewPropertySearchUseCase(
	embedder ports.Embedder,
	fusion *FusionEngine,
	lookupCache *cache.LookupCache,
	cfg PropertySearchConfig,
	logger *slog.Logger,
) *PropertySearchUseCase {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultListingSearchTTL
	}
	if cfg.ResolveMinVectorScore <= 0 {
		cfg.ResolveMinVectorScore = defaultResolveMinVectorScore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PropertySearchUseCase{
		embedder: embedder,
		fusion:   fusion,
		cache:    lookupCache,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (uc *PropertySearchUseCase) Search(ctx context.Context, req domain.PropertySearchRequest) (*domain.PropertySearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search properties", fmt.Errorf("query is required"))
	}
	topK := req.TopK
	switch {
	case topK <= 0:
		topK = defaultTopK
	case topK > maxListingTopK:
		topK = maxListingTopK
	}
	key := domain.NewSearchCacheKey(query, topK)

	lookup, err := uc.cache.GetOrFetch(ctx, key, func(ctx context.Context) (cache.Fetched, error) {
		result := listingResult(query, uc.run(ctx, query, topK))
		payload, err := json.Marshal(result)
		if err != nil {
			return cache.Fetched{}, fmt.Errorf("marshal listing search: %w", err)
		}
		return cache.Fetched{Payload: payload, Cacheable: cacheableSearch(result.DegradedReason), TTL: uc.cfg.TTL}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("search properties: %w", err)
	}

	var result domain.PropertySearchResult
	if err := json.Unmarshal(lookup.Payload, &result); err != nil {
		uc.logger.Error("cached_search_decode_failed", "key", key.String(), "error", err)
		result = listingResult(query, uc.run(ctx, query, topK))
	}
	result.Query = query

	return &domain.PropertySearchResponse{
		PropertySearchResult: result,
		ResultCount:          len(result.Results),
		CacheHit:             lookup.Hit,
		LatencyMS:            float64(lookup.Latency.Microseconds()) / 1000.0,
		RetrievedAt:          uc.now().UTC(),
	}, nil
}

// ResolvePropertyID picks the listing that free-form speech, such as a street
// address, most likely refers to. A top hit without keyword evidence must be
// close enough in vector space to be trusted.
func (uc *PropertySearchUseCase) ResolvePropertyID(ctx context.Context, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	fused := uc.run(ctx, text, 1)
	if len(fused.Chunks) == 0 {
		return "", false
	}
	top := fused.Chunks[0]
	if top.KeywordRank == nil && top.VectorScore < uc.cfg.ResolveMinVectorScore {
		uc.logger.Info("property_resolve_rejected", "text", text, "vector_score", top.VectorScore)
		return "", false
	}
	uc.logger.Info("property_resolved", "text", text, "property_id", top.ID, "mode", string(fused.Mode))
	return top.ID, true
}

func (uc *PropertySearchUseCase) run(ctx context.Context, query string, topK int) FusionResult {
	uc.cache.RecordHybridSearch()
	embedding, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		uc.logger.Warn("listing_embedding_failed", "error", err)
		embedding = nil
	}
	return uc.fusion.Fuse(ctx, FusionRequest{
		Embedding: embedding,
		Query:     query,
		Topic:     domain.ListingTopic,
		TopK:      topK,
	})
}

func listingResult(query string, fused FusionResult) domain.PropertySearchResult {
	matches := make([]domain.PropertyMatch, 0, len(fused.Chunks))
	for _, c := range fused.Chunks {
		matches = append(matches, domain.PropertyMatch{
			PropertyID:  c.ID,
			Name:        c.Title,
			Address:     c.Source,
			Summary:     c.Content,
			FusedScore:  c.FusedScore,
			VectorRank:  c.VectorRank,
			KeywordRank: c.KeywordRank,
		})
	}
	return domain.PropertySearchResult{
		Query:          query,
		Results:        matches,
		Mode:           fused.Mode,
		Degraded:       fused.Degraded,
		DegradedReason: fused.DegradedReason,
	}
}

// cacheableSearch keeps results shaped by a passing outage out of the cache.
// A keyword index that was never provisioned is a steady state and does not
// block caching.
func cacheableSearch(degradedReason string) bool {
	for _, reason := range strings.Split(degradedReason, ",") {
		switch reason {
		case reasonEmbeddingUnavailable, reasonVectorSearchFailed, reasonKeywordIndexUnavailable:
			return false
		}
	}
	return true
}
