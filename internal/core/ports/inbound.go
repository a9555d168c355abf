package ports

import (
	"context"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

// PropertyFactService answers cached property fact lookups.
type PropertyFactService interface {
	Lookup(ctx context.Context, req domain.PropertyFactRequest) (*domain.PropertyFactResponse, error)
}

// PropertySearchService runs hybrid searches over property listings.
type PropertySearchService interface {
	Search(ctx context.Context, req domain.PropertySearchRequest) (*domain.PropertySearchResponse, error)
}

// KnowledgeQueryService answers free-text knowledge questions.
type KnowledgeQueryService interface {
	Search(ctx context.Context, query domain.KnowledgeQuery) (*domain.KnowledgeAnswer, error)
}

// CacheAdmin is the operational surface of the lookup cache.
type CacheAdmin interface {
	Stats() domain.CacheStats
	ResetStats()
	Invalidate(ctx context.Context, event domain.InvalidationEvent) error
}

// KnowledgeIngestor loads documents into the knowledge index.
type KnowledgeIngestor interface {
	Ingest(ctx context.Context, docs []domain.KnowledgeDocument) (int, error)
}

// PropertySeeder upserts property records and invalidates their cache entries.
type PropertySeeder interface {
	Seed(ctx context.Context, properties []domain.Property) error
}
