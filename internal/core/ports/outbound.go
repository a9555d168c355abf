package ports

import (
	"context"
	"time"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}

// RetrievalStore runs the two ranked searches over the knowledge index.
// KeywordSearch returns domain.ErrKeywordIndexUnavailable when the keyword
// index is not provisioned.
type RetrievalStore interface {
	VectorSearch(ctx context.Context, embedding []float32, topic string, limit int) ([]domain.RetrievedChunk, error)
	KeywordSearch(ctx context.Context, query string, topic string, limit int) ([]domain.RetrievedChunk, error)
}

// KnowledgeIndexer writes knowledge chunks into the retrieval index.
type KnowledgeIndexer interface {
	EnsureCollection(ctx context.Context, vectorSize int) error
	IndexChunks(ctx context.Context, chunks []domain.KnowledgeChunk, vectors [][]float32) error
}

// PropertyRepository reads and writes authoritative property records.
type PropertyRepository interface {
	FetchRecord(ctx context.Context, subjectID string) (*domain.Property, error)
	Upsert(ctx context.Context, property domain.Property) error
}

// DistributedCache is the shared key-value tier. Get returns
// domain.ErrCacheMiss for an absent key.
type DistributedCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Ping(ctx context.Context) error
}

// InvalidationBus fans cache invalidation events out to every API instance.
type InvalidationBus interface {
	PublishInvalidation(ctx context.Context, event domain.InvalidationEvent) error
	SubscribeInvalidation(ctx context.Context, handler func(context.Context, domain.InvalidationEvent) error) error
}
