package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/core/ports"
)

// ListingIndexer writes one searchable document per property into the
// listing index. Documents are keyed by property id, so reseeding a property
// replaces its previous document.
type ListingIndexer struct {
	embedder  ports.Embedder
	indexer   ports.KnowledgeIndexer
	batchSize int
}

func NewListingIndexer(embedder ports.Embedder, indexer ports.KnowledgeIndexer, batchSize int) *ListingIndexer {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &ListingIndexer{embedder: embedder, indexer: indexer, batchSize: batchSize}
}

func (l *ListingIndexer) Index(ctx context.Context, properties []domain.Property) error {
	ensured := false
	for start := 0; start < len(properties); start += l.batchSize {
		batch := properties[start:min(start+l.batchSize, len(properties))]

		chunks := make([]domain.KnowledgeChunk, len(batch))
		texts := make([]string, len(batch))
		for i := range batch {
			chunks[i] = listingChunk(&batch[i])
			texts[i] = chunks[i].Content
		}

		vectors, err := l.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed listings: %w", err)
		}
		if len(vectors) != len(chunks) || len(vectors[0]) == 0 {
			return domain.WrapError(
				domain.ErrEmbeddingUnavailable,
				"embed listings",
				fmt.Errorf("vectors/listings mismatch: %d/%d", len(vectors), len(chunks)),
			)
		}
		if !ensured {
			if err := l.indexer.EnsureCollection(ctx, len(vectors[0])); err != nil {
				return fmt.Errorf("ensure listing collection: %w", err)
			}
			ensured = true
		}
		if err := l.indexer.IndexChunks(ctx, chunks, vectors); err != nil {
			return fmt.Errorf("index listings: %w", err)
		}
	}
	return nil
}

func listingChunk(p *domain.Property) domain.KnowledgeChunk {
	return domain.KnowledgeChunk{
		ID:         p.ID,
		DocumentID: p.ID,
		Topic:      domain.ListingTopic,
		Title:      displayName(p),
		Source:     addressLine(p.Location),
		Content:    listingText(p),
	}
}

// listingText holds what callers describe a listing by, such as its address,
// its water source and the solar or HOA companies attached to it.
func listingText(p *domain.Property) string {
	parts := []string{sentence(displayName(p))}
	if addr := addressLine(p.Location); addr != "" {
		parts = append(parts, sentence(addr))
	}
	if p.Location.County != "" {
		parts = append(parts, sentence(p.Location.County+" County"))
	}
	if p.Features.Structure != "" {
		parts = append(parts, sentence(p.Features.Structure))
	}
	water := p.Features.Water
	if p.WaterRights != nil && p.WaterRights.Type != "" {
		water = p.WaterRights.Type
	}
	if water != "" {
		parts = append(parts, sentence("Water source: "+water))
	}
	if p.SolarLease != nil && p.SolarLease.Provider != "" {
		parts = append(parts, sentence("Solar lease with "+p.SolarLease.Provider))
	}
	if p.HOA != nil && p.HOA.Name != "" {
		parts = append(parts, sentence("HOA: "+p.HOA.Name))
	}
	if len(p.Highlights) > 0 {
		parts = append(parts, sentence(strings.Join(p.Highlights, ", ")))
	}
	return joinSentences(parts...)
}

func addressLine(loc domain.Location) string {
	var parts []string
	for _, s := range []string{loc.Address, loc.City} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	if region := strings.TrimSpace(loc.State + " " + loc.Zip); region != "" {
		parts = append(parts, region)
	}
	return strings.Join(parts, ", ")
}
