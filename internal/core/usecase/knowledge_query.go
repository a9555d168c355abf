package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/core/ports"
)

// KnowledgeQueryUseCase answers free-text questions from the knowledge index.
// Results are not cached: query text and topic combinations are too varied.
type KnowledgeQueryUseCase struct {
	embedder ports.Embedder
	fusion   *FusionEngine
	logger   *slog.Logger
}

func NewKnowledgeQueryUseCase(embedder ports.Embedder, fusion *FusionEngine, logger *slog.Logger) *KnowledgeQueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &KnowledgeQueryUseCase{
		embedder: embedder,
		fusion:   fusion,
		logger:   logger,
	}
}

func (uc *KnowledgeQueryUseCase) Search(ctx context.Context, q domain.KnowledgeQuery) (*domain.KnowledgeAnswer, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search knowledge", fmt.Errorf("query is required"))
	}
	topic := strings.ToLower(strings.TrimSpace(q.Topic))

	embedding, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		uc.logger.Warn("query_embedding_failed", "topic", topic, "error", err)
		embedding = nil
	}

	result := uc.fusion.Fuse(ctx, FusionRequest{
		Embedding: embedding,
		Query:     query,
		Topic:     topic,
	})

	answer := &domain.KnowledgeAnswer{
		Answer:         domain.NoKnowledgeAnswer,
		Sources:        distinctSources(result.Chunks),
		Mode:           result.Mode,
		Degraded:       result.Degraded,
		DegradedReason: result.DegradedReason,
		Results:        result.Chunks,
	}
	if len(result.Chunks) > 0 {
		answer.Answer = strings.TrimSpace(result.Chunks[0].Content)
		answer.Confidence = confidence(result.Chunks[0].FusedScore, result.Mode, uc.fusion.RRFK())
	}
	return answer, nil
}

// confidence scales the top fused score by the best score the mode can reach.
func confidence(top float64, mode domain.FusionMode, rrfK int) float64 {
	signals := 0
	switch mode {
	case domain.FusionHybrid:
		signals = 2
	case domain.FusionVectorOnly, domain.FusionKeywordOnly:
		signals = 1
	}
	if signals == 0 || top <= 0 {
		return 0
	}
	best := float64(signals) / float64(rrfK+1)
	return math.Min(1, math.Round(top/best*1000)/1000)
}

func distinctSources(chunks []domain.RankedChunk) []string {
	out := make([]string, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		name := c.Title
		if name == "" {
			name = c.Source
		}
		if name == "" {
			name = c.ID
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
