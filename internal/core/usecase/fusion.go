package usecase

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/core/ports"
)

const (
	defaultSearchDepth = 40
	defaultTopK        = 5
)

type FusionConfig struct {
	SearchDepth    int
	TopK           int
	RRFK           int
	KeywordEnabled bool
}

func (c FusionConfig) normalize() FusionConfig {
	out := c
	if out.SearchDepth <= 0 {
		out.SearchDepth = defaultSearchDepth
	}
	if out.TopK <= 0 {
		out.TopK = defaultTopK
	}
	if out.RRFK <= 0 {
		out.RRFK = defaultRRFK
	}
	return out
}

// FusionObserver receives one event per fused query.
type FusionObserver interface {
	ObserveFusion(mode domain.FusionMode, degraded bool, results int)
}

type FusionRequest struct {
	Embedding []float32
	Query     string
	Topic     string
	Depth     int
	TopK      int
}

type FusionResult struct {
	Chunks         []domain.RankedChunk
	Mode           domain.FusionMode
	Degraded       bool
	DegradedReason string
}

const (
	reasonEmbeddingUnavailable    = "embedding_unavailable"
	reasonVectorSearchFailed      = "vector_search_failed"
	reasonKeywordNotProvisioned   = "keyword_index_not_provisioned"
	reasonKeywordIndexUnavailable = "keyword_index_unavailable"
)

type FusionEngine struct {
	store    ports.RetrievalStore
	cfg      FusionConfig
	logger   *slog.Logger
	observer FusionObserver
}

func NewFusionEngine(store ports.RetrievalStore, cfg FusionConfig, logger *slog.Logger, observer FusionObserver) *FusionEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &FusionEngine{
		store:    store,
		cfg:      cfg.normalize(),
		logger:   logger,
		observer: observer,
	}
}

func (e *FusionEngine) RRFK() int {
	return e.cfg.RRFK
}

// Fuse runs the vector and keyword searches concurrently and merges them.
// It never fails: a vector search error yields an empty result, an
// unavailable keyword index yields a degraded vector-only result.
func (e *FusionEngine) Fuse(ctx context.Context, req FusionRequest) FusionResult {
	depth := req.Depth
	if depth <= 0 {
		depth = e.cfg.SearchDepth
	}
	topK := req.TopK
	if topK <= 0 {
		topK = e.cfg.TopK
	}
	query := strings.TrimSpace(req.Query)

	var (
		vectorHits, keywordHits []domain.RetrievedChunk
		vectorErr, keywordErr   error
	)
	runVector := len(req.Embedding) > 0
	runKeyword := e.cfg.KeywordEnabled && query != ""

	var g errgroup.Group
	if runVector {
		g.Go(func() error {
			vectorHits, vectorErr = e.store.VectorSearch(ctx, req.Embedding, req.Topic, depth)
			return nil
		})
	}
	if runKeyword {
		g.Go(func() error {
			keywordHits, keywordErr = e.store.KeywordSearch(ctx, query, req.Topic, depth)
			return nil
		})
	}
	_ = g.Wait()

	var reasons []string
	if !runVector {
		reasons = append(reasons, reasonEmbeddingUnavailable)
	}
	if vectorErr != nil {
		e.logger.Warn("vector_search_failed", "topic", req.Topic, "error", vectorErr)
		return e.finish(FusionResult{
			Chunks:         []domain.RankedChunk{},
			Mode:           domain.FusionNone,
			Degraded:       true,
			DegradedReason: reasonVectorSearchFailed,
		})
	}

	switch {
	case !e.cfg.KeywordEnabled:
		reasons = append(reasons, reasonKeywordNotProvisioned)
	case keywordErr != nil:
		e.logger.Warn("keyword_search_failed", "topic", req.Topic, "error", keywordErr)
		keywordHits = nil
		reasons = append(reasons, reasonKeywordIndexUnavailable)
	}

	// The mode reflects every list that matched, even when trimming to
	// topK leaves only one of them on the page.
	merged := fuseRRF(vectorHits, keywordHits, e.cfg.RRFK)
	fused := trimRanked(merged, topK)
	result := FusionResult{
		Chunks:         fused,
		Mode:           contributingMode(merged),
		Degraded:       len(reasons) > 0,
		DegradedReason: strings.Join(reasons, ","),
	}
	if result.Degraded {
		e.logger.Info("fusion_degraded", "mode", string(result.Mode), "reason", result.DegradedReason, "results", len(fused))
	}
	return e.finish(result)
}

func (e *FusionEngine) finish(result FusionResult) FusionResult {
	if e.observer != nil {
		e.observer.ObserveFusion(result.Mode, result.Degraded, len(result.Chunks))
	}
	return result
}

// contributingMode labels the result by which lists contributed to it.
func contributingMode(chunks []domain.RankedChunk) domain.FusionMode {
	var hasVector, hasKeyword bool
	for _, c := range chunks {
		if c.VectorRank != nil {
			hasVector = true
		}
		if c.KeywordRank != nil {
			hasKeyword = true
		}
	}
	switch {
	case hasVector && hasKeyword:
		return domain.FusionHybrid
	case hasVector:
		return domain.FusionVectorOnly
	case hasKeyword:
		return domain.FusionKeywordOnly
	default:
		return domain.FusionNone
	}
}
