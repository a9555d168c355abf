package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/core/ports"
)

const defaultEmbedBatchSize = 50

// KnowledgeIngestUseCase chunks, embeds and indexes knowledge documents.
type KnowledgeIngestUseCase struct {
	chunker   ports.Chunker
	embedder  ports.Embedder
	indexer   ports.KnowledgeIndexer
	batchSize int
	logger    *slog.Logger
}

func NewKnowledgeIngestUseCase(
	chunker ports.Chunker,
	embedder ports.Embedder,
	indexer ports.KnowledgeIndexer,
	batchSize int,
	logger *slog.Logger,
) *KnowledgeIngestUseCase {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KnowledgeIngestUseCase{
		chunker:   chunker,
		embedder:  embedder,
		indexer:   indexer,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Ingest indexes every document and returns the number of chunks written.
// Chunks with identical content are indexed once.
func (uc *KnowledgeIngestUseCase) Ingest(ctx context.Context, docs []domain.KnowledgeDocument) (int, error) {
	chunks, err := uc.chunk(docs)
	if err != nil {
		return 0, err
	}

	ensured := false
	indexed := 0
	for start := 0; start < len(chunks); start += uc.batchSize {
		end := min(start+uc.batchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := uc.embed(ctx, batch)
		if err != nil {
			return indexed, err
		}
		if !ensured {
			if err := uc.indexer.EnsureCollection(ctx, len(vectors[0])); err != nil {
				return indexed, fmt.Errorf("ensure knowledge collection: %w", err)
			}
			ensured = true
		}
		if err := uc.indexer.IndexChunks(ctx, batch, vectors); err != nil {
			return indexed, fmt.Errorf("index knowledge chunks: %w", err)
		}
		indexed += len(batch)
		uc.logger.Info("knowledge_batch_indexed", "batch_start", start, "batch_size", len(batch), "total", len(chunks))
	}
	return indexed, nil
}

func (uc *KnowledgeIngestUseCase) chunk(docs []domain.KnowledgeDocument) ([]domain.KnowledgeChunk, error) {
	if len(docs) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest knowledge", errors.New("no documents"))
	}

	seen := make(map[string]struct{})
	var out []domain.KnowledgeChunk
	for i, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "ingest knowledge", fmt.Errorf("document %d has empty content", i))
		}
		docID := strings.TrimSpace(doc.ID)
		if docID == "" {
			docID = contentHash(doc.Source + "|" + doc.Title + "|" + content)[:16]
		}

		for idx, piece := range uc.chunker.Split(content) {
			hash := contentHash(piece)
			if _, dup := seen[hash]; dup {
				continue
			}
			seen[hash] = struct{}{}
			out = append(out, domain.KnowledgeChunk{
				ID:         fmt.Sprintf("%s:%d", docID, idx),
				DocumentID: docID,
				Index:      idx,
				Topic:      strings.ToLower(strings.TrimSpace(doc.Topic)),
				Title:      doc.Title,
				Source:     doc.Source,
				Content:    piece,
			})
		}
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest knowledge", errors.New("chunking produced zero chunks"))
	}
	return out, nil
}

func (uc *KnowledgeIngestUseCase) embed(ctx context.Context, batch []domain.KnowledgeChunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed knowledge chunks: %w", err)
	}
	if len(vectors) != len(batch) || len(vectors[0]) == 0 {
		return nil, domain.WrapError(
			domain.ErrEmbeddingUnavailable,
			"embed knowledge chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(batch)),
		)
	}
	return vectors, nil
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
