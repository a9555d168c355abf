package usecase

import (
	"sort"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

const defaultRRFK = 60

type fusedCandidate struct {
	chunk domain.RankedChunk
	score float64
}

// fuseRRF merges the vector and keyword lists with Reciprocal Rank Fusion.
// Ranks are 1-based; a chunk missing from a list contributes nothing for it.
func fuseRRF(vector, keyword []domain.RetrievedChunk, rrfK int) []domain.RankedChunk {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	acc := make(map[string]*fusedCandidate, len(vector)+len(keyword))
	order := make([]string, 0, len(vector)+len(keyword))
	candidate := func(chunk domain.RetrievedChunk) *fusedCandidate {
		c, ok := acc[chunk.ID]
		if !ok {
			c = &fusedCandidate{chunk: domain.RankedChunk{ID: chunk.ID}}
			acc[chunk.ID] = c
			order = append(order, chunk.ID)
		}
		c.chunk = preferRicherChunk(c.chunk, chunk)
		return c
	}

	for rank, chunk := range dedupeByID(vector) {
		c := candidate(chunk)
		r := rank + 1
		c.chunk.VectorRank = &r
		c.chunk.VectorScore = chunk.Score
		c.score += 1.0 / float64(rrfK+r)
	}
	for rank, chunk := range dedupeByID(keyword) {
		c := candidate(chunk)
		r := rank + 1
		c.chunk.KeywordRank = &r
		c.score += 1.0 / float64(rrfK+r)
	}

	out := make([]domain.RankedChunk, 0, len(acc))
	for _, id := range order {
		c := acc[id]
		c.chunk.FusedScore = c.score
		out = append(out, c.chunk)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		vi, vj := rankOrInfinity(out[i].VectorRank), rankOrInfinity(out[j].VectorRank)
		if vi != vj {
			return vi < vj
		}
		return out[i].ID < out[j].ID
	})

	return out
}

// dedupeByID keeps the first, best-ranked occurrence of each chunk id.
func dedupeByID(chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	seen := make(map[string]struct{}, len(chunks))
	out := make([]domain.RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.ID == "" {
			continue
		}
		if _, ok := seen[chunk.ID]; ok {
			continue
		}
		seen[chunk.ID] = struct{}{}
		out = append(out, chunk)
	}
	return out
}

func rankOrInfinity(rank *int) int {
	if rank == nil {
		return int(^uint(0) >> 1)
	}
	return *rank
}

func trimRanked(chunks []domain.RankedChunk, limit int) []domain.RankedChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

func preferRicherChunk(current domain.RankedChunk, candidate domain.RetrievedChunk) domain.RankedChunk {
	if current.Content == "" {
		current.Content = candidate.Content
	}
	if current.Topic == "" {
		current.Topic = candidate.Topic
	}
	if current.Title == "" {
		current.Title = candidate.Title
	}
	if current.Source == "" {
		current.Source = candidate.Source
	}
	return current
}
