package usecase

import (
	"testing"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

func TestFuseRRFSumsScoresAcrossLists(t *testing.T) {
	vector := []domain.RetrievedChunk{
		{ID: "doc-1:0", Content: "a", Score: 0.9},
		{ID: "doc-2:0", Content: "b", Score: 0.8},
	}
	keyword := []domain.RetrievedChunk{
		{ID: "doc-2:0", Content: "b", Score: 7.1},
		{ID: "doc-3:1", Content: "c", Score: 3.2},
	}

	fused := fuseRRF(vector, keyword, 60)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused candidates, got %d", len(fused))
	}
	if fused[0].ID != "doc-2:0" {
		t.Fatalf("expected doc-2:0 first after RRF fusion, got %s", fused[0].ID)
	}
	want := 1.0/62 + 1.0/61
	if fused[0].FusedScore != want {
		t.Fatalf("expected fused score %v, got %v", want, fused[0].FusedScore)
	}
	if *fused[0].VectorRank != 2 || *fused[0].KeywordRank != 1 {
		t.Fatalf("unexpected ranks: vector=%d keyword=%d", *fused[0].VectorRank, *fused[0].KeywordRank)
	}
	if fused[0].VectorScore != 0.8 {
		t.Fatalf("expected vector similarity to be kept, got %v", fused[0].VectorScore)
	}
}

func TestFuseRRFEqualScoresPreferVectorRank(t *testing.T) {
	vector := []domain.RetrievedChunk{{ID: "zeta", Content: "vector hit"}}
	keyword := []domain.RetrievedChunk{{ID: "alpha", Content: "keyword hit"}}

	for i := 0; i < 20; i++ {
		fused := fuseRRF(vector, keyword, 60)
		if len(fused) != 2 {
			t.Fatalf("expected 2 fused candidates, got %d", len(fused))
		}
		if fused[0].FusedScore != 1.0/61 || fused[1].FusedScore != 1.0/61 {
			t.Fatalf("expected both scores to be 1/61, got %v and %v", fused[0].FusedScore, fused[1].FusedScore)
		}
		if fused[0].ID != "zeta" {
			t.Fatalf("run %d: expected vector-ranked chunk first, got %s", i, fused[0].ID)
		}
		if fused[1].VectorRank != nil || fused[1].KeywordRank == nil {
			t.Fatalf("unexpected ranks on keyword-only chunk: %+v", fused[1])
		}
	}
}

func TestFuseRRFMirroredListsTieBreakByVectorRank(t *testing.T) {
	vector := []domain.RetrievedChunk{{ID: "b"}, {ID: "a"}}
	keyword := []domain.RetrievedChunk{{ID: "a"}, {ID: "b"}}

	fused := fuseRRF(vector, keyword, 60)
	if fused[0].ID != "b" || fused[1].ID != "a" {
		t.Fatalf("expected vector order to break the tie, got %s,%s", fused[0].ID, fused[1].ID)
	}
}

func TestFuseRRFDuplicateKeepsBestRank(t *testing.T) {
	vector := []domain.RetrievedChunk{{ID: "a"}, {ID: "b"}, {ID: "a"}}

	fused := fuseRRF(vector, nil, 60)
	if len(fused) != 2 {
		t.Fatalf("expected duplicates collapsed, got %d", len(fused))
	}
	if *fused[0].VectorRank != 1 || fused[0].FusedScore != 1.0/61 {
		t.Fatalf("expected best rank kept, got %+v", fused[0])
	}
}

func TestFuseRRFDefaultsK(t *testing.T) {
	fused := fuseRRF([]domain.RetrievedChunk{{ID: "a"}}, nil, 0)
	if fused[0].FusedScore != 1.0/61 {
		t.Fatalf("expected default k=60, got score %v", fused[0].FusedScore)
	}
}

func TestFuseRRFFillsMissingFieldsFromKeywordHit(t *testing.T) {
	vector := []domain.RetrievedChunk{{ID: "a", Content: "text"}}
	keyword := []domain.RetrievedChunk{{ID: "a", Title: "Water FAQ", Topic: "water_rights"}}

	fused := fuseRRF(vector, keyword, 60)
	if fused[0].Content != "text" || fused[0].Title != "Water FAQ" || fused[0].Topic != "water_rights" {
		t.Fatalf("unexpected merged chunk: %+v", fused[0])
	}
}

func TestTrimRanked(t *testing.T) {
	chunks := []domain.RankedChunk{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	if got := trimRanked(chunks, 2); len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
	if got := trimRanked(chunks, 0); len(got) != 3 {
		t.Fatalf("expected untouched slice, got %d", len(got))
	}
}
