package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/resilience"
)

func TestIndexChunksEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var upserted map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/kb":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/kb/index":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/kb/points":
			_ = json.NewDecoder(r.Body).Decode(&upserted)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "kb")
	chunks := []domain.KnowledgeChunk{
		{ID: "water:0", DocumentID: "water", Topic: "water_rights", Title: "Water", Content: "Shared wells need an agreement."},
		{ID: "water:1", DocumentID: "water", Index: 1, Topic: "water_rights", Title: "Water", Content: "Hauled water is common."},
	}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	if err := client.IndexChunks(context.Background(), chunks, vectors); err != nil {
		t.Fatalf("first IndexChunks() error = %v", err)
	}
	if err := client.IndexChunks(context.Background(), chunks, vectors); err != nil {
		t.Fatalf("second IndexChunks() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}

	points, _ := upserted["points"].([]any)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %v", upserted)
	}
	first, _ := points[0].(map[string]any)
	if first["id"] != PointID("water:0") {
		t.Fatalf("expected deterministic point id, got %v", first["id"])
	}
	vector, _ := first["vector"].(map[string]any)
	if _, ok := vector[denseVectorName]; !ok {
		t.Fatalf("expected dense vector, got %v", vector)
	}
	if _, ok := vector[sparseVectorName]; !ok {
		t.Fatalf("expected sparse vector, got %v", vector)
	}
}

func TestEnsureCollectionOmitsSparseVectorWhenKeywordDisabled(t *testing.T) {
	var created map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/kb" {
			_ = json.NewDecoder(r.Body).Decode(&created)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(server.URL, "kb", WithKeywordIndex(false))
	if err := client.EnsureCollection(context.Background(), 384); err != nil {
		t.Fatalf("EnsureCollection() error = %v", err)
	}
	if _, ok := created["sparse_vectors"]; ok {
		t.Fatalf("expected no sparse vectors, got %v", created)
	}
	vectors, _ := created["vectors"].(map[string]any)
	dense, _ := vectors[denseVectorName].(map[string]any)
	if dense["size"] != float64(384) {
		t.Fatalf("unexpected dense config %v", vectors)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	err := New(server.URL, "kb").EnsureCollection(context.Background(), 2)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestEnsureCollectionAcceptsExistingCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	if err := New(server.URL, "kb").EnsureCollection(context.Background(), 2); err != nil {
		t.Fatalf("EnsureCollection() error = %v", err)
	}
}

func TestVectorSearchQueriesDenseVectorWithTopicFilter(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/kb/points/query" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"id":"p1","score":0.91,"payload":{"chunk_id":"hoa:0","content":"HOA fees vary.","topic":"hoa","title":"HOA basics","source":"kb/hoa.md","chunk_index":0}},
			{"id":"p2","score":0.80,"payload":{"content":"No chunk id."}}
		]}}`))
	}))
	defer server.Close()

	chunks, err := New(server.URL, "kb").VectorSearch(context.Background(), []float32{0.1, 0.2}, "hoa", 40)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if body["using"] != denseVectorName || body["limit"] != float64(40) {
		t.Fatalf("unexpected query body %v", body)
	}
	if _, ok := body["filter"]; !ok {
		t.Fatalf("expected topic filter, got %v", body)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].ID != "hoa:0" || chunks[0].Title != "HOA basics" || chunks[0].Score != 0.91 {
		t.Fatalf("unexpected first chunk %+v", chunks[0])
	}
	if chunks[1].ID != "p2" {
		t.Fatalf("expected point id fallback, got %q", chunks[1].ID)
	}
}

func TestVectorSearchOmitsFilterWithoutTopic(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	chunks, err := New(server.URL, "kb").VectorSearch(context.Background(), []float32{0.1}, "", 5)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %v", chunks)
	}
	if _, ok := body["filter"]; ok {
		t.Fatalf("expected no filter, got %v", body["filter"])
	}
}

func TestKeywordSearchUsesSparseVector(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"result":{"points":[{"id":"p1","score":3.2,"payload":{"chunk_id":"septic:0","content":"Septic permits."}}]}}`))
	}))
	defer server.Close()

	chunks, err := New(server.URL, "kb").KeywordSearch(context.Background(), "septic permit", "", 10)
	if err != nil {
		t.Fatalf("KeywordSearch() error = %v", err)
	}
	if body["using"] != sparseVectorName {
		t.Fatalf("expected sparse vector query, got %v", body["using"])
	}
	query, _ := body["query"].(map[string]any)
	if indices, _ := query["indices"].([]any); len(indices) != 2 {
		t.Fatalf("expected 2 sparse terms, got %v", query)
	}
	if len(chunks) != 1 || chunks[0].ID != "septic:0" {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
}

func TestKeywordSearchDisabledReportsUnavailable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	_, err := New(server.URL, "kb", WithKeywordIndex(false)).KeywordSearch(context.Background(), "septic", "", 10)
	if !domain.IsKind(err, domain.ErrKeywordIndexUnavailable) {
		t.Fatalf("expected keyword index unavailable, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no request when keyword index is disabled")
	}
}

func TestKeywordSearchMissingSparseVectorReportsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"Wrong input: Not existing vector name error: text-sparse"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := New(server.URL, "kb").KeywordSearch(context.Background(), "septic", "", 10)
	if !domain.IsKind(err, domain.ErrKeywordIndexUnavailable) {
		t.Fatalf("expected keyword index unavailable, got %v", err)
	}
}

func TestKeywordSearchStopwordOnlyQueryReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	defer server.Close()

	chunks, err := New(server.URL, "kb").KeywordSearch(context.Background(), "what is the", "", 10)
	if err != nil || chunks == nil || len(chunks) != 0 {
		t.Fatalf("expected empty non-nil result, got %v %v", chunks, err)
	}
}

func TestVectorSearchRetriesTransientStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"points":[{"id":"p1","score":0.5,"payload":{"chunk_id":"c1"}}]}}`))
	}))
	defer server.Close()

	cfg := resilience.DefaultConfig()
	cfg.RetryInitialBackoff = 1
	cfg.RetryMaxBackoff = 1
	client := New(server.URL, "kb", WithExecutor(resilience.NewExecutor(cfg)))

	chunks, err := client.VectorSearch(context.Background(), []float32{0.1}, "", 5)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(chunks) != 1 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected success on second attempt, calls=%d chunks=%v", calls, chunks)
	}
}

func TestVectorSearchDoesNotRetryClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "kb", WithExecutor(resilience.NewExecutor(resilience.DefaultConfig())))
	if _, err := client.VectorSearch(context.Background(), []float32{0.1}, "", 5); err == nil {
		t.Fatalf("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}
