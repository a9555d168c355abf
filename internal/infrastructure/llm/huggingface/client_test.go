package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

func TestEmbedSendsTokenAndParsesSentenceVectors(t *testing.T) {
	var auth, path string
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`[[0.1,0.2],[0.3,0.4]]`))
	}))
	defer server.Close()

	e := NewEmbedder(server.URL, "sentence-transformers/all-MiniLM-L6-v2", "hf_test", 2, time.Second, nil)
	vectors, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[1][1] != 0.4 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
	if auth != "Bearer hf_test" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if path != "/pipeline/feature-extraction/sentence-transformers/all-MiniLM-L6-v2" {
		t.Fatalf("unexpected path %q", path)
	}
	if opts, _ := payload["options"].(map[string]any); opts["wait_for_model"] != true {
		t.Fatalf("expected wait_for_model option, got %v", payload["options"])
	}
}

func TestEmbedMeanPoolsTokenVectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[[1,2],[3,4]]]`))
	}))
	defer server.Close()

	vec, err := NewEmbedder(server.URL, "m", "", 0, time.Second, nil).EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if vec[0] != 2 || vec[1] != 3 {
		t.Fatalf("unexpected pooled vector: %v", vec)
	}
}

func TestEmbedAcceptsFlatVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[0.5,0.25,0.125]`))
	}))
	defer server.Close()

	vec, err := NewEmbedder(server.URL, "m", "", 3, time.Second, nil).EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbedFailsWithEmbeddingUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Model is currently loading"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewEmbedder(server.URL, "m", "", 384, time.Second, nil).EmbedQuery(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrEmbeddingUnavailable) || !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected unavailable temporary error, got %v", err)
	}
	if !strings.Contains(err.Error(), "currently loading") {
		t.Fatalf("expected body in error, got %v", err)
	}
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[0.1,0.2]]`))
	}))
	defer server.Close()

	_, err := NewEmbedder(server.URL, "m", "", 384, time.Second, nil).EmbedQuery(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected embedding unavailable, got %v", err)
	}
}
