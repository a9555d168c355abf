package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "text-sparse"
)

// pointNamespace scopes deterministic point ids so re-ingesting a chunk
// overwrites the previous point instead of duplicating it.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("property-voice-agent/knowledge"))

type Option func(*Client)

// WithKeywordIndex toggles the sparse keyword vector. When disabled,
// KeywordSearch reports domain.ErrKeywordIndexUnavailable without a request.
func WithKeywordIndex(enabled bool) Option {
	return func(c *Client) {
		c.keywordEnabled = enabled
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

type Client struct {
	baseURL        string
	collection     string
	httpClient     *http.Client
	executor       *resilience.Executor
	keywordEnabled bool

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		collection:     collection,
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		keywordEnabled: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) KeywordEnabled() bool {
	return c.keywordEnabled
}

// PointID maps a chunk id to the deterministic Qdrant point id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

func (c *Client) VectorSearch(ctx context.Context, embedding []float32, topic string, limit int) ([]domain.RetrievedChunk, error) {
	if len(embedding) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant vector search", errors.New("empty embedding"))
	}
	points, err := c.query(ctx, "qdrant.vector_search", map[string]any{
		"query":        embedding,
		"using":        denseVectorName,
		"limit":        normalizeLimit(limit),
		"with_payload": true,
	}, topic)
	if err != nil {
		return nil, fmt.Errorf("qdrant vector search: %w", err)
	}
	return toChunks(points), nil
}

func (c *Client) KeywordSearch(ctx context.Context, query string, topic string, limit int) ([]domain.RetrievedChunk, error) {
	if !c.keywordEnabled {
		return nil, domain.WrapError(domain.ErrKeywordIndexUnavailable, "qdrant keyword search", errors.New("sparse index disabled"))
	}
	sparse := encodeSparseQuery(query)
	if len(sparse.Indices) == 0 {
		return []domain.RetrievedChunk{}, nil
	}
	points, err := c.query(ctx, "qdrant.keyword_search", map[string]any{
		"query":        sparse,
		"using":        sparseVectorName,
		"limit":        normalizeLimit(limit),
		"with_payload": true,
	}, topic)
	if err != nil {
		if isMissingVectorError(err) {
			return nil, domain.WrapError(domain.ErrKeywordIndexUnavailable, "qdrant keyword search", err)
		}
		return nil, fmt.Errorf("qdrant keyword search: %w", err)
	}
	return toChunks(points), nil
}

func (c *Client) query(ctx context.Context, operation string, reqBody map[string]any, topic string) ([]queryPoint, error) {
	if filter := topicFilter(topic); filter != nil {
		reqBody["filter"] = filter
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal query body: %w", err)
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)

	call := func(ctx context.Context) ([]queryPoint, error) {
		resp, err := c.do(ctx, http.MethodPost, url, body)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, newStatusError("query", resp)
		}
		return decodeQueryPoints(resp.Body)
	}
	if c.executor == nil {
		return call(ctx)
	}
	return resilience.Call(ctx, c.executor, operation, call, classifyQdrantError)
}

// EnsureCollection creates the collection with a named dense vector and,
// when keyword search is enabled, a sparse vector with IDF weighting.
func (c *Client) EnsureCollection(ctx context.Context, vectorSize int) error {
	if vectorSize <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant ensure collection", fmt.Errorf("vector size %d", vectorSize))
	}
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
	}
	if c.keywordEnabled {
		reqBody["sparse_vectors"] = map[string]any{
			sparseVectorName: map[string]any{"modifier": "idf"},
		}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 409 means the collection already exists.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("qdrant ensure collection: %w", newStatusError("ensure collection", resp))
	}
	if err := c.ensureTopicIndex(ctx); err != nil {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) ensureTopicIndex(ctx context.Context) error {
	body, err := json.Marshal(map[string]any{
		"field_name":   "topic",
		"field_schema": "keyword",
	})
	if err != nil {
		return fmt.Errorf("marshal payload index body: %w", err)
	}
	url := fmt.Sprintf("%s/collections/%s/index?wait=true", c.baseURL, c.collection)
	resp, err := c.do(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("qdrant payload index request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("qdrant payload index: %w", newStatusError("payload index", resp))
	}
	return nil
}

func (c *Client) IndexChunks(ctx context.Context, chunks []domain.KnowledgeChunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	if err := c.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		vector := map[string]any{denseVectorName: vectors[i]}
		if c.keywordEnabled {
			if sparse := encodeSparseDocument(chunk.Content, chunk.Title); len(sparse.Indices) > 0 {
				vector[sparseVectorName] = sparse
			}
		}
		points = append(points, point{
			ID:     PointID(chunk.ID),
			Vector: vector,
			Payload: map[string]any{
				"chunk_id":    chunk.ID,
				"doc_id":      chunk.DocumentID,
				"chunk_index": chunk.Index,
				"topic":       chunk.Topic,
				"title":       chunk.Title,
				"source":      chunk.Source,
				"content":     chunk.Content,
			},
		})
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)

	upsert := func(ctx context.Context) error {
		resp, err := c.do(ctx, http.MethodPut, url, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return newStatusError("upsert", resp)
		}
		return nil
	}
	if c.executor != nil {
		err = c.executor.Execute(ctx, "qdrant.upsert", upsert, classifyQdrantError)
	} else {
		err = upsert(ctx)
	}
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", strings.ToLower(method), err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant request: %w", err)
	}
	return resp, nil
}

type queryPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// decodeQueryPoints reads both the points/query shape ({"result":{"points":[]}})
// and the legacy search shape ({"result":[]}).
func decodeQueryPoints(r io.Reader) ([]queryPoint, error) {
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil, nil
	}

	var wrapped struct {
		Points []queryPoint `json:"points"`
	}
	if err := json.Unmarshal(envelope.Result, &wrapped); err == nil {
		return wrapped.Points, nil
	}
	var flat []queryPoint
	if err := json.Unmarshal(envelope.Result, &flat); err != nil {
		return nil, fmt.Errorf("decode query points: %w", err)
	}
	return flat, nil
}

func toChunks(points []queryPoint) []domain.RetrievedChunk {
	out := make([]domain.RetrievedChunk, 0, len(points))
	for _, p := range points {
		id := getStringPayload(p.Payload, "chunk_id")
		if id == "" {
			id = fmt.Sprintf("%v", p.ID)
		}
		out = append(out, domain.RetrievedChunk{
			ID:      id,
			Content: getStringPayload(p.Payload, "content"),
			Topic:   getStringPayload(p.Payload, "topic"),
			Title:   getStringPayload(p.Payload, "title"),
			Source:  getStringPayload(p.Payload, "source"),
			Metadata: map[string]any{
				"doc_id":      getStringPayload(p.Payload, "doc_id"),
				"chunk_index": p.Payload["chunk_index"],
			},
			Score: p.Score,
		})
	}
	return out
}

func topicFilter(topic string) map[string]any {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil
	}
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "topic",
				"match": map[string]any{"value": topic},
			},
		},
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

type statusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func newStatusError(operation string, resp *http.Response) *statusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &statusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}

// isMissingVectorError detects queries against a collection created without
// the sparse vector.
func isMissingVectorError(err error) bool {
	var statusErr *statusError
	if !errors.As(err, &statusErr) {
		return false
	}
	if statusErr.StatusCode != http.StatusBadRequest && statusErr.StatusCode != http.StatusNotFound {
		return false
	}
	return strings.Contains(strings.ToLower(statusErr.Body), "vector name")
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}
