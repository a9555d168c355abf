package huggingface

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
	"time"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/resilience"
)

const DefaultBaseURL = "https://api-inference.huggingface.co"

// Embedder calls the Inference API feature-extraction pipeline.
type Embedder struct {
	baseURL    string
	model      string
	token      string
	dimension  int
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewEmbedder(baseURL, model, token string, dimension int, timeout time.Duration, executor *resilience.Executor) *Embedder {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Embedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      strings.Trim(model, "/"),
		token:      token,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type statusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *statusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("huggingface feature-extraction status: %s", e.Status)
	}
	return fmt.Sprintf("huggingface feature-extraction status: %s: %s", e.Status, body)
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var raw json.RawMessage
	call := func(ctx context.Context) error {
		out, err := e.post(ctx, texts)
		if err != nil {
			return err
		}
		raw = out
		return nil
	}

	var err error
	if e.executor != nil {
		err = e.executor.ExecuteOnce(ctx, "huggingface.embed", call, classify)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if classify(err).Retryable {
			err = domain.WrapError(domain.ErrTemporary, "huggingface embed", err)
		}
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "huggingface embed", err)
	}

	vectors, err := decodeFeatures(raw, len(texts))
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "huggingface embed", err)
	}
	for i, v := range vectors {
		if e.dimension > 0 && len(v) != e.dimension {
			return nil, domain.WrapError(
				domain.ErrEmbeddingUnavailable,
				"huggingface embed",
				fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), e.dimension),
			)
		}
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) post(ctx context.Context, texts []string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{
		"inputs":  texts,
		"options": map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal feature-extraction request: %w", err)
	}

	url := e.baseURL + "/pipeline/feature-extraction/" + e.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create feature-extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface feature-extraction request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &statusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(msg)}
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode feature-extraction response: %w", err)
	}
	return raw, nil
}

// decodeFeatures accepts sentence embeddings ([n][d]), a single flat vector
// ([d]) or token embeddings ([n][tokens][d]), which are mean pooled.
func decodeFeatures(raw json.RawMessage, want int) ([][]float32, error) {
	var sentences [][]float32
	if err := json.Unmarshal(raw, &sentences); err == nil {
		return checkCount(sentences, want)
	}

	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		return checkCount([][]float32{flat}, want)
	}

	var tokens [][][]float32
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("unrecognized feature-extraction response: %w", err)
	}
	pooled := make([][]float32, len(tokens))
	for i, seq := range tokens {
		pooled[i] = meanPool(seq)
	}
	return checkCount(pooled, want)
}

func checkCount(vectors [][]float32, want int) ([][]float32, error) {
	if len(vectors) != want {
		return nil, fmt.Errorf("expected %d embeddings, got %d", want, len(vectors))
	}
	for _, v := range vectors {
		if len(v) == 0 {
			return nil, errors.New("empty embedding")
		}
	}
	return vectors, nil
}

func meanPool(seq [][]float32) []float32 {
	if len(seq) == 0 {
		return nil
	}
	out := make([]float32, len(seq[0]))
	for _, tok := range seq {
		for j := range out {
			if j < len(tok) {
				out[j] += tok[j]
			}
		}
	}
	for j := range out {
		out[j] /= float32(len(seq))
	}
	return out
}

func classify(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
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
