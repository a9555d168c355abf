package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/resilience"
)

// StatusError is a non-2xx reply from the embed endpoint.
type StatusError struct {
	Model      string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("ollama embed model %q: %s", e.Model, e.Status)
	if body := strings.TrimSpace(e.Body); body != "" {
		msg += ": " + body
	}
	return msg
}

// modelMissing reports a 404, which Ollama returns when the model is not pulled.
func (e *StatusError) modelMissing() bool {
	return e.StatusCode == http.StatusNotFound
}

func classifyEmbedError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.modelMissing() {
			// Every call fails until the model is pulled.
			return resilience.ErrorClassification{RecordFailure: true}
		}
		switch statusErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// embeddingUnavailable marks a failed embed call. Transient failures also
// carry ErrTemporary so callers can tell an outage from a bad request.
func embeddingUnavailable(err error) error {
	if classifyEmbedError(err).Retryable {
		err = domain.WrapError(domain.ErrTemporary, "ollama embed", err)
	}
	return domain.WrapError(domain.ErrEmbeddingUnavailable, "ollama embed", err)
}
