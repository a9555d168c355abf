package httpadapter

import (
	"net/http"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

var statusByKind = map[error]int{
	domain.ErrInvalidInput:            http.StatusBadRequest,
	domain.ErrPropertyNotFound:        http.StatusNotFound,
	domain.ErrEmbeddingUnavailable:    http.StatusServiceUnavailable,
	domain.ErrKeywordIndexUnavailable: http.StatusServiceUnavailable,
	domain.ErrTemporary:               http.StatusServiceUnavailable,
}

// statusForError maps an error kind to a response status. Unknown errors are
// internal; a cache miss never reaches a handler.
func statusForError(err error) int {
	if status, ok := statusByKind[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// errorKindLabel names the kind for logs.
func errorKindLabel(err error) string {
	if kind := domain.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "internal"
}
