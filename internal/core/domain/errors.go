package domain

import (
	"errors"
)

// Error kinds. Adapters map them to transport status codes; callers test for
// them with IsKind.
var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrTemporary               = errors.New("temporary failure")
	ErrPropertyNotFound        = errors.New("property not found")
	ErrEmbeddingUnavailable    = errors.New("embedding unavailable")
	ErrKeywordIndexUnavailable = errors.New("keyword index unavailable")
	ErrCacheMiss               = errors.New("cache miss")
)

// kinds is ordered by precedence for KindOf. A wrapped embedding failure that
// is also temporary reports the more specific kind.
var kinds = []error{
	ErrInvalidInput,
	ErrPropertyNotFound,
	ErrEmbeddingUnavailable,
	ErrKeywordIndexUnavailable,
	ErrCacheMiss,
	ErrTemporary,
}

// OpError tags a cause with the operation that failed and a kind.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// WrapError returns nil for a nil err.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: operation, Kind: kind, Err: err}
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindOf reports the most specific known kind in err's chain, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
