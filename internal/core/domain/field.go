package domain

import (
	"bytes"
	"encoding/json"
)

// Field holds a record value that may be missing from the source data.
// Unknown fields serialize as JSON null.
type Field[T any] struct {
	Value T
	Known bool
}

func Known[T any](v T) Field[T] {
	return Field[T]{Value: v, Known: true}
}

func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Known
}

// Or returns the value when known and fallback otherwise.
func (f Field[T]) Or(fallback T) T {
	if !f.Known {
		return fallback
	}
	return f.Value
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Known {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Field[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.Value = v
	f.Known = true
	return nil
}
