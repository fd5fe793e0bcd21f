package cache

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when the descriptor store marks a collection
// as having no embeddings. Callers answer "has_embeddings=false" instead of
// failing.
var ErrNotConfigured = errors.New("collection has no embeddings configured")

// ErrMemoryPressure is returned when eviction cannot free enough memory to
// admit a freshly loaded table.
var ErrMemoryPressure = errors.New("memory pressure")

// Error wraps cache-internal bookkeeping failures with the operation that
// produced them.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
