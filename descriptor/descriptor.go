// Package descriptor defines the external store of collection descriptors
// consumed by the path resolver.
package descriptor

import (
	"context"
	"fmt"
)

// Descriptor values with reserved meaning.
const (
	// ValueNone marks a collection without embeddings.
	ValueNone = "none"
	// ValueDefault resolves to the process-wide configured default path.
	ValueDefault = "default"
)

// Key identifies one collection on one backend.
type Key struct {
	BackendID  int32
	Collection string
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%s", k.BackendID, k.Collection)
}

// Store looks up the embeddings descriptor for a collection.
//
// The returned value is ValueNone, ValueDefault, a filesystem path, or an
// s3://...  / minio://... URL. A missing descriptor is reported as
// ValueNone, not as an error; errors indicate the store itself failed.
type Store interface {
	EmbeddingsPath(ctx context.Context, key Key) (string, error)
}

// Static is an in-memory Store, used in tests and single-node setups.
type Static map[Key]string

// EmbeddingsPath implements Store.
func (s Static) EmbeddingsPath(_ context.Context, key Key) (string, error) {
	v, ok := s[key]
	if !ok {
		return ValueNone, nil
	}
	return v, nil
}
