// Package embedding provides the word-vector value types shared by the
// loader, cache and similarity packages: a dense float32 vector with a
// precomputed L2 norm, and an immutable word -> vector table.
package embedding

import (
	"github.com/histtext/lexivec/internal/vecmath"
)

// Metadata carries optional per-word annotations from enriched vector files.
type Metadata struct {
	Frequency    uint64
	POSTag       string
	Source       string
	QualityScore float32
}

// Embedding is a dense vector plus its precomputed L2 norm.
//
// The norm is computed once at construction so cosine similarity never has
// to recompute it on the hot path.
type Embedding struct {
	Vector []float32
	Norm   float32
	Meta   *Metadata
}

// New creates an Embedding and precomputes its L2 norm.
func New(vector []float32) Embedding {
	return Embedding{
		Vector: vector,
		Norm:   vecmath.Norm(vector),
	}
}

// Dimension returns the number of vector components.
func (e Embedding) Dimension() int {
	return len(e.Vector)
}

// Normalize scales the vector to unit length in place and sets Norm to 1.
// A zero vector is left untouched and false is returned.
func (e *Embedding) Normalize() bool {
	if !vecmath.NormalizeL2InPlace(e.Vector) {
		return false
	}
	e.Norm = 1.0
	return true
}
