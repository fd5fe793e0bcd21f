package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_PrecomputesNorm(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
		norm   float32
	}{
		{name: "unit x", vector: []float32{1, 0, 0}, norm: 1},
		{name: "3-4-5", vector: []float32{3, 4}, norm: 5},
		{name: "zero", vector: []float32{0, 0, 0}, norm: 0},
		{name: "negative", vector: []float32{-2, 0, 0}, norm: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.vector)
			assert.InDelta(t, tt.norm, e.Norm, 1e-5)
			assert.Equal(t, len(tt.vector), e.Dimension())
		})
	}
}

func TestNormalize(t *testing.T) {
	e := New([]float32{3, 4})
	require.True(t, e.Normalize())

	assert.InDelta(t, 1.0, e.Norm, 1e-6)
	assert.InDelta(t, 0.6, e.Vector[0], 1e-6)
	assert.InDelta(t, 0.8, e.Vector[1], 1e-6)

	// Normalizing twice is a no-op up to rounding.
	before := append([]float32(nil), e.Vector...)
	require.True(t, e.Normalize())
	for i := range before {
		assert.InDelta(t, before[i], e.Vector[i], 1e-6)
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	e := New([]float32{0, 0})
	assert.False(t, e.Normalize())
	assert.Equal(t, []float32{0, 0}, e.Vector)
}

func TestNormEqualsTrueL2(t *testing.T) {
	vec := []float32{0.1, -0.7, 2.3, 0.05}
	e := New(vec)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, math.Sqrt(sum), float64(e.Norm), 1e-5)
}

func TestTable_Basics(t *testing.T) {
	items := map[string]Embedding{
		"alpha": New([]float32{1, 0}),
		"beta":  New([]float32{0, 1}),
	}
	table := NewTable(items, 2)

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 2, table.Dimension())
	assert.True(t, table.Contains("alpha"))
	assert.False(t, table.Contains("gamma"))

	e, ok := table.Lookup("beta")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, e.Vector)

	assert.ElementsMatch(t, []string{"alpha", "beta"}, table.Words())
}

func TestTable_MemorySize(t *testing.T) {
	empty := NewTable(nil, 0)
	assert.Zero(t, empty.MemorySize())
	assert.Zero(t, empty.Len())

	table := NewTable(map[string]Embedding{
		"ab": New([]float32{1, 2, 3}),
	}, 3)

	// 3 floats + 2 word bytes + fixed per-entry overhead.
	assert.Equal(t, int64(3*4+2+64), table.MemorySize())
}

func TestTable_RangeStopsEarly(t *testing.T) {
	table := NewTable(map[string]Embedding{
		"a": New([]float32{1}),
		"b": New([]float32{2}),
		"c": New([]float32{3}),
	}, 1)

	seen := 0
	table.Range(func(string, Embedding) bool {
		seen++
		return seen < 2
	})
	assert.Equal(t, 2, seen)
}
