package queue

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopK_KeepsBest(t *testing.T) {
	q := NewTopK(3)
	for _, it := range []Item{
		{Word: "a", Score: 0.1},
		{Word: "b", Score: 0.9},
		{Word: "c", Score: 0.5},
		{Word: "d", Score: 0.7},
		{Word: "e", Score: 0.2},
	} {
		q.Push(it)
	}

	got := q.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, []Item{
		{Word: "b", Score: 0.9},
		{Word: "d", Score: 0.7},
		{Word: "c", Score: 0.5},
	}, got)
}

func TestTopK_TieBreakByWord(t *testing.T) {
	q := NewTopK(2)
	q.Push(Item{Word: "zeta", Score: 0.5})
	q.Push(Item{Word: "alpha", Score: 0.5})
	q.Push(Item{Word: "mid", Score: 0.5})

	got := q.Drain()
	require.Len(t, got, 2)
	// Equal scores keep the lexicographically smallest words.
	assert.Equal(t, "alpha", got[0].Word)
	assert.Equal(t, "mid", got[1].Word)
}

func TestTopK_FewerThanK(t *testing.T) {
	q := NewTopK(10)
	q.Push(Item{Word: "only", Score: 0.3})

	got := q.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, "only", got[0].Word)
}

func TestTopK_ZeroK(t *testing.T) {
	q := NewTopK(0)
	q.Push(Item{Word: "x", Score: 1})
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())
}

func TestTopK_MatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		n := 200
		k := 1 + rng.Intn(20)

		items := make([]Item, n)
		q := NewTopK(k)
		for i := range items {
			// Coarse scores force tie-break coverage.
			items[i] = Item{
				Word:  string(rune('a'+i%26)) + string(rune('a'+i/26)),
				Score: float32(rng.Intn(10)) / 10,
			}
			q.Push(items[i])
		}

		sort.Slice(items, func(i, j int) bool {
			if items[i].Score != items[j].Score {
				return items[i].Score > items[j].Score
			}
			return items[i].Word < items[j].Word
		})

		assert.Equal(t, items[:k], q.Drain())
	}
}

func TestSortDescending(t *testing.T) {
	items := []Item{
		{Word: "b", Score: 0.5},
		{Word: "a", Score: 0.5},
		{Word: "c", Score: 0.9},
	}
	SortDescending(items)
	assert.Equal(t, []Item{
		{Word: "c", Score: 0.9},
		{Word: "a", Score: 0.5},
		{Word: "b", Score: 0.5},
	}, items)
}
