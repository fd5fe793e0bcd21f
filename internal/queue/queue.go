// Package queue provides a bounded min-heap for top-k neighbor selection.
package queue

import "sort"

// Item is a scored word candidate.
type Item struct {
	Word  string
	Score float32
}

// TopK keeps the k best items seen so far.
//
// Ordering is by score descending with ties broken by word ascending, so the
// worst item (lowest score, lexicographically greatest word among equals)
// sits at the heap root and is replaced first.
//
// Value-based storage, no pointer indirection.
type TopK struct {
	k     int
	items []Item
}

// NewTopK creates a bounded heap that retains the k best items.
func NewTopK(k int) *TopK {
	return &TopK{
		k:     k,
		items: make([]Item, 0, k),
	}
}

// worse reports whether items[i] ranks below items[j].
func (q *TopK) worse(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Word > b.Word
}

// Push offers an item; it is kept only if it ranks among the k best.
func (q *TopK) Push(item Item) {
	if q.k <= 0 {
		return
	}

	if len(q.items) < q.k {
		q.items = append(q.items, item)
		q.siftUp(len(q.items) - 1)
		return
	}

	// Full: replace the root only if the candidate ranks above it.
	root := q.items[0]
	if item.Score < root.Score {
		return
	}
	if item.Score == root.Score && item.Word > root.Word {
		return
	}
	q.items[0] = item
	q.siftDown(0)
}

// Len returns the number of retained items.
func (q *TopK) Len() int {
	return len(q.items)
}

// Drain returns the retained items sorted by score descending, word
// ascending, and empties the heap.
func (q *TopK) Drain() []Item {
	out := q.items
	q.items = nil

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Word < out[j].Word
	})
	return out
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.worse(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		worst := l
		r := l + 1
		if r < n && q.worse(r, l) {
			worst = r
		}
		if !q.worse(worst, i) {
			return
		}
		q.items[i], q.items[worst] = q.items[worst], q.items[i]
		i = worst
	}
}

// SortDescending orders items by score descending, word ascending.
// Used by the parallel search path to produce deterministic output.
func SortDescending(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Word < items[j].Word
	})
}
