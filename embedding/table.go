package embedding

// perEntryOverhead approximates the fixed bookkeeping cost of one table
// entry: map bucket slot, string header, slice header and norm.
const perEntryOverhead = 64

// Table is a finite mapping from lowercased word to Embedding.
//
// A Table is immutable after construction and safe for concurrent readers.
// All embeddings in one table share the same dimension.
type Table struct {
	items      map[string]Embedding
	dimension  int
	memorySize int64
}

// NewTable builds an immutable Table from the given entries.
//
// Ownership of the map transfers to the table; the caller must not mutate
// it afterwards. dimension is the shared vector dimension (0 for an empty
// table).
func NewTable(items map[string]Embedding, dimension int) *Table {
	if items == nil {
		items = make(map[string]Embedding)
	}

	var wordBytes int64
	for w := range items {
		wordBytes += int64(len(w))
	}

	vectorBytes := int64(len(items)) * int64(dimension) * 4

	return &Table{
		items:      items,
		dimension:  dimension,
		memorySize: vectorBytes + wordBytes + int64(len(items))*perEntryOverhead,
	}
}

// Lookup returns the embedding for word (already lowercased by the caller).
func (t *Table) Lookup(word string) (Embedding, bool) {
	e, ok := t.items[word]
	return e, ok
}

// Contains reports whether word is present.
func (t *Table) Contains(word string) bool {
	_, ok := t.items[word]
	return ok
}

// Len returns the number of words in the table.
func (t *Table) Len() int {
	return len(t.items)
}

// Dimension returns the shared vector dimension.
func (t *Table) Dimension() int {
	return t.dimension
}

// MemorySize returns the estimated resident size of the table in bytes.
func (t *Table) MemorySize() int64 {
	return t.memorySize
}

// Range calls fn for every (word, embedding) pair until fn returns false.
// Iteration order is unspecified.
func (t *Table) Range(fn func(word string, e Embedding) bool) {
	for w, e := range t.items {
		if !fn(w, e) {
			return
		}
	}
}

// Words returns all words in the table in unspecified order.
func (t *Table) Words() []string {
	words := make([]string, 0, len(t.items))
	for w := range t.items {
		words = append(words, w)
	}
	return words
}
