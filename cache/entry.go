package cache

import (
	"sync/atomic"
	"time"

	"github.com/histtext/lexivec/embedding"
)

// entry is one cached table. The table pointer is shared with every
// in-flight query; Go's garbage collector keeps it alive until the last
// holder drops it, so eviction only removes the map reference.
type entry struct {
	table      *embedding.Table
	memorySize int64

	// lastAccessed is unix nanoseconds, updated atomically on every hit so
	// the hot path never takes a lock.
	lastAccessed atomic.Int64
}

func newEntry(table *embedding.Table, memorySize int64) *entry {
	e := &entry{
		table:      table,
		memorySize: memorySize,
	}
	e.touch()
	return e
}

func (e *entry) touch() {
	e.lastAccessed.Store(time.Now().UnixNano())
}

func (e *entry) accessedAt() time.Time {
	return time.Unix(0, e.lastAccessed.Load())
}
