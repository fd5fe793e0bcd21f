package loader

import "runtime"

// Config controls how an embedding file is decoded into a table.
type Config struct {
	// MaxWords caps the number of inserted words. 0 means unlimited.
	// Bounded loads always parse sequentially so the cap respects file order.
	MaxWords int

	// NormalizeOnLoad L2-normalizes every vector after parsing.
	NormalizeOnLoad bool

	// ValidateDimensions enforces a uniform vector dimension per record.
	// When false, records with a deviating component count are skipped and
	// counted instead of failing the load.
	ValidateDimensions bool

	// ExpectedDimension fixes the vector dimension up front.
	// 0 derives it from the first valid record.
	ExpectedDimension int

	// SkipInvalidWords skips and counts malformed records instead of
	// aborting the load.
	SkipInvalidWords bool

	// UseMemoryMapping maps uncompressed files instead of reading them into
	// a buffer. Ignored for compressed files.
	UseMemoryMapping bool

	// ParallelWorkers is the number of goroutines used for text parsing.
	// Values below 2 parse sequentially.
	ParallelWorkers int
}

// DefaultConfig returns the configuration used by the cache manager unless
// overridden.
func DefaultConfig() Config {
	return Config{
		ValidateDimensions: true,
		SkipInvalidWords:   true,
		ParallelWorkers:    runtime.GOMAXPROCS(0),
	}
}
