package lexivec

import (
	"errors"

	"github.com/histtext/lexivec/cache"
	"github.com/histtext/lexivec/loader"
)

// Stable error kinds surfaced in HTTP error bodies and logs.
const (
	KindIo                = "io"
	KindFormat            = "format"
	KindDimensionMismatch = "dimension_mismatch"
	KindInvalidWord       = "invalid_word"
	KindFileNotFound      = "file_not_found"
	KindUnsupportedFormat = "unsupported_format"
	KindParse             = "parse"
	KindCache             = "cache"
)

// Kind classifies err into the service error taxonomy.
// Unrecognized errors are filesystem/OS failures and classify as io.
func Kind(err error) string {
	var (
		fileNotFound *loader.FileNotFoundError
		unsupported  *loader.UnsupportedFormatError
		format       *loader.FormatError
		dimension    *loader.DimensionMismatchError
		invalidWord  *loader.InvalidWordError
		parse        *loader.ParseError
		cacheErr     *cache.Error
	)

	switch {
	case errors.As(err, &fileNotFound):
		return KindFileNotFound
	case errors.As(err, &unsupported):
		return KindUnsupportedFormat
	case errors.As(err, &dimension):
		return KindDimensionMismatch
	case errors.As(err, &invalidWord):
		return KindInvalidWord
	case errors.As(err, &parse):
		return KindParse
	case errors.As(err, &format):
		return KindFormat
	case errors.As(err, &cacheErr), errors.Is(err, cache.ErrMemoryPressure):
		return KindCache
	default:
		return KindIo
	}
}

// Retryable reports whether the operator can expect a retry to succeed
// without changing the embedding file.
func Retryable(err error) bool {
	switch Kind(err) {
	case KindIo, KindCache:
		return true
	default:
		return false
	}
}
