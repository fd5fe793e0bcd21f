package loader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/histtext/lexivec/embedding"
)

// parseBinary decodes the length-prefixed little-endian layout.
func (l *Loader) parseBinary(path string, data []byte) (map[string]embedding.Embedding, int, *roaring.Bitmap, error) {
	if len(data) < 8 {
		return nil, 0, nil, &FormatError{Path: path, Reason: "truncated header"}
	}

	count := int(binary.LittleEndian.Uint32(data[0:4]))
	dim := int(binary.LittleEndian.Uint32(data[4:8]))
	if count < 0 || dim <= 0 || dim > maxSniffDimension {
		return nil, 0, nil, &FormatError{Path: path, Reason: fmt.Sprintf("implausible header: count=%d dim=%d", count, dim)}
	}
	if err := l.checkDimension(path, dim); err != nil {
		return nil, 0, nil, err
	}

	items := make(map[string]embedding.Embedding, count)
	skipped := roaring.New()
	off := 8

	for record := 0; record < count; record++ {
		if off+4 > len(data) {
			return nil, 0, nil, &ParseError{Path: path, Record: record, Detail: "truncated word length"}
		}
		wlen := int(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4

		if wlen < 0 || off+wlen+dim*4 > len(data) {
			return nil, 0, nil, &ParseError{Path: path, Record: record, Detail: "record exceeds file size"}
		}
		wordBytes := data[off : off+wlen]
		off += wlen

		vecBytes := data[off : off+dim*4]
		off += dim * 4

		if !utf8.Valid(wordBytes) {
			if l.cfg.SkipInvalidWords {
				skipped.Add(uint32(record))
				continue
			}
			return nil, 0, nil, &InvalidWordError{Path: path, Record: record, Reason: "word is not valid UTF-8"}
		}

		items[strings.ToLower(string(wordBytes))] = embedding.New(decodeVector(vecBytes, dim))
		if l.cfg.MaxWords > 0 && len(items) >= l.cfg.MaxWords {
			break
		}
	}

	return items, dim, skipped, nil
}

// parseWord2Vec decodes the word2vec binary layout. With lenient=true
// (fastText) trailing bytes past the vector table are ignored.
func (l *Loader) parseWord2Vec(path string, data []byte, lenient bool) (map[string]embedding.Embedding, int, *roaring.Bitmap, error) {
	nl := bytes.IndexByte(data, '\n')
	if nl <= 0 || nl >= 64 {
		return nil, 0, nil, &FormatError{Path: path, Reason: "missing word2vec header"}
	}

	var count, dim int
	if n, err := fmt.Sscanf(string(data[:nl]), "%d %d", &count, &dim); err != nil || n != 2 {
		return nil, 0, nil, &FormatError{Path: path, Reason: "malformed word2vec header"}
	}
	if count <= 0 || dim <= 0 || dim > maxSniffDimension {
		return nil, 0, nil, &FormatError{Path: path, Reason: fmt.Sprintf("implausible header: count=%d dim=%d", count, dim)}
	}
	if err := l.checkDimension(path, dim); err != nil {
		return nil, 0, nil, err
	}

	items := make(map[string]embedding.Embedding, count)
	skipped := roaring.New()
	off := nl + 1

	for record := 0; record < count; record++ {
		// Tolerate the newline some exporters emit between records.
		for off < len(data) && (data[off] == '\n' || data[off] == '\r') {
			off++
		}

		sp := bytes.IndexByte(data[off:], ' ')
		if sp < 0 {
			if lenient {
				break
			}
			return nil, 0, nil, &ParseError{Path: path, Record: record, Detail: "truncated word"}
		}
		wordBytes := data[off : off+sp]
		off += sp + 1

		if off+dim*4 > len(data) {
			if lenient {
				break
			}
			return nil, 0, nil, &ParseError{Path: path, Record: record, Detail: "truncated vector"}
		}
		vecBytes := data[off : off+dim*4]
		off += dim * 4

		if !utf8.Valid(wordBytes) {
			if l.cfg.SkipInvalidWords {
				skipped.Add(uint32(record))
				continue
			}
			return nil, 0, nil, &InvalidWordError{Path: path, Record: record, Reason: "word is not valid UTF-8"}
		}

		items[strings.ToLower(string(wordBytes))] = embedding.New(decodeVector(vecBytes, dim))
		if l.cfg.MaxWords > 0 && len(items) >= l.cfg.MaxWords {
			break
		}
	}

	return items, dim, skipped, nil
}

// checkDimension rejects a header dimension that conflicts with the
// configured expectation.
func (l *Loader) checkDimension(path string, dim int) error {
	if l.cfg.ExpectedDimension > 0 && dim != l.cfg.ExpectedDimension {
		return &DimensionMismatchError{Path: path, Record: 0, Expected: l.cfg.ExpectedDimension, Actual: dim}
	}
	return nil
}

// decodeVector converts dim little-endian float32 values.
func decodeVector(b []byte, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec
}
