package loader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Format identifies an on-disk embedding file layout.
type Format int

const (
	// FormatAuto selects the format by filename suffix, falling back to
	// sniffing the first bytes.
	FormatAuto Format = iota
	// FormatText is UTF-8 lines of "word c1 c2 ... cD".
	FormatText
	// FormatGloVe is the same layout as FormatText; GloVe releases are
	// recognized by filename only.
	FormatGloVe
	// FormatBinary is the length-prefixed little-endian layout:
	// u32 word_count, u32 dimension, then per record u32 word_len,
	// word bytes, dimension float32 components.
	FormatBinary
	// FormatWord2Vec is the classic word2vec binary layout with an ASCII
	// "<count> <dim>\n" header.
	FormatWord2Vec
	// FormatFastText is the fastText vector table; identical to word2vec
	// for decoding purposes, trailing model-config bytes are ignored.
	FormatFastText
)

func (f Format) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatText:
		return "text"
	case FormatGloVe:
		return "glove"
	case FormatBinary:
		return "binary"
	case FormatWord2Vec:
		return "word2vec"
	case FormatFastText:
		return "fasttext"
	default:
		return fmt.Sprintf("unknown(%d)", f)
	}
}

// ParseFormat converts a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "auto", "":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "glove":
		return FormatGloVe, nil
	case "binary":
		return FormatBinary, nil
	case "word2vec":
		return FormatWord2Vec, nil
	case "fasttext":
		return FormatFastText, nil
	default:
		return FormatAuto, fmt.Errorf("unknown embedding format: %q", s)
	}
}

// Compression identifies the optional stream compression of an embedding file.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// detectCompression inspects the filename suffix and returns the detected
// compression plus the path with the compression suffix stripped, so format
// detection can continue on the inner name.
func detectCompression(path string) (Compression, string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CompressionGzip, strings.TrimSuffix(path, filepath.Ext(path))
	case ".zst", ".zstd":
		return CompressionZstd, strings.TrimSuffix(path, filepath.Ext(path))
	case ".lz4":
		return CompressionLZ4, strings.TrimSuffix(path, filepath.Ext(path))
	default:
		return CompressionNone, path
	}
}

// detectBySuffix maps a filename to a format. Returns FormatAuto when the
// name is not conclusive.
func detectBySuffix(path string) Format {
	base := strings.ToLower(filepath.Base(path))

	if strings.Contains(base, "glove") {
		return FormatGloVe
	}
	if strings.Contains(base, "fasttext") || strings.HasSuffix(base, ".ftz") {
		return FormatFastText
	}

	switch filepath.Ext(base) {
	case ".txt", ".vec":
		return FormatText
	case ".emb":
		return FormatBinary
	case ".bin":
		return FormatWord2Vec
	default:
		return FormatAuto
	}
}

// maxSniffDimension bounds the plausible vector dimension during sniffing.
const maxSniffDimension = 1 << 14

// sniffFormat inspects the first bytes of an uncompressed payload.
func sniffFormat(data []byte) (Format, error) {
	if len(data) == 0 {
		return FormatAuto, fmt.Errorf("empty file")
	}

	// word2vec/fastText: ASCII "<count> <dim>\n" header.
	if nl := bytes.IndexByte(data, '\n'); nl > 0 && nl < 64 {
		header := string(data[:nl])
		var count, dim int
		if n, err := fmt.Sscanf(header, "%d %d", &count, &dim); err == nil && n == 2 {
			if count > 0 && dim > 0 && dim <= maxSniffDimension {
				// A text file whose first word is numeric would match too,
				// but then the header would carry D+1 tokens, not 2.
				if len(strings.Fields(header)) == 2 {
					return FormatWord2Vec, nil
				}
			}
		}
	}

	// Length-prefixed binary: plausible little-endian u32 pair.
	if len(data) >= 8 {
		count := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
		dim := uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16 | uint32(data[7])<<24
		// Realistic word counts and dimensions leave zero bytes in the
		// header, which never appear at the start of a text file.
		if count > 0 && dim > 0 && dim <= maxSniffDimension && bytes.IndexByte(data[:8], 0) >= 0 {
			return FormatBinary, nil
		}
	}

	// Text: the first line must be valid UTF-8 with at least two fields.
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		nl = len(data)
	}
	line := data[:nl]
	if utf8.Valid(line) && len(bytes.Fields(line)) >= 2 {
		return FormatText, nil
	}

	return FormatAuto, fmt.Errorf("first bytes match no known layout")
}
