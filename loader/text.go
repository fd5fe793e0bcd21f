package loader

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/histtext/lexivec/embedding"
)

// parallelMinBytes is the payload size below which chunked parsing is not
// worth the merge overhead.
const parallelMinBytes = 64 << 10

type chunkResult struct {
	items   map[string]embedding.Embedding
	lines   int
	skipped []uint32 // chunk-local line indices
}

// parseText decodes the text and GloVe layouts.
//
// Strict loads (SkipInvalidWords=false) and bounded loads (MaxWords>0) parse
// sequentially so record indices in errors and the insert cap follow file
// order exactly. Everything else may be split across ParallelWorkers chunks
// at newline boundaries; chunk maps are merged in file-offset order so the
// last occurrence of a duplicate word wins, matching sequential semantics.
func (l *Loader) parseText(path string, data []byte) (map[string]embedding.Embedding, int, *roaring.Bitmap, error) {
	dim := l.cfg.ExpectedDimension
	if dim == 0 {
		d, err := firstRecordDimension(data)
		if err != nil {
			return nil, 0, nil, &FormatError{Path: path, Reason: err.Error()}
		}
		dim = d
	}

	parallel := l.cfg.ParallelWorkers > 1 &&
		l.cfg.SkipInvalidWords &&
		l.cfg.MaxWords == 0 &&
		len(data) >= parallelMinBytes

	if !parallel {
		return l.parseTextSequential(path, data, dim)
	}
	return l.parseTextParallel(path, data, dim)
}

// firstRecordDimension derives the table dimension from the first
// non-empty line.
func firstRecordDimension(data []byte) (int, error) {
	for len(data) > 0 {
		line := data
		if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
			line = data[:nl]
			data = data[nl+1:]
		} else {
			data = nil
		}
		fields := bytes.Fields(line)
		if len(fields) < 2 {
			continue
		}
		return len(fields) - 1, nil
	}
	return 0, errNoRecords
}

var errNoRecords = errors.New("no parsable records")

func (l *Loader) parseTextSequential(path string, data []byte, dim int) (map[string]embedding.Embedding, int, *roaring.Bitmap, error) {
	items := make(map[string]embedding.Embedding)
	skipped := roaring.New()

	record := 0
	for len(data) > 0 {
		line := data
		if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
			line = data[:nl]
			data = data[nl+1:]
		} else {
			data = nil
		}

		word, vec, perr := l.parseRecord(path, record, line, dim)
		if perr != nil {
			if skippable(perr, l.cfg) {
				skipped.Add(uint32(record))
				record++
				continue
			}
			return nil, 0, nil, perr
		}
		record++
		if word == "" {
			continue // blank line
		}

		items[word] = embedding.New(vec)
		if l.cfg.MaxWords > 0 && len(items) >= l.cfg.MaxWords {
			break
		}
	}

	return items, dim, skipped, nil
}

func (l *Loader) parseTextParallel(path string, data []byte, dim int) (map[string]embedding.Embedding, int, *roaring.Bitmap, error) {
	workers := l.cfg.ParallelWorkers
	chunks := splitAtNewlines(data, workers)
	results := make([]chunkResult, len(chunks))

	var g errgroup.Group
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			results[i] = l.parseChunk(path, chunk, dim)
			return nil
		})
	}
	// Workers never fail in skip mode; the group only joins them.
	_ = g.Wait()

	items := make(map[string]embedding.Embedding)
	skipped := roaring.New()
	base := 0
	for _, res := range results {
		for w, e := range res.items {
			items[w] = e
		}
		for _, idx := range res.skipped {
			skipped.Add(uint32(base) + idx)
		}
		base += res.lines
	}

	return items, dim, skipped, nil
}

// parseChunk decodes one newline-aligned byte range in skip mode.
func (l *Loader) parseChunk(path string, data []byte, dim int) chunkResult {
	res := chunkResult{items: make(map[string]embedding.Embedding)}

	for len(data) > 0 {
		line := data
		if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
			line = data[:nl]
			data = data[nl+1:]
		} else {
			data = nil
		}

		word, vec, perr := l.parseRecord(path, res.lines, line, dim)
		if perr != nil {
			res.skipped = append(res.skipped, uint32(res.lines))
			res.lines++
			continue
		}
		res.lines++
		if word == "" {
			continue
		}
		res.items[word] = embedding.New(vec)
	}

	return res
}

// parseRecord decodes one text line. Returns an empty word for blank lines.
func (l *Loader) parseRecord(path string, record int, line []byte, dim int) (string, []float32, error) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return "", nil, nil
	}

	if len(fields) != dim+1 {
		return "", nil, &DimensionMismatchError{Path: path, Record: record, Expected: dim, Actual: len(fields) - 1}
	}

	if !utf8.Valid(fields[0]) {
		return "", nil, &InvalidWordError{Path: path, Record: record, Reason: "word is not valid UTF-8"}
	}

	vec := make([]float32, dim)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(string(f), 32)
		if err != nil {
			return "", nil, &ParseError{Path: path, Record: record, Detail: "component " + strconv.Itoa(i) + ": " + err.Error(), cause: err}
		}
		vec[i] = float32(v)
	}

	return strings.ToLower(string(fields[0])), vec, nil
}

// skippable reports whether a per-record error is tolerated by the config.
func skippable(err error, cfg Config) bool {
	switch err.(type) {
	case *DimensionMismatchError:
		return cfg.SkipInvalidWords || !cfg.ValidateDimensions
	case *InvalidWordError, *ParseError:
		return cfg.SkipInvalidWords
	default:
		return false
	}
}

// splitAtNewlines cuts data into at most n chunks aligned to line starts.
func splitAtNewlines(data []byte, n int) [][]byte {
	if n <= 1 || len(data) == 0 {
		return [][]byte{data}
	}

	chunks := make([][]byte, 0, n)
	target := len(data) / n
	start := 0
	for i := 1; i < n && start < len(data); i++ {
		end := i * target
		if end <= start {
			continue
		}
		if end >= len(data) {
			break
		}
		nl := bytes.IndexByte(data[end:], '\n')
		if nl < 0 {
			break
		}
		end += nl + 1
		chunks = append(chunks, data[start:end])
		start = end
	}
	if start < len(data) {
		chunks = append(chunks, data[start:])
	}
	return chunks
}
