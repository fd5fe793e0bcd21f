// Package loader decodes word-embedding files into immutable tables.
//
// Five layouts are supported (text, GloVe text, length-prefixed binary,
// word2vec binary, fastText binary), selected by an explicit hint, the
// filename suffix, or sniffing the first bytes. Files compressed with gzip,
// zstd or lz4 are decompressed transparently.
package loader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/histtext/lexivec/embedding"
	"github.com/histtext/lexivec/resource"
)

// Stats describes the outcome of one load.
type Stats struct {
	WordCount   int
	Dimension   int
	Format      Format
	Compression Compression
	FileSize    int64
	LoadTime    time.Duration
	MemoryUsage int64
	Normalized  bool

	// SkippedRecords holds the file-order indices of records that were
	// skipped as invalid. Kept as a bitmap so diagnostics on large files
	// stay cheap.
	SkippedRecords *roaring.Bitmap
}

// SkippedCount returns the number of skipped records.
func (s *Stats) SkippedCount() uint64 {
	if s.SkippedRecords == nil {
		return 0
	}
	return s.SkippedRecords.GetCardinality()
}

// Options configure a Loader beyond the parse Config.
type Options struct {
	// Controller, if set, throttles file IO and is consulted for the
	// read budget. The loader never reserves table memory itself; the
	// cache manager owns admission.
	Controller *resource.Controller

	// Logger receives per-load debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// Loader decodes embedding files according to a fixed Config.
// A Loader is safe for concurrent use.
type Loader struct {
	cfg    Config
	rc     *resource.Controller
	logger *slog.Logger
}

// New creates a Loader.
func New(cfg Config, optFns ...func(o *Options)) *Loader {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Loader{
		cfg:    cfg,
		rc:     opts.Controller,
		logger: opts.Logger,
	}
}

// Load decodes the file at path, detecting the format automatically.
func (l *Loader) Load(ctx context.Context, path string) (*embedding.Table, *Stats, error) {
	return l.LoadWithFormat(ctx, path, FormatAuto)
}

// LoadWithFormat decodes the file at path using hint, falling back to
// suffix detection and byte sniffing when hint is FormatAuto.
func (l *Loader) LoadWithFormat(ctx context.Context, path string, hint Format) (*embedding.Table, *Stats, error) {
	start := time.Now()

	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, &FileNotFoundError{Path: path}
		}
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	comp, inner := detectCompression(path)
	format := hint
	if format == FormatAuto {
		format = detectBySuffix(inner)
	}

	data, cleanup, err := l.readPayload(ctx, path, comp)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return nil, nil, err
	}

	if format == FormatAuto {
		f, serr := sniffFormat(data)
		if serr != nil {
			return nil, nil, &UnsupportedFormatError{Path: path, Detail: serr.Error()}
		}
		format = f
	}

	var (
		items   map[string]embedding.Embedding
		dim     int
		skipped *roaring.Bitmap
	)
	switch format {
	case FormatText, FormatGloVe:
		items, dim, skipped, err = l.parseText(path, data)
	case FormatBinary:
		items, dim, skipped, err = l.parseBinary(path, data)
	case FormatWord2Vec:
		items, dim, skipped, err = l.parseWord2Vec(path, data, false)
	case FormatFastText:
		items, dim, skipped, err = l.parseWord2Vec(path, data, true)
	default:
		err = &UnsupportedFormatError{Path: path, Detail: "no format hint matched"}
	}
	if err != nil {
		return nil, nil, err
	}

	if l.cfg.NormalizeOnLoad {
		for w, e := range items {
			e.Normalize()
			items[w] = e
		}
	}

	table := embedding.NewTable(items, dim)
	stats := &Stats{
		WordCount:      table.Len(),
		Dimension:      dim,
		Format:         format,
		Compression:    comp,
		FileSize:       fi.Size(),
		LoadTime:       time.Since(start),
		MemoryUsage:    table.MemorySize(),
		Normalized:     l.cfg.NormalizeOnLoad,
		SkippedRecords: skipped,
	}

	l.logger.Debug("embedding file loaded",
		"path", path,
		"format", format.String(),
		"words", stats.WordCount,
		"dimension", dim,
		"skipped", stats.SkippedCount(),
		"duration", stats.LoadTime,
	)

	return table, stats, nil
}

// readPayload produces the uncompressed file contents. The returned cleanup
// function (possibly nil) must be called once parsing is finished.
func (l *Loader) readPayload(ctx context.Context, path string, comp Compression) ([]byte, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, &FileNotFoundError{Path: path}
		}
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}

	if comp == CompressionNone {
		fi, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("stat %s: %w", path, err)
		}

		if l.cfg.UseMemoryMapping {
			data, unmap, merr := mapFile(f, fi.Size())
			if merr == nil {
				_ = f.Close()
				if err := l.rc.AcquireIO(ctx, len(data)); err != nil {
					unmap()
					return nil, nil, err
				}
				return data, unmap, nil
			}
			// Fall through to a plain read when mapping is unavailable.
		}

		defer f.Close()
		data, err := io.ReadAll(resource.NewRateLimitedReader(ctx, bufio.NewReader(f), l.rc))
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil, nil
	}

	defer f.Close()
	throttled := resource.NewRateLimitedReader(ctx, bufio.NewReader(f), l.rc)

	var r io.Reader
	var closeDec func()
	switch comp {
	case CompressionGzip:
		gz, err := gzip.NewReader(throttled)
		if err != nil {
			return nil, nil, &FormatError{Path: path, Reason: "gzip: " + err.Error()}
		}
		r = gz
		closeDec = func() { _ = gz.Close() }
	case CompressionZstd:
		dec, err := zstd.NewReader(throttled)
		if err != nil {
			return nil, nil, &FormatError{Path: path, Reason: "zstd: " + err.Error()}
		}
		r = dec
		closeDec = dec.Close
	case CompressionLZ4:
		r = lz4.NewReader(throttled)
	default:
		return nil, nil, &UnsupportedFormatError{Path: path, Detail: "unknown compression"}
	}
	if closeDec != nil {
		defer closeDec()
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, &FormatError{Path: path, Reason: "decompress: " + err.Error()}
	}
	return data, nil, nil
}
