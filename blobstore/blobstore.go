// Package blobstore stages remote embedding files into a local spool
// directory so the loader can parse them like any other file.
package blobstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Fetcher downloads one URL scheme into a local file.
type Fetcher interface {
	// Scheme returns the URL scheme this fetcher serves ("s3", "minio").
	Scheme() string

	// Fetch downloads rawURL to dest. dest does not exist yet.
	Fetch(ctx context.Context, rawURL string, dest string) error
}

// Registry localizes embedding locations. Plain filesystem paths pass
// through untouched; URLs are dispatched to the fetcher registered for
// their scheme and cached in the spool directory.
type Registry struct {
	spoolDir string
	fetchers map[string]Fetcher
}

// NewRegistry creates a Registry spooling into dir.
func NewRegistry(dir string, fetchers ...Fetcher) *Registry {
	m := make(map[string]Fetcher, len(fetchers))
	for _, f := range fetchers {
		m[f.Scheme()] = f
	}
	return &Registry{spoolDir: dir, fetchers: m}
}

// Localize returns a local path for location, downloading it first when it
// is a remote URL. Repeated calls for the same URL reuse the spooled copy.
func (r *Registry) Localize(ctx context.Context, location string) (string, error) {
	scheme := urlScheme(location)
	if scheme == "" || scheme == "file" {
		return strings.TrimPrefix(location, "file://"), nil
	}

	f, ok := r.fetchers[scheme]
	if !ok {
		return "", fmt.Errorf("no fetcher registered for scheme %q", scheme)
	}

	dest := filepath.Join(r.spoolDir, spoolName(location))
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	if err := os.MkdirAll(r.spoolDir, 0o750); err != nil {
		return "", fmt.Errorf("create spool dir: %w", err)
	}

	// Download to a temp name and rename so concurrent loads never see a
	// partial file.
	tmp := dest + ".partial"
	if err := f.Fetch(ctx, location, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("fetch %s: %w", location, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return dest, nil
}

func urlScheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

// spoolName derives a stable local filename that keeps the remote basename
// (format detection relies on the suffix).
func spoolName(location string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(location))

	base := path.Base(location)
	if u, err := url.Parse(location); err == nil && u.Path != "" {
		base = path.Base(u.Path)
	}
	return fmt.Sprintf("%08x-%s", h.Sum32(), base)
}
