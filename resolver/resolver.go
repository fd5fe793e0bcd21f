// Package resolver translates (backend, collection) keys into embedding
// file locations via the external descriptor store.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/histtext/lexivec/descriptor"
)

// Resolution is the outcome of a descriptor lookup.
type Resolution struct {
	// Configured is false when the collection has no embeddings.
	Configured bool

	// Path is the local path or remote URL of the embeddings file.
	// Empty when Configured is false.
	Path string
}

// Options configure a Resolver.
type Options struct {
	// MemoTTL caches successful lookups for this long. 0 disables
	// memoization.
	MemoTTL time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Resolver memoizes descriptor lookups and applies the default-path rule.
type Resolver struct {
	store       descriptor.Store
	defaultPath string
	memo        *gocache.Cache
	logger      *slog.Logger
}

// New creates a Resolver. defaultPath backs the "default" descriptor value.
func New(store descriptor.Store, defaultPath string, optFns ...func(o *Options)) *Resolver {
	opts := Options{
		MemoTTL: 5 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Resolver{
		store:       store,
		defaultPath: defaultPath,
		logger:      opts.Logger,
	}
	if opts.MemoTTL > 0 {
		r.memo = gocache.New(opts.MemoTTL, 2*opts.MemoTTL)
	}
	return r
}

// Resolve looks up the embeddings location for key. Store failures
// propagate as errors; the caller degrades them to "not configured".
func (r *Resolver) Resolve(ctx context.Context, key descriptor.Key) (Resolution, error) {
	cacheKey := key.String()
	if r.memo != nil {
		if v, ok := r.memo.Get(cacheKey); ok {
			return v.(Resolution), nil
		}
	}

	value, err := r.store.EmbeddingsPath(ctx, key)
	if err != nil {
		return Resolution{}, fmt.Errorf("path lookup: %w", err)
	}

	var res Resolution
	switch value {
	case descriptor.ValueNone, "":
		res = Resolution{}
	case descriptor.ValueDefault:
		if r.defaultPath == "" {
			r.logger.Warn("descriptor requests default path but none is configured", "key", cacheKey)
			res = Resolution{}
		} else {
			res = Resolution{Configured: true, Path: r.defaultPath}
		}
	default:
		res = Resolution{Configured: true, Path: value}
	}

	if r.memo != nil {
		r.memo.Set(cacheKey, res, gocache.DefaultExpiration)
	}
	return res, nil
}

// Invalidate drops the memoized resolution for key.
func (r *Resolver) Invalidate(key descriptor.Key) {
	if r.memo != nil {
		r.memo.Delete(key.String())
	}
}
