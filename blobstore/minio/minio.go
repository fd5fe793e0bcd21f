// Package minio fetches embedding files from a MinIO deployment into the
// local spool.
package minio

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds the MinIO endpoint settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Fetcher downloads minio://bucket/key URLs from one configured endpoint.
type Fetcher struct {
	client *minio.Client
}

// New connects to the configured endpoint.
func New(cfg Config) (*Fetcher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Fetcher{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *minio.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Scheme implements blobstore.Fetcher.
func (f *Fetcher) Scheme() string { return "minio" }

// Fetch implements blobstore.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return fmt.Errorf("malformed minio url %q", rawURL)
	}

	return f.client.FGetObject(ctx, bucket, key, dest, minio.GetObjectOptions{})
}
