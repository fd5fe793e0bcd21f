// Package s3 fetches embedding files from Amazon S3 (or compatible
// endpoints) into the local spool.
package s3

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Fetcher downloads s3://bucket/key URLs.
type Fetcher struct {
	downloader *manager.Downloader
}

// New creates a Fetcher using the default AWS credential chain.
func New(ctx context.Context) (*Fetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewFromClient(s3.NewFromConfig(cfg)), nil
}

// NewFromClient wraps an existing S3 client.
func NewFromClient(client manager.DownloadAPIClient) *Fetcher {
	return &Fetcher{downloader: manager.NewDownloader(client)}
}

// Scheme implements blobstore.Fetcher.
func (f *Fetcher) Scheme() string { return "s3" }

// Fetch implements blobstore.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return fmt.Errorf("malformed s3 url %q", rawURL)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = f.downloader.Download(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}
