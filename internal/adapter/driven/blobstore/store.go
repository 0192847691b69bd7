// Package blobstore implements the ObjectStore port on gocloud.dev/blob, so the
// archive can live on local disk, in memory, or in any bucket gocloud supports.
package blobstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/memblob"  // mem:// buckets

	"github.com/ericfisherdev/clubsync/internal/domain/port/driven"
)

var _ driven.ObjectStore = (*Store)(nil)

// Store writes objects to a gocloud bucket.
type Store struct {
	bucket        *blob.Bucket
	publicBaseURL string
}

// Open opens the bucket at bucketURL (for example "file:///var/lib/clubsync/archive?create_dir=true"
// or "mem://"). publicBaseURL, when set, is prefixed to object paths by PublicURL.
func Open(ctx context.Context, bucketURL, publicBaseURL string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", bucketURL, err)
	}
	return New(bucket, publicBaseURL), nil
}

// New wraps an already opened bucket.
func New(bucket *blob.Bucket, publicBaseURL string) *Store {
	return &Store{bucket: bucket, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Upload writes data at path and returns path.
func (s *Store) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return "", fmt.Errorf("upload: empty object path")
	}

	opts := &blob.WriterOptions{ContentType: contentType}
	if err := s.bucket.WriteAll(ctx, path, data, opts); err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	return path, nil
}

// PublicURL returns publicBaseURL joined with path, or "" without a base URL.
func (s *Store) PublicURL(path string) string {
	if s.publicBaseURL == "" {
		return ""
	}
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/" + strings.Join(segments, "/")
}

// Close releases the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}
