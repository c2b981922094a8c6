// Package storage uploads flushed CSV batches to an object store
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/5amCurfew/xtkt-target/models"
)

// ObjectStore is where flushed batches are uploaded
type ObjectStore interface {
	// Upload copies the local file to objectKey and returns the object's URI
	Upload(ctx context.Context, localPath string, objectKey string) (string, error)
	// Open reads back an object by the URI Upload returned
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
	Close() error
}

// New builds the object store selected by storage_type
func New(ctx context.Context, config models.Config) (ObjectStore, error) {
	switch config.StorageType {
	case models.StorageGCS, models.StorageS3:
		if config.BucketName == "" {
			return nil, fmt.Errorf("bucket_name is required for storage_type %s", config.StorageType)
		}
	}

	switch config.StorageType {
	case models.StorageGCS:
		return NewGCSStore(ctx, config)
	case models.StorageS3:
		return NewS3Store(ctx, config)
	case models.StorageLocal:
		return NewLocalStore(config)
	default:
		return nil, fmt.Errorf("unsupported storage_type %q", config.StorageType)
	}
}

// ParseURI splits scheme://bucket/key. The key may be empty.
func ParseURI(uri string) (scheme string, bucket string, key string, err error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" || rest == "" {
		return "", "", "", fmt.Errorf("invalid object uri %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", "", fmt.Errorf("invalid object uri %q: missing bucket", uri)
	}
	return scheme, bucket, key, nil
}
