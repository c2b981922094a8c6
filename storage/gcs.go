package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	gcs "cloud.google.com/go/storage"
	"github.com/5amCurfew/xtkt-target/models"
	log "github.com/sirupsen/logrus"
)

const gcsScheme = "gs"

// GCSStore uploads to a Google Cloud Storage bucket using application default credentials
type GCSStore struct {
	client *gcs.Client
	bucket string
}

func NewGCSStore(ctx context.Context, config models.Config) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: config.BucketName}, nil
}

func (s *GCSStore) Upload(ctx context.Context, localPath string, objectKey string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("error opening %s: %w", localPath, err)
	}
	defer file.Close()

	writer := s.client.Bucket(s.bucket).Object(objectKey).NewWriter(ctx)
	writer.ContentType = "text/csv"

	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return "", fmt.Errorf("error writing gs://%s/%s: %w", s.bucket, objectKey, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("error finalizing gs://%s/%s: %w", s.bucket, objectKey, err)
	}

	uri := fmt.Sprintf("%s://%s/%s", gcsScheme, s.bucket, objectKey)
	log.WithFields(log.Fields{"uri": uri}).Debug("gcs upload complete")
	return uri, nil
}

func (s *GCSStore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	scheme, bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if scheme != gcsScheme {
		return nil, fmt.Errorf("gcs store cannot open %q", uri)
	}

	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", uri, err)
	}
	return reader, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
