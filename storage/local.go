package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/5amCurfew/xtkt-target/models"
	"github.com/5amCurfew/xtkt-target/util"
)

const fileScheme = "file"

// LocalStore copies batches into a directory tree, {local_root}/{bucket_name}/{key}
type LocalStore struct {
	root string
}

func NewLocalStore(config models.Config) (*LocalStore, error) {
	root := util.ExpandPath(config.LocalRoot)
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(filepath.Join(root, config.BucketName))
	if err != nil {
		return nil, fmt.Errorf("error resolving local_root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("error creating %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Upload(_ context.Context, localPath string, objectKey string) (string, error) {
	dest := filepath.Join(s.root, filepath.FromSlash(objectKey))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("error creating directory for %s: %w", dest, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("error opening %s: %w", localPath, err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("error creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("error copying to %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("error closing %s: %w", dest, err)
	}

	return (&url.URL{Scheme: fileScheme, Path: filepath.ToSlash(dest)}).String(), nil
}

func (s *LocalStore) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	path, err := LocalPath(uri)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", uri, err)
	}
	return file, nil
}

func (s *LocalStore) Close() error {
	return nil
}

// LocalPath returns the filesystem path of a file:// uri
func LocalPath(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid object uri %q: %w", uri, err)
	}
	if parsed.Scheme != fileScheme || parsed.Path == "" {
		return "", fmt.Errorf("not a local object uri %q", uri)
	}
	return filepath.FromSlash(parsed.Path), nil
}
