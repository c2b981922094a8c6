package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/5amCurfew/xtkt-target/models"
)

// LazyStore builds the configured store on its first upload or read, so a run that never flushes needs no bucket or credentials
type LazyStore struct {
	config models.Config
	build  func(ctx context.Context, config models.Config) (ObjectStore, error)

	mu    sync.Mutex
	store ObjectStore
}

func NewLazy(config models.Config) *LazyStore {
	return &LazyStore{config: config, build: New}
}

func (s *LazyStore) get(ctx context.Context) (ObjectStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		store, err := s.build(ctx, s.config)
		if err != nil {
			return nil, fmt.Errorf("error creating %s object store: %w", s.config.StorageType, err)
		}
		s.store = store
	}
	return s.store, nil
}

func (s *LazyStore) Upload(ctx context.Context, localPath string, objectKey string) (string, error) {
	store, err := s.get(ctx)
	if err != nil {
		return "", err
	}
	return store.Upload(ctx, localPath, objectKey)
}

func (s *LazyStore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	store, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, uri)
}

func (s *LazyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
