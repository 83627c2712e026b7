package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Strob0t/LeaseForge/internal/port/blobstore"
)

type blob struct {
	data        []byte
	contentType string
}

// BlobStore is an in-process blobstore.Store.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// NewBlobStore returns an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]blob)}
}

func (s *BlobStore) Put(_ context.Context, key, contentType string, data []byte) (blobstore.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.blobs[key]; ok {
		return blobstore.Object{Key: key, Ref: "blob://" + key, ContentType: b.contentType, Size: len(b.data)}, nil
	}
	s.blobs[key] = blob{data: append([]byte(nil), data...), contentType: contentType}
	return blobstore.Object{Key: key, Ref: "blob://" + key, ContentType: contentType, Size: len(data)}, nil
}

func (s *BlobStore) Get(_ context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[key]
	if !ok {
		return nil, "", fmt.Errorf("get blob %s: %w", key, blobstore.ErrNotFound)
	}
	return append([]byte(nil), b.data...), b.contentType, nil
}
