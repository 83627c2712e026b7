// Package natsobj implements the blob store port on a NATS JetStream object
// store bucket. Signature images live here, addressed by content hash.
package natsobj

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/LeaseForge/internal/port/blobstore"
)

const (
	refScheme       = "blob://"
	metaContentType = "content-type"
)

// ObjectStore is the subset of jetstream.ObjectStore used by Store.
type ObjectStore interface {
	Put(ctx context.Context, obj jetstream.ObjectMeta, reader io.Reader) (*jetstream.ObjectInfo, error)
	GetBytes(ctx context.Context, name string, opts ...jetstream.GetObjectOpt) ([]byte, error)
	GetInfo(ctx context.Context, name string, opts ...jetstream.GetObjectInfoOpt) (*jetstream.ObjectInfo, error)
}

// Store implements blobstore.Store.
type Store struct {
	obs ObjectStore
}

// New wraps an object store bucket.
func New(obs ObjectStore) *Store {
	return &Store{obs: obs}
}

// Ref returns the client-facing reference of a stored key.
func Ref(key string) string { return refScheme + key }

// Put stores data under key. An existing object with the same key is
// returned as is, since keys are content hashes.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) (blobstore.Object, error) {
	if key == "" {
		return blobstore.Object{}, errors.New("natsobj put: empty key")
	}
	if info, err := s.obs.GetInfo(ctx, key); err == nil {
		return toObject(info), nil
	} else if !errors.Is(err, jetstream.ErrObjectNotFound) {
		return blobstore.Object{}, fmt.Errorf("natsobj info %s: %w", key, err)
	}

	info, err := s.obs.Put(ctx, jetstream.ObjectMeta{
		Name:     key,
		Metadata: map[string]string{metaContentType: contentType},
	}, bytes.NewReader(data))
	if err != nil {
		return blobstore.Object{}, fmt.Errorf("natsobj put %s: %w", key, err)
	}
	return toObject(info), nil
}

// Get returns the object bytes and content type.
func (s *Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	info, err := s.obs.GetInfo(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, "", fmt.Errorf("natsobj get %s: %w", key, blobstore.ErrNotFound)
		}
		return nil, "", fmt.Errorf("natsobj info %s: %w", key, err)
	}
	data, err := s.obs.GetBytes(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("natsobj get %s: %w", key, err)
	}
	return data, info.Metadata[metaContentType], nil
}

func toObject(info *jetstream.ObjectInfo) blobstore.Object {
	return blobstore.Object{
		Key:         info.Name,
		Ref:         Ref(info.Name),
		ContentType: info.Metadata[metaContentType],
		Size:        int(info.Size),
	}
}
