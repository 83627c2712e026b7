// Package blobstore defines the port for storing uploaded binary objects
// such as signature images.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("blobstore: object not found")

// Object describes a stored blob.
type Object struct {
	Key         string `json:"key"`
	Ref         string `json:"ref"` // opaque reference handed back to clients
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Store is the port interface for blob storage.
type Store interface {
	// Put stores data under key. Putting the same key twice is not an error.
	Put(ctx context.Context, key, contentType string, data []byte) (Object, error)

	// Get returns the object data and its content type.
	Get(ctx context.Context, key string) ([]byte, string, error)
}
