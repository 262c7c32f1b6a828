// Package storage persists build manifests on the local filesystem or an
// S3-compatible object store so servers can pick up the latest build.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a key has no stored object
var ErrNotFound = errors.New("object not found")

// Object represents a stored file
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// UploadOptions contains options for uploading files
type UploadOptions struct {
	ContentType  string
	CacheControl string
}

// Provider is the interface that storage providers must implement.
// Keys are slash-separated and relative to the provider's root.
type Provider interface {
	Name() string
	Health(ctx context.Context) error

	// Upload replaces the object at key
	Upload(ctx context.Context, key string, data io.Reader, size int64, opts *UploadOptions) (*Object, error)

	// Download opens the object at key; ErrNotFound if absent
	Download(ctx context.Context, key string) (io.ReadCloser, *Object, error)

	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error

	// List returns the objects whose key starts with prefix, sorted by key
	List(ctx context.Context, prefix string) ([]Object, error)
}
