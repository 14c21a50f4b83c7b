// Package storage stores product images and other uploads on a named disk.
//
// The "local" driver writes below STORAGE_LOCAL_ROOT and is served under
// /storage. The "s3" driver talks to any S3-compatible bucket (AWS S3,
// MinIO, R2).
//
//	storage.Connect(ctx)
//	img, err := storage.DetectImage(header.Size, file)
//	path := storage.ProductImagePath(productID, img.Ext)
//	err = storage.Default().Put(ctx, path, img.Reader, img.ContentType)
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a path does not exist on a disk.
var ErrNotFound = errors.New("storage: file not found")

// Disk is a storage backend.
type Disk interface {
	// Put writes r to path, replacing any existing file.
	Put(ctx context.Context, path string, r io.Reader, contentType string) error

	// Open returns a reader for path. The caller closes it.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes path. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// URL is the public address of path.
	URL(path string) string

	Name() string
}
