package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// MaxImageBytes caps an uploaded product image.
const MaxImageBytes = 5 << 20

var (
	ErrImageTooLarge   = errors.New("storage: image exceeds 5 MB")
	ErrUnsupportedType = errors.New("storage: only jpeg, png and webp images are accepted")
	ErrEmptyFile       = errors.New("storage: file is empty")
)

var imageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Image is a validated upload, ready to Put.
type Image struct {
	ContentType string
	Ext         string
	Size        int64
	Reader      io.Reader
}

// DetectImage sniffs the first bytes of r. The declared size is checked,
// and the body is read at most once past the limit to catch lying clients.
func DetectImage(size int64, r io.Reader) (*Image, error) {
	if size > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("storage: read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}

	ct := http.DetectContentType(data)
	ext, ok := imageTypes[ct]
	if !ok {
		return nil, ErrUnsupportedType
	}
	return &Image{ContentType: ct, Ext: ext, Size: int64(len(data)), Reader: bytes.NewReader(data)}, nil
}

// ProductImagePath is products/<id>/<uuid>.<ext>.
func ProductImagePath(productID uint, ext string) string {
	return fmt.Sprintf("products/%d/%s.%s", productID, uuid.NewString(), ext)
}
