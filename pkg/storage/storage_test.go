package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestLocalDiskRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := NewLocalDisk(t.TempDir(), "http://cdn.test/storage/")

	require.NoError(t, d.Put(ctx, "products/1/a.png", bytes.NewReader(pngHeader), "image/png"))

	ok, err := d.Exists(ctx, "products/1/a.png")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := d.Open(ctx, "products/1/a.png")
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, pngHeader, got)

	assert.Equal(t, "http://cdn.test/storage/products/1/a.png", d.URL("products/1/a.png"))

	require.NoError(t, d.Delete(ctx, "products/1/a.png"))
	require.NoError(t, d.Delete(ctx, "products/1/a.png"), "deleting twice is fine")

	_, err = d.Open(ctx, "products/1/a.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalDiskStaysInRoot(t *testing.T) {
	root := t.TempDir()
	d := NewLocalDisk(root, "")
	full, err := d.abs("../../etc/passwd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(full, root))
}

func TestLocalDiskHandler(t *testing.T) {
	ctx := context.Background()
	d := NewLocalDisk(t.TempDir(), "")
	require.NoError(t, d.Put(ctx, "products/2/x.png", bytes.NewReader(pngHeader), ""))

	h := d.Handler("/storage")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/storage/products/2/x.png", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/storage/products/2/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDetectImage(t *testing.T) {
	img, err := DetectImage(int64(len(pngHeader)), bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, "png", img.Ext)

	_, err = DetectImage(10, strings.NewReader("just some text"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = DetectImage(MaxImageBytes+1, bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrImageTooLarge)

	big := append(append([]byte{}, pngHeader...), make([]byte, MaxImageBytes)...)
	_, err = DetectImage(100, bytes.NewReader(big))
	assert.ErrorIs(t, err, ErrImageTooLarge, "declared size is not trusted")

	_, err = DetectImage(0, bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestProductImagePath(t *testing.T) {
	p := ProductImagePath(42, "webp")
	assert.Regexp(t, regexp.MustCompile(`^products/42/[0-9a-f-]{36}\.webp$`), p)
}

func TestDefaultFallsBackToLocal(t *testing.T) {
	SetDefault("missing")
	t.Cleanup(func() { SetDefault("local") })
	assert.Equal(t, "local", Default().Name())
}
