package mediasvc

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/sala/core"
)

func newTestStorage(t *testing.T) *Storage {
	return NewStorage(core.MediaConfig{
		Dir:           t.TempDir(),
		BaseURL:       "/media/",
		MaxImageWidth: 100,
		MaxUploadSize: 1 << 20,
	})
}

func pngImage(t *testing.T, w, h int) *bytes.Buffer {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf
}

func TestStorage_SaveImage(t *testing.T) {
	s := newTestStorage(t)

	url, err := s.SaveImage(context.Background(), "avatars", pngImage(t, 300, 150))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/media/avatars/"))
	assert.True(t, strings.HasSuffix(url, ".webp"))

	fp := filepath.Join(s.Dir(), "avatars", filepath.Base(url))
	f, err := os.Open(fp)
	require.NoError(t, err)
	defer f.Close()

	cfg, err := webp.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestStorage_SaveImage_keepsSmallImages(t *testing.T) {
	s := newTestStorage(t)

	url, err := s.SaveImage(context.Background(), "", pngImage(t, 40, 20))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/media/uploads/"))

	f, err := os.Open(filepath.Join(s.Dir(), "uploads", filepath.Base(url)))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := webp.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
}

func TestStorage_SaveImage_errors(t *testing.T) {
	s := newTestStorage(t)
	s.maxSize = 64

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmptyFile},
		{"text", []byte("hello world"), ErrUnsupportedType},
		{"too large", bytes.Repeat([]byte("a"), 65), ErrTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.SaveImage(context.Background(), "x", bytes.NewReader(tc.data))
			assert.Equal(t, tc.want, err)
		})
	}
}

func TestStorage_Delete(t *testing.T) {
	s := newTestStorage(t)

	url, err := s.SaveImage(context.Background(), "posts", pngImage(t, 10, 10))
	require.NoError(t, err)
	fp := filepath.Join(s.Dir(), "posts", filepath.Base(url))
	_, err = os.Stat(fp)
	require.NoError(t, err)

	require.NoError(t, s.Delete(url))
	_, err = os.Stat(fp)
	assert.True(t, os.IsNotExist(err))

	// unknown and foreign URLs are ignored
	assert.NoError(t, s.Delete(url))
	assert.NoError(t, s.Delete("https://example.com/a.png"))
}
