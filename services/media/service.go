// Package mediasvc stores uploaded images on the local filesystem.
package mediasvc

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/sala/core"
)

const webpQuality = 80

var (
	// errors
	ErrUnsupportedType = core.NewValidationError(nil, core.FieldError{Field: "file", Error: "only JPEG, PNG, GIF and WebP images are allowed"})
	ErrTooLarge        = core.NewValidationError(nil, core.FieldError{Field: "file", Error: "file is too large"})
	ErrEmptyFile       = core.NewValidationError(nil, core.FieldError{Field: "file", Error: "file is empty"})

	allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}
)

type Storage struct {
	dir      string
	baseURL  string
	maxWidth int
	maxSize  int64
}

func NewStorage(conf core.MediaConfig) *Storage {
	return &Storage{
		dir:      conf.Dir,
		baseURL:  strings.TrimRight(conf.BaseURL, "/"),
		maxWidth: conf.MaxImageWidth,
		maxSize:  conf.MaxUploadSize,
	}
}

// SaveImage decodes the image read from `r`, shrinks it to the max width, stores it as WebP
// under `folder` and returns its public URL.
func (s *Storage) SaveImage(ctx context.Context, folder string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return "", errors.Wrap(err, "reading upload")
	}
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if int64(len(data)) > s.maxSize {
		return "", ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return "", ErrUnsupportedType
	}

	var img image.Image
	if mtype.Is("image/webp") {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return "", ErrUnsupportedType
	}
	if s.maxWidth > 0 && img.Bounds().Dx() > s.maxWidth {
		img = imaging.Resize(img, s.maxWidth, 0, imaging.Lanczos)
	}

	if err = ctx.Err(); err != nil {
		return "", err
	}

	folder = cleanFolder(folder)
	dir := filepath.Join(s.dir, folder)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating media dir")
	}
	name := uuid.NewString() + ".webp"
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", errors.Wrap(err, "creating media file")
	}
	if err = webp.Encode(f, img, &webp.Options{Quality: webpQuality}); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", errors.Wrap(err, "encoding webp")
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrap(err, "closing media file")
	}
	return s.baseURL + "/" + folder + "/" + name, nil
}

// Delete removes the file served at `url`. URLs outside of the media base URL are ignored.
func (s *Storage) Delete(url string) error {
	prefix := s.baseURL + "/"
	if url == "" || !strings.HasPrefix(url, prefix) {
		return nil
	}
	rel := filepath.FromSlash(strings.TrimPrefix(url, prefix))
	if strings.Contains(rel, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, rel))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing media file")
	}
	return nil
}

// Dir is the directory the media files are served from.
func (s *Storage) Dir() string { return s.dir }

func cleanFolder(folder string) string {
	folder = strings.Trim(filepath.ToSlash(folder), "/")
	folder = strings.ReplaceAll(folder, "..", "")
	if folder == "" {
		return "uploads"
	}
	return folder
}
