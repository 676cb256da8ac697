// Package storage keeps uploaded recipe images under the media root.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

const recipeImageDir = "uploads/recipe"

// ErrNotImage is returned when an upload does not decode as a supported image.
var ErrNotImage = errors.New("upload a valid image, the file you uploaded was either not an image or a corrupted image")

// ImageStore saves, opens and removes images by their path relative to the media root.
type ImageStore interface {
	SaveRecipeImage(filename string, r io.Reader) (string, error)
	Open(relPath string) (afero.File, error)
	Remove(relPath string) error
	URL(relPath string) string
}

type imageStore struct {
	fs        afero.Fs
	urlPrefix string
	maxBytes  int64
}

// NewImageStore roots fs at the media directory. Use afero.NewOsFs in
// production and afero.NewMemMapFs in tests.
func NewImageStore(fs afero.Fs, root, urlPrefix string, maxBytes int64) ImageStore {
	return &imageStore{
		fs:        afero.NewBasePathFs(fs, root),
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		maxBytes:  maxBytes,
	}
}

// RecipeImagePath returns uploads/recipe/<uuid>.<ext> for an upload. The
// extension keeps the case the client sent.
func RecipeImagePath(filename, format string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		ext = format
	}
	return fmt.Sprintf("%s/%s.%s", recipeImageDir, uuid.NewString(), ext)
}

// SaveRecipeImage validates the payload and writes it under a fresh name.
// Nothing is written when the payload is not an image.
func (s *imageStore) SaveRecipeImage(filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("upload exceeds %d bytes: %w", s.maxBytes, ErrNotImage)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", ErrNotImage
	}

	rel := RecipeImagePath(filename, format)
	if err := s.fs.MkdirAll(recipeImageDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", recipeImageDir, err)
	}
	if err := afero.WriteFile(s.fs, rel, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return rel, nil
}

func (s *imageStore) Open(relPath string) (afero.File, error) {
	return s.fs.Open(relPath)
}

// Remove deletes a stored image. A missing file is not an error.
func (s *imageStore) Remove(relPath string) error {
	if relPath == "" {
		return nil
	}
	if err := s.fs.Remove(relPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", relPath, err)
	}
	return nil
}

func (s *imageStore) URL(relPath string) string {
	if relPath == "" {
		return ""
	}
	return s.urlPrefix + "/" + relPath
}
