package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"accesscontrol/internal/domain"
)

// DefaultMaxPhotoBytes caps an uploaded photo.
const DefaultMaxPhotoBytes = 5 << 20

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

type localPhotoStore struct {
	dir       string
	urlPrefix string
	maxBytes  int64
}

// NewLocalPhotoStore stores photos as files under dir and returns references of the form
// urlPrefix + "/" + filename. The directory is created if missing.
func NewLocalPhotoStore(dir, urlPrefix string, maxBytes int64) (domain.PhotoStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPhotoBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create photo dir: %w", err)
	}
	return &localPhotoStore{dir: dir, urlPrefix: urlPrefix, maxBytes: maxBytes}, nil
}

// Store validates the photo by its content, not the declared type, and writes it under a
// random name.
func (s *localPhotoStore) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: photo exceeds %d bytes", domain.ErrInvalidInput, s.maxBytes)
	}
	detected := mimetype.Detect(data).String()
	ext, ok := photoExtensions[detected]
	if !ok {
		return "", fmt.Errorf("%w: unsupported photo type %q", domain.ErrInvalidInput, detected)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close photo: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("move photo: %w", err)
	}
	return s.urlPrefix + "/" + name, nil
}

// Delete removes the file behind ref. Refs outside this store are rejected.
func (s *localPhotoStore) Delete(ctx context.Context, ref string) error {
	name, ok := strings.CutPrefix(ref, s.urlPrefix+"/")
	if !ok || name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: unknown photo ref %q", domain.ErrInvalidInput, ref)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove photo: %w", err)
	}
	return nil
}
