package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

// Storage keeps uploaded blobs under basePath, keyed by slash-separated paths.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "save blob", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "save blob", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "save blob", fmt.Errorf("write file: %w", err))
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "open blob", err)
	}
	return f, nil
}

// Remove deletes the blob. A missing blob is not an error.
func (s *Storage) Remove(_ context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.WrapError(domain.ErrStorageUnavailable, "remove blob", err)
	}
	return nil
}

func (s *Storage) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimLeft(key, "/")))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "resolve blob key", fmt.Errorf("key %q escapes storage root", key))
	}
	return filepath.Join(s.basePath, cleaned), nil
}
