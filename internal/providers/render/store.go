package render

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/campuskit/billing/internal/config"
)

// Store persists rendered artifacts and returns the reference that gets
// written on the bill row.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader) (string, error)
}

// FileStore writes artifacts under a base directory. References are paths
// relative to that directory.
type FileStore struct {
	dir string
}

func NewFileStore(cfg config.Config) *FileStore {
	return &FileStore{dir: cfg.ArtifactDir}
}

func (s *FileStore) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return name, nil
}
