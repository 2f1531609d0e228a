package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ChuLiYu/slidetiles/pkg/types"
)

// FileStore reads tiles laid out under a root directory by TilePath.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

func (s *FileStore) path(key types.TileKey) string {
	return filepath.Join(s.root, filepath.FromSlash(TilePath(key)))
}

func (s *FileStore) FetchTile(ctx context.Context, key types.TileKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fetchFailure(key, err)
	}
	return data, nil
}

func (s *FileStore) FetchRange(ctx context.Context, key types.TileKey, offset, length int64) ([]byte, error) {
	if err := checkRange(offset, length); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fetchFailure(key, err)
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fetchFailure(key, err)
	}
	return buf[:n], nil
}

// PutTile writes payload, creating the level directory as needed.
func (s *FileStore) PutTile(ctx context.Context, key types.TileKey, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, payload, 0o644)
}
