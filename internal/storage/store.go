// Package storage provides the tile storage collaborators: where overlay tile
// payloads are fetched from. A missing tile is reported as ErrNotFound, which
// callers treat as an absent tile rather than a failure.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ChuLiYu/slidetiles/pkg/types"
)

var (
	// ErrNotFound means the tile does not exist in the store.
	ErrNotFound = errors.New("tile not found")
	// ErrInvalidRange rejects a negative offset or a non-positive length.
	ErrInvalidRange = fmt.Errorf("%w: invalid byte range", types.ErrInvalidInput)
)

// Store fetches whole tile payloads.
type Store interface {
	FetchTile(ctx context.Context, key types.TileKey) ([]byte, error)
}

// RangeFetcher is implemented by stores that can read part of a tile object.
// A range running past the end of the object is truncated; one starting past
// the end yields no bytes.
type RangeFetcher interface {
	FetchRange(ctx context.Context, key types.TileKey, offset, length int64) ([]byte, error)
}

// Writer is implemented by stores that accept new tiles.
type Writer interface {
	PutTile(ctx context.Context, key types.TileKey, payload []byte) error
}

// TilePath is the relative object path of a tile: "<level>/<x>_<y>.arrow".
func TilePath(key types.TileKey) string {
	return fmt.Sprintf("%d/%d_%d.arrow", key.Level, key.X, key.Y)
}

func fetchFailure(key types.TileKey, err error) error {
	return fmt.Errorf("%w: tile %s: %v", types.ErrFetchFailure, key, err)
}

func checkRange(offset, length int64) error {
	if offset < 0 || length <= 0 {
		return fmt.Errorf("%w: offset %d length %d", ErrInvalidRange, offset, length)
	}
	return nil
}
