package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ChuLiYu/slidetiles/pkg/types"
	"github.com/boltdb/bolt"
	"github.com/klauspost/compress/zstd"
)

var tilesBucket = []byte("tiles")

// BoltStore keeps zstd-compressed tile payloads in a local bolt database,
// keyed by TileKey.String().
type BoltStore struct {
	db  *bolt.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// OpenBoltStore opens or creates the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open tile db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(tilesBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tiles bucket: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db, enc: enc, dec: dec}, nil
}

func (s *BoltStore) FetchTile(ctx context.Context, key types.TileKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var compressed []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(tilesBucket).Get([]byte(key.String()))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction
		compressed = append([]byte(nil), v...)
		return nil
	})
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fetchFailure(key, err)
	}
	payload, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fetchFailure(key, err)
	}
	return payload, nil
}

// PutTile stores payload under key, replacing any previous tile.
func (s *BoltStore) PutTile(ctx context.Context, key types.TileKey, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	compressed := s.enc.EncodeAll(payload, nil)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(tilesBucket).Put([]byte(key.String()), compressed)
	})
}

// Len returns the number of stored tiles.
func (s *BoltStore) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(tilesBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the database and the codec state.
func (s *BoltStore) Close() error {
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}
