package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ChuLiYu/slidetiles/pkg/types"
)

// HTTPStore fetches tiles from an HTTP(S) object endpoint, typically a
// presigned bucket prefix, at <base>/<TilePath>.
type HTTPStore struct {
	base   string
	client *http.Client
}

// NewHTTPStore returns a store under base. A nil client uses http.DefaultClient.
func NewHTTPStore(base string, client *http.Client) *HTTPStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{base: strings.TrimRight(base, "/"), client: client}
}

func (s *HTTPStore) url(key types.TileKey) string {
	return s.base + "/" + TilePath(key)
}

func (s *HTTPStore) FetchTile(ctx context.Context, key types.TileKey) ([]byte, error) {
	body, _, err := s.get(ctx, key, "")
	return body, err
}

func (s *HTTPStore) FetchRange(ctx context.Context, key types.TileKey, offset, length int64) ([]byte, error) {
	if err := checkRange(offset, length); err != nil {
		return nil, err
	}
	body, status, err := s.get(ctx, key, fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	if err != nil {
		return nil, err
	}
	if status == http.StatusPartialContent {
		return body, nil
	}
	// the server ignored Range and sent the whole object
	size := int64(len(body))
	if offset >= size {
		return []byte{}, nil
	}
	return body[offset:min(offset+length, size)], nil
}

func (s *HTTPStore) get(ctx context.Context, key types.TileKey, byteRange string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(key), nil)
	if err != nil {
		return nil, 0, fetchFailure(key, err)
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fetchFailure(key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, ErrNotFound
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && byteRange != "":
		return []byte{}, http.StatusPartialContent, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, resp.StatusCode, fetchFailure(key, fmt.Errorf("unexpected status %s", resp.Status))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fetchFailure(key, err)
	}
	return body, resp.StatusCode, nil
}
