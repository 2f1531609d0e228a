// Package decoder decodes compressed image blocks on the worker pool and
// caches the results by the content of the compressed input.
package decoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ChuLiYu/slidetiles/internal/worker"
	"github.com/ChuLiYu/slidetiles/pkg/types"
	"golang.org/x/sync/singleflight"
)

// Decoder decodes blocks of one codec and fixed block geometry.
type Decoder struct {
	codec         types.CodecID
	maxOutputSize int

	pool  *worker.Pool // nil: shared pool
	cache *BlockCache  // nil: shared cache
	group singleflight.Group
	log   *slog.Logger
}

// Option customises a Decoder.
type Option func(*Decoder)

// WithPool runs jobs on p instead of the shared pool.
func WithPool(p *worker.Pool) Option {
	return func(d *Decoder) { d.pool = p }
}

// WithCache caches results in c instead of the shared cache.
func WithCache(c *BlockCache) Option {
	return func(d *Decoder) { d.cache = c }
}

// New returns a decoder for codec. width*height*bytesPerSample bounds the
// decoded size of one block; it is passed to the codec as a hint only.
func New(codec types.CodecID, width, height, bytesPerSample int, opts ...Option) *Decoder {
	d := &Decoder{
		codec:         codec,
		maxOutputSize: width * height * bytesPerSample,
		log:           slog.With("component", "decoder", "codec", string(codec)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewLZW returns a decoder for TIFF LZW blocks.
func NewLZW(width, height, bytesPerSample int, opts ...Option) *Decoder {
	return New(types.CodecLZW, width, height, bytesPerSample, opts...)
}

// NewJPEG2000 returns a decoder for JPEG 2000 blocks.
func NewJPEG2000(width, height, bytesPerSample int, opts ...Option) *Decoder {
	return New(types.CodecJPEG2000, width, height, bytesPerSample, opts...)
}

// DecoderID returns the codec identity of d.
func (d *Decoder) DecoderID() types.CodecID { return d.codec }

// MaxOutputSize returns the decoded size bound passed to the codec.
func (d *Decoder) MaxOutputSize() int { return d.maxOutputSize }

func (d *Decoder) op() string { return fmt.Sprintf("decode %s block", d.codec) }

// Decode returns the decoded bytes of input. Identical inputs are decoded once
// and then served from the cache. The returned slice belongs to the caller.
//
// Concurrent misses on the same block share one job. The job outlives any
// single caller: a caller whose ctx ends gets ctx.Err() while the others keep
// waiting for the result.
func (d *Decoder) Decode(ctx context.Context, input []byte) ([]byte, error) {
	if len(input) == 0 {
		return nil, &types.DecodeError{Op: d.op(), Codec: d.codec, Err: fmt.Errorf("%w: empty block", types.ErrInvalidInput)}
	}

	cache := d.cache
	if cache == nil {
		cache = SharedCache()
	}
	key := CacheKey{Codec: d.codec, Hash: ContentHash(input)}
	if out, ok := cache.Get(key); ok {
		return bytes.Clone(out), nil
	}

	// the job may still be running after this caller has returned
	block := bytes.Clone(input)
	jobCtx := context.WithoutCancel(ctx)
	ch := d.group.DoChan(key.String(), func() (interface{}, error) {
		pool := d.pool
		if pool == nil {
			var err error
			if pool, err = SharedPool(); err != nil {
				return nil, err
			}
		}
		res, err := pool.Submit(types.DecodeJob{
			Input:         block,
			MaxOutputSize: d.maxOutputSize,
			Codec:         d.codec,
		}).Wait(jobCtx)
		if err != nil {
			return nil, err
		}
		cache.Add(key, res.Output)
		return res.Output, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			d.log.Debug("block decode failed", "key", key.String(), "err", res.Err)
			return nil, &types.DecodeError{Op: d.op(), Codec: d.codec, Err: res.Err}
		}
		return bytes.Clone(res.Val.([]byte)), nil
	case <-ctx.Done():
		return nil, &types.DecodeError{Op: d.op(), Codec: d.codec, Err: ctx.Err()}
	}
}
