// Package codec holds the block decode routines a worker can run. A codec is
// selected purely by its identifier; adding a format means registering one
// more Codec here and nothing else.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ChuLiYu/slidetiles/pkg/types"
)

var (
	// ErrUnknownCodec is returned by Lookup for an unregistered identifier.
	ErrUnknownCodec = errors.New("unknown codec")
	// ErrOutputTooLarge is returned when a block decodes to more bytes than the
	// caller's bound allows and the codec cannot truncate safely.
	ErrOutputTooLarge = errors.New("decoded output exceeds max output size")
)

// Codec decodes one compressed image block. maxOutputSize is an upper bound
// on the decoded length; zero or negative means unbounded.
type Codec interface {
	ID() types.CodecID
	Decode(input []byte, maxOutputSize int) ([]byte, error)
}

// Registry maps codec identifiers to codecs. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	codecs map[types.CodecID]Codec
}

// NewRegistry creates a registry holding the given codecs.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[types.CodecID]Codec)}
	for _, c := range codecs {
		r.Register(c)
	}
	return r
}

// Register adds c, replacing any codec with the same identifier.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.ID()] = c
}

// Lookup returns the codec registered under id.
func (r *Registry) Lookup(id types.CodecID) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, id)
	}
	return c, nil
}

// IDs lists the registered identifiers in sorted order.
func (r *Registry) IDs() []types.CodecID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.CodecID, 0, len(r.codecs))
	for id := range r.codecs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Decode runs the codec registered for job.Codec over the job input.
func (r *Registry) Decode(job types.DecodeJob) ([]byte, error) {
	c, err := r.Lookup(job.Codec)
	if err != nil {
		return nil, err
	}
	return c.Decode(job.Input, job.MaxOutputSize)
}

var defaultRegistry = NewRegistry(NewLZW(), NewJPEG2000(NativeBackend()))

// Default returns the process-wide registry used by local workers.
func Default() *Registry { return defaultRegistry }

// Register adds c to the default registry.
func Register(c Codec) { defaultRegistry.Register(c) }

// Lookup finds id in the default registry.
func Lookup(id types.CodecID) (Codec, error) { return defaultRegistry.Lookup(id) }
