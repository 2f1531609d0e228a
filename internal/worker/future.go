package worker

import (
	"context"
	"sync"

	"github.com/ChuLiYu/slidetiles/pkg/types"
)

// Future is the pending result of a submitted decode job. It resolves exactly
// once: with the decoded bytes, with the job's error, or with ErrCancelled.
type Future struct {
	id     types.JobID
	done   chan struct{}
	once   sync.Once
	result types.DecodeResult
	err    error
}

func newFuture(id types.JobID) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// JobID returns the identifier of the job behind the future.
func (f *Future) JobID() types.JobID { return f.id }

// Done is closed once the future has resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the job resolves or ctx ends. Giving up on ctx does not
// cancel the job; its result is simply not observed.
func (f *Future) Wait(ctx context.Context) (types.DecodeResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return types.DecodeResult{}, ctx.Err()
	}
}

func (f *Future) fulfill(out []byte) bool {
	return f.resolve(types.DecodeResult{JobID: f.id, Output: out}, nil)
}

func (f *Future) reject(err error) bool {
	return f.resolve(types.DecodeResult{JobID: f.id}, err)
}

func (f *Future) resolve(res types.DecodeResult, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.result, f.err = res, err
		close(f.done)
		resolved = true
	})
	return resolved
}
