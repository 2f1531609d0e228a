// ============================================================================
// slidetiles Executor - isolated execution context
// ============================================================================
//
// Package: internal/worker
// File: executor.go
// Purpose: Decouple the Pool from where a decode actually runs.
//
// Every worker owns exactly one Executor. An Executor receives a DecodeJob
// (message in) and returns the decoded bytes or an error (message out); it
// shares no mutable state with the other workers' executors.
//
//   - LocalExecutor: runs the codec registry on the worker goroutine.
//   - remote.Executor: forwards the job to a decode server over gRPC.
//
// ============================================================================

package worker

import (
	"context"

	"github.com/ChuLiYu/slidetiles/internal/codec"
	"github.com/ChuLiYu/slidetiles/pkg/types"
)

// Executor runs one decode job at a time on behalf of a single worker.
type Executor interface {
	// Execute decodes job.Input with the routine named by job.Codec.
	Execute(ctx context.Context, job types.DecodeJob) ([]byte, error)

	// Close releases the execution context. The pool calls it once, after the
	// worker has exited.
	Close() error
}

// ExecutorFactory creates the execution context for worker workerID.
type ExecutorFactory func(workerID int) (Executor, error)

// LocalExecutor decodes in-process with a codec registry.
type LocalExecutor struct {
	registry *codec.Registry
}

// NewLocalExecutor returns an executor backed by registry, or by the default
// registry when registry is nil.
func NewLocalExecutor(registry *codec.Registry) *LocalExecutor {
	if registry == nil {
		registry = codec.Default()
	}
	return &LocalExecutor{registry: registry}
}

// LocalExecutors returns a factory giving every worker its own LocalExecutor
// over the same registry.
func LocalExecutors(registry *codec.Registry) ExecutorFactory {
	return func(int) (Executor, error) {
		return NewLocalExecutor(registry), nil
	}
}

func (e *LocalExecutor) Execute(ctx context.Context, job types.DecodeJob) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.registry.Decode(job)
}

func (e *LocalExecutor) Close() error { return nil }
