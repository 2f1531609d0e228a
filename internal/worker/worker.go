// ============================================================================
// slidetiles Worker - decode execution unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Purpose: One goroutine + one Executor. A worker runs exactly one job at a
// time and hands itself back to the pool when the job is done.
//
// Execution model:
//   ┌──────────────────────────────────────┐
//   │  Worker goroutine                    │
//   │  for job := range inbox              │
//   │    ├─ context (pool ctx + timeout)   │
//   │    ├─ executor.Execute(job)          │
//   │    ├─ resolve job future             │
//   │    └─ pool.release(worker)           │
//   └──────────────────────────────────────┘
//
// A panicking codec is recovered and reported on the job's future; the
// worker keeps serving subsequent jobs.
//
// ============================================================================

package worker

import (
	"context"
	"fmt"
	"time"
)

// Worker is a single decode execution unit.
type Worker struct {
	id      int
	exec    Executor
	inbox   chan *pendingJob // capacity 1; only written while the worker is idle
	current *pendingJob      // guarded by Pool.mu
}

func newWorker(id int, exec Executor) *Worker {
	return &Worker{
		id:    id,
		exec:  exec,
		inbox: make(chan *pendingJob, 1),
	}
}

// ID returns the worker index within its pool.
func (w *Worker) ID() int { return w.id }

// run is the main loop of the worker.
func (w *Worker) run(p *Pool) {
	for pj := range w.inbox {
		start := time.Now()

		ctx, cancel := p.jobContext()
		out, err := w.execute(ctx, pj)
		cancel()

		elapsed := time.Since(start)
		if err != nil {
			err = fmt.Errorf("job %s failed on worker %d: %w", pj.job.ID, w.id, err)
			if pj.future.reject(err) {
				p.metrics.RecordFailed(elapsed.Seconds())
				p.log.Debug("decode job failed", "job", pj.job.ID, "worker", w.id, "err", err)
			}
		} else if pj.future.fulfill(out) {
			p.metrics.RecordCompleted(elapsed.Seconds())
		}

		p.release(w)
	}
}

func (w *Worker) execute(ctx context.Context, pj *pendingJob) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("codec panic: %v", r)
		}
	}()
	return w.exec.Execute(ctx, pj.job)
}
