// ============================================================================
// slidetiles Worker Pool - TaskScheduler for block decodes
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Purpose: Run CPU-bound decode jobs off the caller's goroutine with a fixed
// number of workers.
//
// Architecture:
//   ┌──────────────┐
//   │ BlockDecoder │ --Submit(job)--> Future
//   └──────────────┘
//          │
//   ┌──────▼───────────────────────────────┐
//   │ Pool                                 │
//   │   idle:  [w3 w1]                     │
//   │   queue: [job7 job8 job9]  (FIFO)    │
//   │   ┌────────┐ ┌────────┐ ┌────────┐   │
//   │   │Worker 0│ │Worker 1│ │Worker 2│   │
//   │   └────────┘ └────────┘ └────────┘   │
//   └──────────────────────────────────────┘
//
// Dispatch:
//   - Submit hands the job to an idle worker right away, or appends it to the
//     FIFO queue when every worker is busy.
//   - When a worker finishes, the head of the queue is handed to it
//     immediately; otherwise it joins the idle set.
//   - Jobs waiting in the queue leave it in submission order. Completion order
//     across workers is not guaranteed.
//
// Shutdown:
//   1. Mark the pool stopped; later submissions resolve with ErrPoolClosed
//   2. Resolve every queued and in-flight future with ErrCancelled
//   3. Cancel the pool context and close worker inboxes
//   4. Wait for worker goroutines, then close their executors
//
// The queue, idle set and per-worker current job are guarded by one mutex.
// Every operation under it is a slice push/pop or a non-blocking send.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChuLiYu/slidetiles/internal/metrics"
	"github.com/ChuLiYu/slidetiles/pkg/types"
)

// DefaultWorkerCount is the pool size used when Config.Workers is zero.
const DefaultWorkerCount = 8

var (
	// ErrPoolClosed resolves jobs submitted after Shutdown.
	ErrPoolClosed = fmt.Errorf("%w: worker pool is closed", types.ErrCancelled)
	// ErrPoolNotStarted resolves jobs submitted before Start.
	ErrPoolNotStarted = errors.New("worker pool not started")
)

// Config configures a Pool.
type Config struct {
	Workers     int                // fixed worker count, DefaultWorkerCount when zero
	NewExecutor ExecutorFactory    // one execution context per worker; LocalExecutors(nil) when nil
	JobTimeout  time.Duration      // optional per-job deadline, none when zero
	Metrics     *metrics.Collector // optional
	Logger      *slog.Logger       // optional
}

type pendingJob struct {
	job    types.DecodeJob
	future *Future
}

// Pool is a fixed-size set of workers with a FIFO wait queue.
type Pool struct {
	cfg     Config
	metrics *metrics.Collector
	log     *slog.Logger

	mu      sync.Mutex
	workers []*Worker
	idle    []*Worker
	queue   []*pendingJob
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	seq    atomic.Uint64
}

// NewPool creates a pool. Workers are created by Start.
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkerCount
	}
	if cfg.NewExecutor == nil {
		cfg.NewExecutor = LocalExecutors(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:     cfg,
		metrics: cfg.Metrics,
		log:     logger.With("component", "worker-pool"),
	}
}

// Start creates the executors and launches the worker goroutines. If any
// executor cannot be created, the ones already created are closed.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("pool already started")
	}

	workers := make([]*Worker, 0, p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		exec, err := p.cfg.NewExecutor(i)
		if err != nil {
			for _, w := range workers {
				_ = w.exec.Close()
			}
			return fmt.Errorf("failed to create executor for worker %d: %w", i, err)
		}
		workers = append(workers, newWorker(i, exec))
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.workers = workers
	p.idle = append([]*Worker(nil), workers...)
	for _, w := range workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.run(p)
		}(w)
	}

	p.started = true
	p.log.Info("worker pool started", "workers", len(workers))
	return nil
}

// Submit schedules job and returns its future. It never blocks. A job without
// an ID is given one.
func (p *Pool) Submit(job types.DecodeJob) *Future {
	if job.ID == "" {
		job.ID = types.JobID(fmt.Sprintf("job-%d", p.seq.Add(1)))
	}
	pj := &pendingJob{job: job, future: newFuture(job.ID)}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		pj.future.reject(ErrPoolNotStarted)
		return pj.future
	}
	if p.stopped {
		pj.future.reject(ErrPoolClosed)
		return pj.future
	}

	p.metrics.RecordSubmit()
	if n := len(p.idle); n > 0 {
		w := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.assign(w, pj)
	} else {
		p.queue = append(p.queue, pj)
	}
	p.updateStats()
	return pj.future
}

// assign hands pj to an idle worker. Caller must hold p.mu.
func (p *Pool) assign(w *Worker, pj *pendingJob) {
	w.current = pj
	w.inbox <- pj
}

// release returns w to the pool after a job and dispatches the next queued job.
func (p *Pool) release(w *Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.current = nil
	if p.stopped {
		return
	}
	if len(p.queue) > 0 {
		pj := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.assign(w, pj)
	} else {
		p.idle = append(p.idle, w)
	}
	p.updateStats()
}

// updateStats publishes queue and busy gauges. Caller must hold p.mu.
func (p *Pool) updateStats() {
	p.metrics.UpdatePoolStats(len(p.queue), len(p.workers)-len(p.idle))
}

func (p *Pool) jobContext() (context.Context, context.CancelFunc) {
	if p.cfg.JobTimeout > 0 {
		return context.WithTimeout(p.ctx, p.cfg.JobTimeout)
	}
	return context.WithCancel(p.ctx)
}

// Shutdown stops the pool. Queued and in-flight jobs resolve with
// ErrCancelled; Shutdown returns once every worker goroutine has exited.
// Calling it more than once is safe.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true

	dropped := p.queue
	p.queue = nil
	for _, w := range p.workers {
		if w.current != nil {
			dropped = append(dropped, w.current)
		}
		close(w.inbox)
	}
	p.idle = nil
	p.metrics.UpdatePoolStats(0, 0)
	p.mu.Unlock()

	cancelled := 0
	for _, pj := range dropped {
		if pj.future.reject(fmt.Errorf("job %s: %w", pj.job.ID, types.ErrCancelled)) {
			cancelled++
		}
	}
	p.metrics.RecordCancelled(cancelled)
	p.cancel()

	p.wg.Wait()
	for _, w := range p.workers {
		if err := w.exec.Close(); err != nil {
			p.log.Warn("failed to close executor", "worker", w.id, "err", err)
		}
	}
	p.log.Info("worker pool stopped", "cancelled", cancelled)
}

// WorkerCount returns the number of workers.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// QueueLen returns the number of jobs waiting for a worker.
func (p *Pool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// IsStarted reports whether Start has succeeded.
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// IsStopped reports whether Shutdown has been called.
func (p *Pool) IsStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
