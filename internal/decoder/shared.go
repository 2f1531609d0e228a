package decoder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/slidetiles/internal/metrics"
	"github.com/ChuLiYu/slidetiles/internal/worker"
)

// Settings configures the process-wide pool and cache.
type Settings struct {
	Workers      int
	CacheEntries int
	JobTimeout   time.Duration
	NewExecutor  worker.ExecutorFactory
	Metrics      *metrics.Collector
}

// shared holds the pool and cache every Decoder uses unless given its own.
var shared struct {
	mu       sync.Mutex
	settings Settings
	pool     *worker.Pool
	cache    *BlockCache
}

// Configure replaces the shared settings. A running shared pool is shut down
// and the shared cache dropped; both are recreated on next use.
func Configure(s Settings) {
	shared.mu.Lock()
	pool := shared.pool
	shared.settings = s
	shared.pool = nil
	shared.cache = nil
	shared.mu.Unlock()

	if pool != nil {
		pool.Shutdown()
	}
}

// SharedPool returns the process-wide worker pool, starting it on first use.
func SharedPool() (*worker.Pool, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.pool != nil {
		return shared.pool, nil
	}
	s := shared.settings
	pool := worker.NewPool(worker.Config{
		Workers:     s.Workers,
		NewExecutor: s.NewExecutor,
		JobTimeout:  s.JobTimeout,
		Metrics:     s.Metrics,
	})
	if err := pool.Start(); err != nil {
		return nil, err
	}
	shared.pool = pool
	return pool, nil
}

// SharedCache returns the process-wide decode cache.
func SharedCache() *BlockCache {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.cache == nil {
		shared.cache = NewBlockCache(shared.settings.CacheEntries, shared.settings.Metrics)
	}
	return shared.cache
}

// ClearCache empties the shared decode cache.
func ClearCache() {
	SharedCache().Clear()
}

// ShutdownPool stops the shared pool. Pending decodes fail with
// types.ErrCancelled; the next decode starts a fresh pool.
func ShutdownPool() {
	shared.mu.Lock()
	pool := shared.pool
	shared.pool = nil
	shared.mu.Unlock()

	if pool != nil {
		slog.Debug("shutting down shared decode pool")
		pool.Shutdown()
	}
}
