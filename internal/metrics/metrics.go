// ============================================================================
// slidetiles Metrics - Prometheus instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose decode pool, decode cache and overlay tile
// metrics for Prometheus.
//
// Metric groups:
//
//   1. Decode jobs (worker pool):
//      - slidetiles_decode_jobs_submitted_total
//      - slidetiles_decode_jobs_completed_total
//      - slidetiles_decode_jobs_failed_total
//      - slidetiles_decode_jobs_cancelled_total
//      - slidetiles_decode_job_latency_seconds   (histogram)
//      - slidetiles_decode_jobs_queued           (gauge, jobs waiting for a worker)
//      - slidetiles_decode_workers_busy          (gauge)
//
//   2. Decode cache (content addressed, LRU):
//      - slidetiles_decode_cache_hits_total / _misses_total / _evictions_total
//      - slidetiles_decode_cache_entries         (gauge)
//
//   3. Overlay tiles:
//      - slidetiles_tiles_rendered_total{mode="points|polygons"}
//      - slidetiles_tile_failures_total{stage="fetch|decode|parse"}
//
// Example queries:
//
//   # decode cache hit ratio
//   rate(slidetiles_decode_cache_hits_total[5m]) /
//     (rate(slidetiles_decode_cache_hits_total[5m]) + rate(slidetiles_decode_cache_misses_total[5m]))
//
//   # 95th percentile block decode latency
//   histogram_quantile(0.95, rate(slidetiles_decode_job_latency_seconds_bucket[5m]))
//
// A nil *Collector is valid and records nothing, so components can be built
// without instrumentation in tests.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slidetiles"

// Collector holds every slidetiles metric.
type Collector struct {
	// decode jobs
	jobsSubmitted prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobsCancelled prometheus.Counter
	jobLatency    prometheus.Histogram
	jobsQueued    prometheus.Gauge
	workersBusy   prometheus.Gauge

	// decode cache
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	cacheEntries   prometheus.Gauge

	// overlay tiles
	tilesRendered *prometheus.CounterVec
	tileFailures  *prometheus.CounterVec
}

// NewCollector creates the collector and registers it on reg. A nil reg
// registers on prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_jobs_submitted_total",
			Help:      "Total number of block decode jobs submitted to the worker pool",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_jobs_completed_total",
			Help:      "Total number of block decode jobs completed successfully",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_jobs_failed_total",
			Help:      "Total number of block decode jobs that returned an error",
		}),
		jobsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_jobs_cancelled_total",
			Help:      "Total number of block decode jobs cancelled by pool shutdown",
		}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_job_latency_seconds",
			Help:      "Block decode time on a worker in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		jobsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "decode_jobs_queued",
			Help:      "Current number of decode jobs waiting for a free worker",
		}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "decode_workers_busy",
			Help:      "Current number of workers running a decode job",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_cache_hits_total",
			Help:      "Total number of decode cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_cache_misses_total",
			Help:      "Total number of decode cache misses",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_cache_evictions_total",
			Help:      "Total number of least recently used decode cache evictions",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "decode_cache_entries",
			Help:      "Current number of decoded blocks held in the cache",
		}),
		tilesRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_rendered_total",
			Help:      "Total number of overlay tiles turned into render layers",
		}, []string{"mode"}),
		tileFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_failures_total",
			Help:      "Total number of overlay tiles dropped because a stage failed",
		}, []string{"stage"}),
	}

	reg.MustRegister(
		c.jobsSubmitted, c.jobsCompleted, c.jobsFailed, c.jobsCancelled,
		c.jobLatency, c.jobsQueued, c.workersBusy,
		c.cacheHits, c.cacheMisses, c.cacheEvictions, c.cacheEntries,
		c.tilesRendered, c.tileFailures,
	)
	return c
}

// RecordSubmit records a job accepted by the pool.
func (c *Collector) RecordSubmit() {
	if c == nil {
		return
	}
	c.jobsSubmitted.Inc()
}

// RecordCompleted records a successful job and its worker time.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	if c == nil {
		return
	}
	c.jobsCompleted.Inc()
	c.jobLatency.Observe(latencySeconds)
}

// RecordFailed records a job whose codec returned an error.
func (c *Collector) RecordFailed(latencySeconds float64) {
	if c == nil {
		return
	}
	c.jobsFailed.Inc()
	c.jobLatency.Observe(latencySeconds)
}

// RecordCancelled records n jobs dropped by shutdown.
func (c *Collector) RecordCancelled(n int) {
	if c == nil {
		return
	}
	c.jobsCancelled.Add(float64(n))
}

// UpdatePoolStats sets the queue depth and busy worker gauges.
func (c *Collector) UpdatePoolStats(queued, busy int) {
	if c == nil {
		return
	}
	c.jobsQueued.Set(float64(queued))
	c.workersBusy.Set(float64(busy))
}

// RecordCacheHit records a decode served from the cache.
func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// RecordCacheMiss records a decode that had to run a codec.
func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// RecordCacheEviction records one evicted cache entry.
func (c *Collector) RecordCacheEviction() {
	if c == nil {
		return
	}
	c.cacheEvictions.Inc()
}

// SetCacheEntries sets the current cache size.
func (c *Collector) SetCacheEntries(n int) {
	if c == nil {
		return
	}
	c.cacheEntries.Set(float64(n))
}

// RecordTileRendered records a tile rendered in mode ("points" or "polygons").
func (c *Collector) RecordTileRendered(mode string) {
	if c == nil {
		return
	}
	c.tilesRendered.WithLabelValues(mode).Inc()
}

// RecordTileFailure records a tile dropped at stage.
func (c *Collector) RecordTileFailure(stage string) {
	if c == nil {
		return
	}
	c.tileFailures.WithLabelValues(stage).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// StartServer serves /metrics from g on port. It blocks like http.ListenAndServe.
func StartServer(port int, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
