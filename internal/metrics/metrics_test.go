package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.jobsSubmitted)
	assert.NotNil(t, collector.jobLatency)
	assert.NotNil(t, collector.cacheHits)
	assert.NotNil(t, collector.tilesRendered)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) }, "registering twice on one registry should panic")
}

func TestJobCounters(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	for i := 0; i < 3; i++ {
		collector.RecordSubmit()
	}
	collector.RecordCompleted(0.01)
	collector.RecordFailed(0.02)
	collector.RecordCancelled(4)

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.jobsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.jobsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.jobsFailed))
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.jobsCancelled))
}

func TestPoolGauges(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.UpdatePoolStats(5, 2)
	assert.Equal(t, 5.0, testutil.ToFloat64(collector.jobsQueued))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.workersBusy))

	collector.UpdatePoolStats(0, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.jobsQueued))
}

func TestCacheMetrics(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordCacheHit()
	collector.RecordCacheHit()
	collector.RecordCacheMiss()
	collector.RecordCacheEviction()
	collector.SetCacheEntries(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheEvictions))
	assert.Equal(t, 42.0, testutil.ToFloat64(collector.cacheEntries))
}

func TestTileMetrics(t *testing.T) {
	collector := NewCollector(prometheus.NewRegistry())

	collector.RecordTileRendered("points")
	collector.RecordTileRendered("points")
	collector.RecordTileRendered("polygons")
	collector.RecordTileFailure("fetch")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.tilesRendered.WithLabelValues("points")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.tilesRendered.WithLabelValues("polygons")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.tileFailures.WithLabelValues("fetch")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var collector *Collector
	assert.NotPanics(t, func() {
		collector.RecordSubmit()
		collector.RecordCompleted(1)
		collector.RecordFailed(1)
		collector.RecordCancelled(1)
		collector.UpdatePoolStats(1, 1)
		collector.RecordCacheHit()
		collector.RecordCacheMiss()
		collector.RecordCacheEviction()
		collector.SetCacheEntries(1)
		collector.RecordTileRendered("points")
		collector.RecordTileFailure("fetch")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)
	collector.RecordCacheHit()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "slidetiles_decode_cache_hits_total 1")
}
