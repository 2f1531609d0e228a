package integration

import (
	"bytes"
	"compress/lzw"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChuLiYu/slidetiles/internal/codec"
	"github.com/ChuLiYu/slidetiles/internal/decoder"
	"github.com/ChuLiYu/slidetiles/internal/metrics"
	"github.com/ChuLiYu/slidetiles/internal/overlay"
	"github.com/ChuLiYu/slidetiles/internal/raster"
	"github.com/ChuLiYu/slidetiles/internal/remote"
	"github.com/ChuLiYu/slidetiles/internal/storage"
	"github.com/ChuLiYu/slidetiles/internal/worker"
	"github.com/ChuLiYu/slidetiles/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func compressLZW(t testing.TB, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	_, err := w.Write(b)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func renderedCount(t *testing.T, reg *prometheus.Registry, mode string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "slidetiles_tiles_rendered_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "mode" && l.GetValue() == mode {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

// startDecodeServer runs a decode server over an in-memory listener.
func startDecodeServer(t *testing.T) grpc.DialOption {
	t.Helper()
	pool := worker.NewPool(worker.Config{Workers: 2})
	require.NoError(t, pool.Start())

	lis := bufconn.Listen(1 << 20)
	srv := remote.NewGRPCServer(remote.NewServer(pool, codec.Default()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		pool.Shutdown()
	})
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

// TestCompressedTilesThroughRemoteWorkers stores LZW-compressed Arrow tiles in
// bolt, decodes them on remote workers and renders them.
func TestCompressedTilesThroughRemoteWorkers(t *testing.T) {
	dial := startDecodeServer(t)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	pool := worker.NewPool(worker.Config{
		Workers:     2,
		NewExecutor: remote.Executors("passthrough:///bufnet", dial),
		Metrics:     collector,
	})
	require.NoError(t, pool.Start())
	defer pool.Shutdown()

	store, err := storage.OpenBoltStore(filepath.Join(t.TempDir(), "tiles.db"))
	require.NoError(t, err)
	defer store.Close()

	key := types.TileKey{Level: 3, X: 0, Y: 0}
	payload, err := overlay.EncodeTile([]overlay.Feature{
		{ID: 1, X: 10, Y: 10, Outline: []float64{0, 0, 20, 0, 20, 20}, Bitmask: 1},
		{ID: 2, X: 50, Y: 50, Outline: []float64{40, 40, 60, 40, 60, 60}, Bitmask: 2},
		{ID: 3, X: 90, Y: 90, Bitmask: 3},
	}, overlay.EncodeOptions{ChunkSize: 2})
	require.NoError(t, err)
	require.NoError(t, store.PutTile(context.Background(), key, compressLZW(t, payload)))

	cache := decoder.NewBlockCache(16, collector)
	notes := make(overlay.ChanNotifier, 4)
	pipeline, err := overlay.NewPipeline(overlay.Config{
		Store:    store,
		Decoder:  decoder.NewLZW(0, 0, 0, decoder.WithPool(pool), decoder.WithCache(cache)),
		Notifier: notes,
		Metrics:  collector,
		Extent:   overlay.Extent{Width: 100, Height: 100},
	})
	require.NoError(t, err)
	pipeline.SetMarkers([]types.MarkerDefinition{
		{Name: "tumor", Color: types.RGBA{R: 255}},
		{Name: "stroma", Color: types.RGBA{G: 255}},
	}, 0.9)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	layer, err := pipeline.RenderTile(ctx, overlay.Request{Key: key, Enabled: []string{"tumor", "stroma"}, Zoom: 12})
	require.NoError(t, err)
	require.NotNil(t, layer, "notifications: %v", len(notes))
	assert.Equal(t, overlay.ModePoints, layer.Mode)
	assert.Equal(t, []uint32{1, 2, 3}, layer.Points.Masks)

	layer, err = pipeline.RenderTile(ctx, overlay.Request{Key: key, Enabled: []string{"stroma"}, StrokeOpacity: 1})
	require.NoError(t, err)
	assert.Equal(t, overlay.ModePolygons, layer.Mode)
	assert.Equal(t, []uint32{0, 2, 2}, layer.Fill.Masks)

	img, err := raster.Render(layer, 100, 100)
	require.NoError(t, err)
	_, g, _, a := img.At(50, 45).RGBA()
	assert.NotZero(t, a)
	assert.NotZero(t, g)

	info, ok := pipeline.Pick(key, 2, []string{"tumor"})
	require.True(t, ok)
	assert.Equal(t, "3", info.ID)

	assert.Equal(t, 1.0, renderedCount(t, reg, "points"))
	assert.Equal(t, 1.0, renderedCount(t, reg, "polygons"))
	assert.Empty(t, notes)
}

func TestCorruptCompressedTileIsReported(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewFileStore(dir)
	key := types.TileKey{Level: 1}
	require.NoError(t, store.PutTile(context.Background(), key, []byte("plain, not lzw")))

	pool := worker.NewPool(worker.Config{Workers: 1})
	require.NoError(t, pool.Start())
	defer pool.Shutdown()

	notes := make(overlay.ChanNotifier, 4)
	pipeline, err := overlay.NewPipeline(overlay.Config{
		Store:    store,
		Decoder:  decoder.NewLZW(0, 0, 0, decoder.WithPool(pool), decoder.WithCache(decoder.NewBlockCache(4, nil))),
		Notifier: notes,
	})
	require.NoError(t, err)

	layer, err := pipeline.RenderTile(context.Background(), overlay.Request{Key: key})
	assert.NoError(t, err)
	assert.Nil(t, layer)
	require.Len(t, notes, 1)
	assert.Equal(t, overlay.VariantError, (<-notes).Variant)
}
