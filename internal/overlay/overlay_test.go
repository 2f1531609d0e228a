package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ChuLiYu/slidetiles/internal/storage"
	"github.com/ChuLiYu/slidetiles/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	key     = types.TileKey{Level: 4, X: 1, Y: 2}
	red     = types.RGBA{R: 255, A: 255}
	green   = types.RGBA{G: 255, A: 255}
	markers = []types.MarkerDefinition{
		{Name: "m0", Color: red},
		{Name: "m1", Color: green},
		{Name: "m2", Color: types.RGBA{B: 255}},
		{Name: "m3", Color: types.RGBA{R: 10}},
	}
	square = []float64{0, 0, 10, 0, 10, 10, 0, 10}
)

// memStore serves tiles from memory and counts fetches.
type memStore struct {
	mu      sync.Mutex
	tiles   map[types.TileKey][]byte
	err     error
	fetches atomic.Int32
}

func (s *memStore) FetchTile(_ context.Context, k types.TileKey) ([]byte, error) {
	s.fetches.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.tiles[k]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func encode(t *testing.T, features []Feature, opts EncodeOptions) []byte {
	t.Helper()
	b, err := EncodeTile(features, opts)
	require.NoError(t, err)
	return b
}

func sampleFeatures() []Feature {
	return []Feature{
		{ID: 100, X: 1, Y: 2, Outline: square, Bitmask: 1},
		{ID: 101, X: 3, Y: 4, Outline: square, Bitmask: 2},
		{ID: 102, X: 5, Y: 6, Bitmask: 3},
	}
}

func newPipeline(t *testing.T, store storage.Store, cfg Config) (*Pipeline, ChanNotifier) {
	t.Helper()
	notes := make(ChanNotifier, 8)
	cfg.Store = store
	cfg.Notifier = notes
	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	p.SetMarkers(markers, 0.8)
	return p, notes
}

// ============================================================================
// Bitmask Tests
// ============================================================================

func TestEnabledBitmask(t *testing.T) {
	known := types.MarkerNames(markers)
	assert.Equal(t, uint32(0b0101), EnabledBitmask(known, []string{"m0", "m2"}))
	assert.Equal(t, uint32(0), EnabledBitmask(known, nil))
	assert.Equal(t, uint32(0b0010), EnabledBitmask(known, []string{"m1", "unknown"}))
}

func TestEnabledBitmaskIgnoresMarkersPastThirtyTwo(t *testing.T) {
	known := make([]string, 40)
	for i := range known {
		known[i] = string(rune('A' + i))
	}
	mask := EnabledBitmask(known, []string{known[31], known[35]})
	assert.Equal(t, uint32(1<<31), mask)
}

func TestMarkerMasks(t *testing.T) {
	full := []float32{0b0110, 0, 0b1111}
	masks := MarkerMasks(full, 0b0101)
	assert.Equal(t, []uint32{0b0100, 0, 0b0101}, masks)
	assert.Equal(t, []float32{0b0110, 0, 0b1111}, full, "full bitmasks are not modified")
}

func TestFeatureMaskSaturatesAtThirtyTwoBits(t *testing.T) {
	assert.Equal(t, uint32(0xFFFFFFFF), FeatureMask(float32(0xFFFFFFFF)))
	assert.Equal(t, uint32(0xFFFFFFFF), FeatureMask(float32(0xFFFFFF80)))
	assert.Equal(t, uint32(0x80000000), FeatureMask(float32(0x80000000)))
	assert.Equal(t, uint32(0), FeatureMask(-1))

	all := uint32(0xFFFFFFFF)
	assert.Equal(t, []uint32{all}, MarkerMasks([]float32{float32(all)}, all))
}

func TestDuplicateMarkerNamesUseFirstOrdinal(t *testing.T) {
	known := []string{"m0", "tumor", "m2", "tumor"}
	assert.Equal(t, uint32(0b0010), EnabledBitmask(known, []string{"tumor"}))

	dup := []types.MarkerDefinition{
		{Name: "m0", Color: red},
		{Name: "tumor", Color: green},
		{Name: "m2", Color: red},
		{Name: "tumor", Color: types.RGBA{B: 255}},
	}
	tile, err := ParseTile(key, encode(t, []Feature{
		{ID: 1, Bitmask: 0b1000},
		{ID: 2, Bitmask: 0b0010},
	}, EncodeOptions{}))
	require.NoError(t, err)
	defer tile.Release()

	_, ok := Pick(tile, 0, dup, []string{"tumor"})
	assert.False(t, ok, "only the first tumor ordinal counts")
	info, ok := Pick(tile, 1, dup, []string{"tumor"})
	require.True(t, ok)
	assert.Equal(t, []Label{{Name: "tumor", Color: green}}, info.Labels)
}

func TestStrokeColors(t *testing.T) {
	masks := []uint32{1, 0, 4}
	assert.Equal(t, []types.RGBA{types.White, types.Transparent, types.White}, StrokeColors(masks, 0.5))
	for _, c := range StrokeColors(masks, 0) {
		assert.Equal(t, types.Transparent, c)
	}
}

// ============================================================================
// Tile Tests
// ============================================================================

func TestParseTileChunks(t *testing.T) {
	tile, err := ParseTile(key, encode(t, sampleFeatures(), EncodeOptions{ChunkSize: 2}))
	require.NoError(t, err)
	defer tile.Release()

	assert.Equal(t, 3, tile.NumRows())
	assert.Equal(t, 2, tile.NumChunks())
	assert.True(t, tile.HasColumn(ColumnBitmask))
	assert.False(t, tile.HasColumn("nope"))

	d := NewDerivedTable()
	pos, err := d.Positions(tile)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, pos)

	bm, err := d.Bitmasks(tile)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, bm)

	outlines, err := d.Outlines(tile)
	require.NoError(t, err)
	require.Len(t, outlines, 3)
	assert.Equal(t, append(append([]float64{}, square...), 0, 0), outlines[0], "ring is closed")
	assert.Empty(t, outlines[2], "null geometry yields an empty ring")
}

func TestParseTileGarbage(t *testing.T) {
	_, err := ParseTile(key, []byte("not arrow"))
	assert.Error(t, err)
}

func TestDerivedTableMemoizes(t *testing.T) {
	tile, err := ParseTile(key, encode(t, sampleFeatures(), EncodeOptions{}))
	require.NoError(t, err)

	d := NewDerivedTable()
	first, err := d.Positions(tile)
	require.NoError(t, err)
	second, err := d.Positions(tile)
	require.NoError(t, err)
	assert.Same(t, &first[0], &second[0])
	assert.Equal(t, 1, d.Len())

	d.Forget(key)
	assert.Equal(t, 0, d.Len())
}

func TestDecodeOutlineVariants(t *testing.T) {
	assert.Nil(t, decodeOutline(nil))
	assert.Empty(t, decodeOutline([]byte{1, 2, 3}))

	wkb, err := encodeOutline([]float64{0, 0, 1, 0, 1, 1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 0, 1, 1, 0, 0}, decodeOutline(wkb))

	_, err = encodeOutline([]float64{1, 2, 3})
	assert.Error(t, err)
}

// ============================================================================
// Pipeline Tests
// ============================================================================

func TestRenderPointsEndToEnd(t *testing.T) {
	store := &memStore{tiles: map[types.TileKey][]byte{key: encode(t, sampleFeatures(), EncodeOptions{})}}
	p, _ := newPipeline(t, store, Config{PointModeZoom: 5})

	layer, err := p.RenderTile(context.Background(), Request{Key: key, Enabled: []string{"m0", "m1"}, Zoom: 6})
	require.NoError(t, err)
	require.NotNil(t, layer)
	assert.Equal(t, ModePoints, layer.Mode)
	assert.Equal(t, []uint32{1, 2, 3}, layer.Points.Masks)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, layer.Points.Positions)
	assert.Nil(t, layer.Fill)
	assert.Equal(t, 3, layer.Len())

	assert.Equal(t, red, layer.Palette.Colors[0])
	assert.Equal(t, 0.8, layer.Palette.Opacity)

	c, ok := layer.Color(2)
	require.True(t, ok)
	assert.Equal(t, 1.0, c.R)
	assert.Equal(t, 1.0, c.G)
}

func TestRenderFeatureWithAllThirtyTwoMarkers(t *testing.T) {
	all := make([]types.MarkerDefinition, 32)
	for i := range all {
		all[i] = types.MarkerDefinition{Name: fmt.Sprintf("marker-%d", i), Color: types.RGBA{R: 8}}
	}
	features := []Feature{
		{ID: 1, X: 1, Y: 1, Bitmask: 0xFFFFFFFF},
		{ID: 2, X: 2, Y: 2, Bitmask: 0x80000000},
	}
	store := &memStore{tiles: map[types.TileKey][]byte{key: encode(t, features, EncodeOptions{})}}
	p, _ := newPipeline(t, store, Config{PointModeZoom: 1})
	p.SetMarkers(all, 1)

	layer, err := p.RenderTile(context.Background(), Request{Key: key, Enabled: types.MarkerNames(all), Zoom: 2})
	require.NoError(t, err)
	require.NotNil(t, layer)
	assert.Equal(t, []uint32{0xFFFFFFFF, 0x80000000}, layer.Points.Masks)

	for i := 0; i < layer.Len(); i++ {
		_, drawn := layer.Color(i)
		assert.True(t, drawn, "feature %d", i)
	}
}

func TestRenderPolygonsBelowPointZoom(t *testing.T) {
	store := &memStore{tiles: map[types.TileKey][]byte{key: encode(t, sampleFeatures(), EncodeOptions{})}}
	p, _ := newPipeline(t, store, Config{PointModeZoom: 5})

	layer, err := p.RenderTile(context.Background(), Request{Key: key, Enabled: []string{"m1"}, Zoom: 2, StrokeOpacity: 1})
	require.NoError(t, err)
	require.NotNil(t, layer)
	assert.Equal(t, ModePolygons, layer.Mode)
	assert.Nil(t, layer.Points)
	require.NotNil(t, layer.Fill)
	require.NotNil(t, layer.Stroke)
	assert.Equal(t, []uint32{0, 2, 2}, layer.Fill.Masks)
	assert.Equal(t, []types.RGBA{types.Transparent, types.White, types.White}, layer.Stroke.LineColors)

	_, ok := layer.Color(0)
	assert.False(t, ok, "features without enabled markers are discarded")
}

func TestRenderZeroStrokeOpacity(t *testing.T) {
	store := &memStore{tiles: map[types.TileKey][]byte{key: encode(t, sampleFeatures(), EncodeOptions{})}}
	p, _ := newPipeline(t, store, Config{})

	layer, err := p.RenderTile(context.Background(), Request{Key: key, Enabled: []string{"m0", "m1"}, StrokeOpacity: 0})
	require.NoError(t, err)
	for _, c := range layer.Stroke.LineColors {
		assert.Equal(t, types.Transparent, c)
	}
}

func TestRenderTileCachesParsedTile(t *testing.T) {
	store := &memStore{tiles: map[types.TileKey][]byte{key: encode(t, sampleFeatures(), EncodeOptions{})}}
	p, _ := newPipeline(t, store, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.RenderTile(ctx, Request{Key: key, Zoom: float64(i * 10)})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), store.fetches.Load())
	assert.Equal(t, 1, p.CachedTiles())
}

func TestRenderMissingTile(t *testing.T) {
	p, notes := newPipeline(t, &memStore{}, Config{})

	layer, err := p.RenderTile(context.Background(), Request{Key: key})
	assert.NoError(t, err)
	assert.Nil(t, layer)
	assert.Empty(t, notes, "an absent tile is not an error")
}

func TestRenderFetchFailureNotifies(t *testing.T) {
	store := &memStore{err: errors.New("connection reset")}
	p, notes := newPipeline(t, store, Config{})

	layer, err := p.RenderTile(context.Background(), Request{Key: key})
	assert.NoError(t, err)
	assert.Nil(t, layer)
	require.Len(t, notes, 1)
	n := <-notes
	assert.Equal(t, VariantError, n.Variant)
	assert.Contains(t, n.Message, "connection reset")
	assert.Equal(t, "4/1/2", n.Tile)
}

type failingDecoder struct{}

func (failingDecoder) Decode(context.Context, []byte) ([]byte, error) {
	return nil, &types.DecodeError{Op: "decode lzw block", Codec: types.CodecLZW, Err: errors.New("bad code")}
}

func TestRenderDecodeFailureNotifies(t *testing.T) {
	store := &memStore{tiles: map[types.TileKey][]byte{key: {1, 2, 3}}}
	p, notes := newPipeline(t, store, Config{Decoder: failingDecoder{}})

	layer, err := p.RenderTile(context.Background(), Request{Key: key})
	assert.NoError(t, err)
	assert.Nil(t, layer)
	require.Len(t, notes, 1)
	assert.Contains(t, (<-notes).Message, "bad code")
}

func TestRenderMissingBitmaskColumnIsLoud(t *testing.T) {
	payload := encode(t, sampleFeatures(), EncodeOptions{Omit: []string{ColumnBitmask}})
	p, notes := newPipeline(t, &memStore{tiles: map[types.TileKey][]byte{key: payload}}, Config{})

	layer, err := p.RenderTile(context.Background(), Request{Key: key})
	require.Error(t, err)
	assert.Nil(t, layer)
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	assert.Empty(t, notes)
}

func TestRenderOutOfRangeKey(t *testing.T) {
	store := &memStore{}
	p, _ := newPipeline(t, store, Config{MinZoom: 2, MaxZoom: 6})

	for _, k := range []types.TileKey{{Level: 1}, {Level: 7}, {Level: 3, X: -1}} {
		layer, err := p.RenderTile(context.Background(), Request{Key: k})
		assert.NoError(t, err)
		assert.Nil(t, layer)
	}
	assert.Equal(t, int32(0), store.fetches.Load())
}

func TestNewPipelineValidation(t *testing.T) {
	_, err := NewPipeline(Config{})
	assert.Error(t, err)
	_, err = NewPipeline(Config{Store: &memStore{}, MinZoom: 9, MaxZoom: 3})
	assert.Error(t, err)
}

func TestSetMarkersReplacesPalette(t *testing.T) {
	p, _ := newPipeline(t, &memStore{}, Config{})
	assert.Equal(t, red, p.Palette().Colors[0])

	p.SetMarkers([]types.MarkerDefinition{{Name: "x", Color: green}}, 0.2)
	assert.Equal(t, green, p.Palette().Colors[0])
	assert.Equal(t, types.Transparent, p.Palette().Colors[1])
	assert.Equal(t, 0.2, p.Palette().Opacity)
}

// ============================================================================
// Pick Tests
// ============================================================================

func TestPick(t *testing.T) {
	store := &memStore{tiles: map[types.TileKey][]byte{key: encode(t, sampleFeatures(), EncodeOptions{ChunkSize: 2})}}
	p, _ := newPipeline(t, store, Config{})
	ctx := context.Background()

	_, ok := p.Pick(key, 0, []string{"m0"})
	assert.False(t, ok, "tile not loaded yet")

	_, err := p.RenderTile(ctx, Request{Key: key})
	require.NoError(t, err)

	info, ok := p.Pick(key, 2, []string{"m1", "m0", "m3"})
	require.True(t, ok)
	assert.Equal(t, "102", info.ID)
	assert.Equal(t, []Label{{Name: "m1", Color: green}, {Name: "m0", Color: red}}, info.Labels)

	_, ok = p.Pick(key, 1, []string{"m0"})
	assert.False(t, ok, "no enabled marker applies")

	_, ok = p.Pick(key, 9, []string{"m0"})
	assert.False(t, ok)
}

// ============================================================================
// Notifier Tests
// ============================================================================

func TestChanNotifierDoesNotBlock(t *testing.T) {
	c := make(ChanNotifier, 1)
	c.Emit(Notification{Message: "a"})
	c.Emit(Notification{Message: "b"})
	assert.Equal(t, "a", (<-c).Message)
}

func TestNotifierFunc(t *testing.T) {
	var got Notification
	NotifierFunc(func(n Notification) { got = n }).Emit(Notification{Variant: VariantInfo, Message: "hi"})
	assert.Equal(t, VariantInfo, got.Variant)
	LogNotifier{}.Emit(Notification{Variant: VariantError, Message: "logged"})
}
