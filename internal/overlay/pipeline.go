// ============================================================================
// slidetiles Overlay - tile render pipeline
// ============================================================================
//
// Package: internal/overlay
// File: pipeline.go
// Purpose: Turn a tile request into a drawable layer.
//
// Flow per tile:
//   fetch ──► [block decode] ──► parse Arrow ──► derived columns ──► layer
//     │             │                │
//     │ not found: no layer, no error
//     └─────────────┴── failure: notify the user, no layer
//
// Missing marker_bitmask (or the columns of the selected mode) is a schema
// contract violation and is returned as an error instead.
//
// Mode selection: zoom at or above PointModeZoom renders points, otherwise
// polygons (fill plus stroke).
//
// ============================================================================

package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ChuLiYu/slidetiles/internal/metrics"
	"github.com/ChuLiYu/slidetiles/internal/palette"
	"github.com/ChuLiYu/slidetiles/internal/storage"
	"github.com/ChuLiYu/slidetiles/pkg/types"
	"github.com/golang/groupcache/lru"
)

// Defaults applied by NewPipeline for zero Config fields.
const (
	DefaultPointModeZoom    = 8.0
	DefaultPointRadius      = 6.0
	DefaultMinPixelRadius   = 2.0
	DefaultLineWidth        = 1.0
	DefaultMaxZoom          = 20
	DefaultTileCacheEntries = 256
)

// PayloadDecoder decodes a compressed tile payload before parsing.
// *decoder.Decoder satisfies it.
type PayloadDecoder interface {
	Decode(ctx context.Context, input []byte) ([]byte, error)
}

// Config configures a Pipeline.
type Config struct {
	Store            storage.Store      // required
	Decoder          PayloadDecoder     // optional block-level payload codec
	Notifier         Notifier           // LogNotifier when nil
	Metrics          *metrics.Collector // optional
	Logger           *slog.Logger       // optional
	PointModeZoom    float64
	PointRadius      float64
	MinPixelRadius   float64
	LineWidth        float64
	MinZoom          int
	MaxZoom          int
	Extent           Extent
	TileCacheEntries int
}

// Request is one tile render request.
type Request struct {
	Key           types.TileKey
	Enabled       []string // names of the enabled markers
	StrokeOpacity float64
	Zoom          float64
}

// markerSet is the current marker configuration, replaced wholesale.
type markerSet struct {
	markers []types.MarkerDefinition
	names   []string
}

// Pipeline renders overlay tiles. It is safe for concurrent use.
type Pipeline struct {
	cfg      Config
	notifier Notifier
	metrics  *metrics.Collector
	log      *slog.Logger
	derived  *DerivedTable
	palette  *palette.Holder

	mu      sync.Mutex
	markers markerSet
	tiles   *lru.Cache
}

// NewPipeline creates a pipeline with no markers.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, errors.New("overlay pipeline requires a tile store")
	}
	if cfg.PointModeZoom == 0 {
		cfg.PointModeZoom = DefaultPointModeZoom
	}
	if cfg.PointRadius == 0 {
		cfg.PointRadius = DefaultPointRadius
	}
	if cfg.MinPixelRadius == 0 {
		cfg.MinPixelRadius = DefaultMinPixelRadius
	}
	if cfg.LineWidth == 0 {
		cfg.LineWidth = DefaultLineWidth
	}
	if cfg.MaxZoom == 0 {
		cfg.MaxZoom = DefaultMaxZoom
	}
	if cfg.TileCacheEntries <= 0 {
		cfg.TileCacheEntries = DefaultTileCacheEntries
	}
	if cfg.MinZoom > cfg.MaxZoom {
		return nil, fmt.Errorf("min zoom %d above max zoom %d", cfg.MinZoom, cfg.MaxZoom)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "overlay")
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}

	p := &Pipeline{
		cfg:      cfg,
		notifier: notifier,
		metrics:  cfg.Metrics,
		log:      logger,
		derived:  NewDerivedTable(),
		palette:  palette.NewHolder(nil, 1),
		tiles:    lru.New(cfg.TileCacheEntries),
	}
	p.tiles.OnEvicted = func(k lru.Key, _ interface{}) {
		p.derived.Forget(k.(types.TileKey))
	}
	return p, nil
}

// SetMarkers replaces the dataset markers and the layer opacity, and
// re-resolves the palette.
func (p *Pipeline) SetMarkers(markers []types.MarkerDefinition, opacity float64) palette.Palette {
	ms := markerSet{
		markers: append([]types.MarkerDefinition(nil), markers...),
		names:   types.MarkerNames(markers),
	}
	p.mu.Lock()
	p.markers = ms
	p.mu.Unlock()
	return p.palette.Update(ms.markers, opacity)
}

// Palette returns the current palette.
func (p *Pipeline) Palette() palette.Palette { return p.palette.Load() }

func (p *Pipeline) currentMarkers() markerSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.markers
}

// inRange reports whether key addresses a tile of the pyramid.
func (p *Pipeline) inRange(key types.TileKey) bool {
	return key.Level >= p.cfg.MinZoom && key.Level <= p.cfg.MaxZoom && key.X >= 0 && key.Y >= 0
}

// RenderTile builds the layer for one tile. A nil layer with a nil error
// means there is nothing to draw: the tile is absent, out of range, or failed
// to load (the failure has been reported to the notifier).
func (p *Pipeline) RenderTile(ctx context.Context, req Request) (*Layer, error) {
	if !p.inRange(req.Key) {
		return nil, nil
	}
	tile, err := p.tile(ctx, req.Key)
	if err != nil || tile == nil {
		return nil, err
	}

	full, err := p.derived.Bitmasks(tile)
	if err != nil {
		p.metrics.RecordTileFailure("schema")
		return nil, err
	}
	ms := p.currentMarkers()
	masks := MarkerMasks(full, EnabledBitmask(ms.names, req.Enabled))

	layer := &Layer{
		Key:     req.Key,
		Palette: p.palette.Load(),
		Extent:  p.cfg.Extent,
		MinZoom: p.cfg.MinZoom,
		MaxZoom: p.cfg.MaxZoom,
	}
	if req.Zoom >= p.cfg.PointModeZoom {
		positions, err := p.derived.Positions(tile)
		if err != nil {
			p.metrics.RecordTileFailure("schema")
			return nil, err
		}
		layer.Mode = ModePoints
		layer.Points = &PointLayer{
			Positions:      positions,
			Masks:          masks,
			Radius:         p.cfg.PointRadius,
			MinPixelRadius: p.cfg.MinPixelRadius,
		}
	} else {
		outlines, err := p.derived.Outlines(tile)
		if err != nil {
			p.metrics.RecordTileFailure("schema")
			return nil, err
		}
		layer.Mode = ModePolygons
		layer.Fill = &FillLayer{Outlines: outlines, Masks: masks}
		layer.Stroke = &StrokeLayer{
			Outlines:   outlines,
			LineColors: StrokeColors(masks, req.StrokeOpacity),
			LineWidth:  p.cfg.LineWidth,
		}
	}
	p.metrics.RecordTileRendered(string(layer.Mode))
	return layer, nil
}

// tile returns the parsed tile for key, loading it on first use. Load
// failures are reported to the notifier and yield a nil tile.
func (p *Pipeline) tile(ctx context.Context, key types.TileKey) (*Tile, error) {
	if t, ok := p.cachedTile(key); ok {
		return t, nil
	}

	payload, err := p.cfg.Store.FetchTile(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		p.log.Debug("tile not found", "tile", key)
		return nil, nil
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.fail(key, "fetch", err)
		return nil, nil
	}

	if p.cfg.Decoder != nil {
		payload, err = p.cfg.Decoder.Decode(ctx, payload)
		if err != nil {
			p.fail(key, "decode", err)
			return nil, nil
		}
	}

	t, err := ParseTile(key, payload)
	if err != nil {
		p.fail(key, "parse", err)
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// another request may have loaded the same tile meanwhile
	if existing, ok := p.tiles.Get(key); ok {
		return existing.(*Tile), nil
	}
	p.tiles.Add(key, t)
	return t, nil
}

func (p *Pipeline) cachedTile(key types.TileKey) (*Tile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.tiles.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Tile), true
}

func (p *Pipeline) fail(key types.TileKey, stage string, err error) {
	p.metrics.RecordTileFailure(stage)
	p.notifier.Emit(Notification{
		Variant: VariantError,
		Message: fmt.Sprintf("failed to load overlay tile: %v", err),
		Tile:    key.String(),
	})
}

// Pick describes feature index of a loaded tile for the enabled markers.
// ok is false when the tile is not loaded, the index is out of range, or no
// enabled marker applies to the feature.
func (p *Pipeline) Pick(key types.TileKey, index int, enabled []string) (PickInfo, bool) {
	t, ok := p.cachedTile(key)
	if !ok {
		return PickInfo{}, false
	}
	return Pick(t, index, p.currentMarkers().markers, enabled)
}

// CachedTiles returns the number of parsed tiles held by the pipeline.
func (p *Pipeline) CachedTiles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tiles.Len()
}
