package overlay

import (
	"github.com/ChuLiYu/slidetiles/internal/palette"
	"github.com/ChuLiYu/slidetiles/pkg/types"
)

// Mode selects how a tile's features are drawn.
type Mode string

const (
	ModePoints   Mode = "points"
	ModePolygons Mode = "polygons"
)

// Extent is the size of the full-resolution image in pixels.
type Extent struct {
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// PointLayer draws one circle per feature at its anchor.
type PointLayer struct {
	Positions      []float64 // interleaved x,y
	Masks          []uint32  // enabled marker mask per feature
	Radius         float64
	MinPixelRadius float64
}

// FillLayer fills each feature outline with its composited color.
type FillLayer struct {
	Outlines [][]float64
	Masks    []uint32
}

// StrokeLayer draws the outline of each feature.
type StrokeLayer struct {
	Outlines   [][]float64
	LineColors []types.RGBA
	LineWidth  float64
}

// Layer is the drawable result for one tile. Exactly one of Points or the
// Fill/Stroke pair is set, according to Mode.
type Layer struct {
	Key     types.TileKey
	Mode    Mode
	Palette palette.Palette
	Extent  Extent
	MinZoom int
	MaxZoom int

	Points *PointLayer
	Fill   *FillLayer
	Stroke *StrokeLayer
}

// Len returns the number of features in the layer.
func (l *Layer) Len() int {
	switch {
	case l == nil:
		return 0
	case l.Points != nil:
		return len(l.Points.Masks)
	case l.Fill != nil:
		return len(l.Fill.Masks)
	}
	return 0
}

// Mask returns the enabled marker mask of feature i.
func (l *Layer) Mask(i int) uint32 {
	if l.Points != nil {
		return l.Points.Masks[i]
	}
	return l.Fill.Masks[i]
}

// Color returns the composited display color of feature i. ok is false when
// the feature has no enabled marker and must not be drawn.
func (l *Layer) Color(i int) (palette.Color, bool) {
	return palette.Composite(l.Mask(i), l.Palette)
}
