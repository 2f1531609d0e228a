// Package raster draws overlay layers on the CPU, for previews and for
// checking a tile's output without a GPU host.
package raster

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/ChuLiYu/slidetiles/internal/overlay"
	"github.com/ChuLiYu/slidetiles/internal/palette"
	"github.com/gogpu/gg"
)

// ErrEmptyCanvas is returned for a non-positive output size.
var ErrEmptyCanvas = errors.New("raster: canvas has no pixels")

// transform maps image-space coordinates to canvas pixels.
type transform struct {
	minX, minY float64
	scale      float64
}

func (t transform) apply(x, y float64) (float64, float64) {
	return (x - t.minX) * t.scale, (y - t.minY) * t.scale
}

// fit returns the transform that shows the layer's image extent on a
// width x height canvas. Without an extent, the bounds of the features are
// used instead.
func fit(layer *overlay.Layer, width, height int) transform {
	minX, minY := 0.0, 0.0
	w, h := layer.Extent.Width, layer.Extent.Height
	if w <= 0 || h <= 0 {
		var maxX, maxY float64
		minX, minY, maxX, maxY = bounds(layer)
		w, h = maxX-minX, maxY-minY
	}
	if w <= 0 || h <= 0 {
		return transform{minX: minX, minY: minY, scale: 1}
	}
	return transform{minX: minX, minY: minY, scale: math.Min(float64(width)/w, float64(height)/h)}
}

func bounds(layer *overlay.Layer) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	visit := func(flat []float64) {
		for i := 0; i+1 < len(flat); i += 2 {
			minX, maxX = math.Min(minX, flat[i]), math.Max(maxX, flat[i])
			minY, maxY = math.Min(minY, flat[i+1]), math.Max(maxY, flat[i+1])
		}
	}
	if layer.Points != nil {
		visit(layer.Points.Positions)
	}
	if layer.Fill != nil {
		for _, o := range layer.Fill.Outlines {
			visit(o)
		}
	}
	if math.IsInf(minX, 1) {
		return 0, 0, 0, 0
	}
	return minX, minY, maxX, maxY
}

// Render draws layer on a transparent width x height canvas. Features whose
// composited color is discarded are not drawn.
func Render(layer *overlay.Layer, width, height int) (image.Image, error) {
	dc, err := draw(layer, width, height)
	if err != nil {
		return nil, err
	}
	defer dc.Close()
	return dc.Image(), nil
}

// EncodePNG renders layer and writes it to w as PNG.
func EncodePNG(w io.Writer, layer *overlay.Layer, width, height int) error {
	dc, err := draw(layer, width, height)
	if err != nil {
		return err
	}
	defer dc.Close()
	return dc.EncodePNG(w)
}

func draw(layer *overlay.Layer, width, height int) (*gg.Context, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyCanvas
	}
	dc := gg.NewContext(width, height)
	dc.Clear()
	if layer == nil {
		return dc, nil
	}

	tf := fit(layer, width, height)
	var err error
	switch layer.Mode {
	case overlay.ModePoints:
		err = drawPoints(dc, layer, tf)
	case overlay.ModePolygons:
		err = drawPolygons(dc, layer, tf)
	default:
		err = fmt.Errorf("raster: unknown layer mode %q", layer.Mode)
	}
	if err != nil {
		dc.Close()
		return nil, err
	}
	return dc, nil
}

func setColor(dc *gg.Context, c palette.Color) {
	dc.SetRGBA(c.R, c.G, c.B, c.A)
}

func drawPoints(dc *gg.Context, layer *overlay.Layer, tf transform) error {
	pts := layer.Points
	radius := math.Max(pts.Radius*tf.scale, pts.MinPixelRadius)
	for i := range pts.Masks {
		c, ok := layer.Color(i)
		if !ok {
			continue
		}
		x, y := tf.apply(pts.Positions[2*i], pts.Positions[2*i+1])
		setColor(dc, c)
		dc.DrawCircle(x, y, radius)
		if err := dc.Fill(); err != nil {
			return fmt.Errorf("raster: fill point %d: %w", i, err)
		}
	}
	return nil
}

func tracePolygon(dc *gg.Context, flat []float64, tf transform) bool {
	if len(flat) < 6 {
		return false
	}
	dc.MoveTo(tf.apply(flat[0], flat[1]))
	for j := 2; j+1 < len(flat); j += 2 {
		dc.LineTo(tf.apply(flat[j], flat[j+1]))
	}
	dc.ClosePath()
	return true
}

func drawPolygons(dc *gg.Context, layer *overlay.Layer, tf transform) error {
	fill, stroke := layer.Fill, layer.Stroke
	for i, outline := range fill.Outlines {
		c, ok := layer.Color(i)
		if !ok || !tracePolygon(dc, outline, tf) {
			continue
		}
		setColor(dc, c)
		if err := dc.Fill(); err != nil {
			return fmt.Errorf("raster: fill polygon %d: %w", i, err)
		}
	}
	if stroke == nil {
		return nil
	}
	dc.SetLineWidth(stroke.LineWidth)
	for i, outline := range stroke.Outlines {
		lc := stroke.LineColors[i]
		if lc.A == 0 || !tracePolygon(dc, outline, tf) {
			continue
		}
		dc.SetRGBA(float64(lc.R)/255, float64(lc.G)/255, float64(lc.B)/255, float64(lc.A)/255)
		if err := dc.Stroke(); err != nil {
			return fmt.Errorf("raster: stroke polygon %d: %w", i, err)
		}
	}
	return nil
}
