package overlay

import (
	"fmt"
	"sync"

	"github.com/ChuLiYu/slidetiles/pkg/types"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// derived holds the flattened columns of one tile. Each field is computed at
// most once.
type derived struct {
	positionsOnce sync.Once
	positions     []float64
	positionsErr  error

	bitmasksOnce sync.Once
	bitmasks     []float32
	bitmasksErr  error

	outlinesOnce sync.Once
	outlines     [][]float64
	outlinesErr  error
}

// DerivedTable memoizes per-tile arrays derived from Arrow columns. Entries
// are keyed by tile and live until Forget, since tiles never change after
// they are parsed.
type DerivedTable struct {
	mu      sync.Mutex
	entries map[types.TileKey]*derived
}

// NewDerivedTable returns an empty table.
func NewDerivedTable() *DerivedTable {
	return &DerivedTable{entries: make(map[types.TileKey]*derived)}
}

func (d *DerivedTable) entry(key types.TileKey) *derived {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key]
	if !ok {
		e = &derived{}
		d.entries[key] = e
	}
	return e
}

// Forget drops the derived arrays of key.
func (d *DerivedTable) Forget(key types.TileKey) {
	d.mu.Lock()
	delete(d.entries, key)
	d.mu.Unlock()
}

// Len returns the number of tiles with derived data.
func (d *DerivedTable) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Positions returns the interleaved [x0,y0,x1,y1,...] anchors of t.
func (d *DerivedTable) Positions(t *Tile) ([]float64, error) {
	e := d.entry(t.Key)
	e.positionsOnce.Do(func() {
		e.positions, e.positionsErr = flattenPositions(t)
	})
	return e.positions, e.positionsErr
}

// Bitmasks returns the full marker bitmask of every feature of t.
func (d *DerivedTable) Bitmasks(t *Tile) ([]float32, error) {
	e := d.entry(t.Key)
	e.bitmasksOnce.Do(func() {
		e.bitmasks, e.bitmasksErr = flattenBitmasks(t)
	})
	return e.bitmasks, e.bitmasksErr
}

// Outlines returns the flat outer ring of every feature of t.
func (d *DerivedTable) Outlines(t *Tile) ([][]float64, error) {
	e := d.entry(t.Key)
	e.outlinesOnce.Do(func() {
		e.outlines, e.outlinesErr = flattenOutlines(t)
	})
	return e.outlines, e.outlinesErr
}

func flattenPositions(t *Tile) ([]float64, error) {
	xs, err := t.chunks(ColumnX)
	if err != nil {
		return nil, err
	}
	ys, err := t.chunks(ColumnY)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, 2*t.NumRows())
	for i := range xs {
		x, err := float64Values(ColumnX, xs[i])
		if err != nil {
			return nil, err
		}
		y, err := float64Values(ColumnY, ys[i])
		if err != nil {
			return nil, err
		}
		for j := range x {
			out = append(out, x[j], y[j])
		}
	}
	return out, nil
}

func flattenBitmasks(t *Tile) ([]float32, error) {
	chunks, err := t.chunks(ColumnBitmask)
	if err != nil {
		return nil, err
	}
	out := make([]float32, 0, t.NumRows())
	for _, c := range chunks {
		switch a := c.(type) {
		case *array.Float32:
			out = append(out, a.Float32Values()...)
		case *array.Uint32:
			for _, v := range a.Uint32Values() {
				out = append(out, float32(v))
			}
		default:
			return nil, fmt.Errorf("%w: column %q is %s", ErrColumnType, ColumnBitmask, c.DataType())
		}
	}
	return out, nil
}

func flattenOutlines(t *Tile) ([][]float64, error) {
	chunks, err := t.chunks(ColumnGeometry)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, 0, t.NumRows())
	for _, c := range chunks {
		bin, ok := c.(binaryValues)
		if !ok {
			return nil, fmt.Errorf("%w: column %q is %s", ErrColumnType, ColumnGeometry, c.DataType())
		}
		for i := 0; i < c.Len(); i++ {
			if bin.IsNull(i) {
				out = append(out, nil)
				continue
			}
			out = append(out, decodeOutline(bin.Value(i)))
		}
	}
	return out, nil
}

// bitmaskAt returns the integer bitmask of one row of a bitmask chunk.
func bitmaskAt(arr arrow.Array, row int) (uint32, error) {
	switch a := arr.(type) {
	case *array.Float32:
		return FeatureMask(a.Value(row)), nil
	case *array.Uint32:
		return a.Value(row), nil
	}
	return 0, fmt.Errorf("%w: column %q is %s", ErrColumnType, ColumnBitmask, arr.DataType())
}
