// ============================================================================
// slidetiles Overlay - columnar tiles
// ============================================================================
//
// Package: internal/overlay
// File: tile.go
// Purpose: Parse Arrow IPC tile payloads into immutable, chunked tables.
//
// Tile schema:
//   x, y            float64   feature anchor in image space
//   geom            binary    WKB polygon outline (polygon mode)
//   marker_bitmask  float32   bit i set when marker i applies to the feature
//   id              any       feature identifier reported by picking
//
// A tile is made of one or more record batches. Columns are read chunk by
// chunk; they are never combined into one contiguous array.
//
// ============================================================================

package overlay

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ChuLiYu/slidetiles/pkg/types"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Column names of the tile schema.
const (
	ColumnX        = "x"
	ColumnY        = "y"
	ColumnGeometry = "geom"
	ColumnBitmask  = "marker_bitmask"
	ColumnID       = "id"
)

var (
	// ErrMissingColumn is returned when a tile lacks a column the requested
	// rendering needs. It is a schema contract violation, not missing data.
	ErrMissingColumn = fmt.Errorf("%w: missing column", types.ErrInvalidInput)
	// ErrColumnType is returned when a column has an unexpected Arrow type.
	ErrColumnType = fmt.Errorf("%w: unexpected column type", types.ErrInvalidInput)
)

// Tile is a parsed overlay tile. It is immutable after ParseTile returns and
// may be read from several goroutines.
type Tile struct {
	Key     types.TileKey
	schema  *arrow.Schema
	records []arrow.Record
	rows    int
}

// ParseTile decodes an Arrow IPC stream into a Tile.
func ParseTile(key types.TileKey, payload []byte) (*Tile, error) {
	rdr, err := ipc.NewReader(bytes.NewReader(payload), ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("failed to open tile %s: %w", key, err)
	}
	defer rdr.Release()

	t := &Tile{Key: key, schema: rdr.Schema()}
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		t.records = append(t.records, rec)
		t.rows += int(rec.NumRows())
	}
	if err := rdr.Err(); err != nil {
		t.Release()
		return nil, fmt.Errorf("failed to read tile %s: %w", key, err)
	}
	return t, nil
}

// NumRows returns the number of features in the tile.
func (t *Tile) NumRows() int { return t.rows }

// NumChunks returns the number of record batches.
func (t *Tile) NumChunks() int { return len(t.records) }

// HasColumn reports whether the tile schema has a column called name.
func (t *Tile) HasColumn(name string) bool {
	return len(t.schema.FieldIndices(name)) > 0
}

// Release drops the tile's reference to its record batches.
func (t *Tile) Release() {
	for _, rec := range t.records {
		rec.Release()
	}
	t.records = nil
}

// chunks returns the chunks of column name, one per record batch.
func (t *Tile) chunks(name string) ([]arrow.Array, error) {
	idx := t.schema.FieldIndices(name)
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w %q in tile %s", ErrMissingColumn, name, t.Key)
	}
	out := make([]arrow.Array, len(t.records))
	for i, rec := range t.records {
		out[i] = rec.Column(idx[0])
	}
	return out, nil
}

// locate maps a tile-wide row index to a record batch and a row inside it.
func (t *Tile) locate(row int) (chunk, local int, ok bool) {
	if row < 0 {
		return 0, 0, false
	}
	for i, rec := range t.records {
		n := int(rec.NumRows())
		if row < n {
			return i, row, true
		}
		row -= n
	}
	return 0, 0, false
}

// float64Values accepts the float columns a producer may reasonably write.
func float64Values(name string, arr arrow.Array) ([]float64, error) {
	switch a := arr.(type) {
	case *array.Float64:
		return a.Float64Values(), nil
	case *array.Float32:
		vals := a.Float32Values()
		out := make([]float64, len(vals))
		for i, v := range vals {
			out[i] = float64(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: column %q is %s", ErrColumnType, name, arr.DataType())
}

// ============================================================================
// Encoding
// ============================================================================

// Feature is one row of a tile being written.
type Feature struct {
	ID      int64
	X, Y    float64
	Outline []float64 // flat [x0,y0,x1,y1,...] outer ring, optional
	Bitmask uint32
}

// EncodeOptions controls EncodeTile.
type EncodeOptions struct {
	ChunkSize int      // rows per record batch, all rows in one batch when zero
	Omit      []string // columns left out of the schema
}

// EncodeTile writes features as an Arrow IPC stream in the tile schema.
func EncodeTile(features []Feature, opts EncodeOptions) ([]byte, error) {
	omit := make(map[string]bool, len(opts.Omit))
	for _, c := range opts.Omit {
		omit[c] = true
	}
	all := []arrow.Field{
		{Name: ColumnID, Type: arrow.PrimitiveTypes.Int64},
		{Name: ColumnX, Type: arrow.PrimitiveTypes.Float64},
		{Name: ColumnY, Type: arrow.PrimitiveTypes.Float64},
		{Name: ColumnGeometry, Type: arrow.BinaryTypes.Binary, Nullable: true},
		{Name: ColumnBitmask, Type: arrow.PrimitiveTypes.Float32},
	}
	var fields []arrow.Field
	for _, f := range all {
		if !omit[f.Name] {
			fields = append(fields, f)
		}
	}
	schema := arrow.NewSchema(fields, nil)
	mem := memory.NewGoAllocator()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithAllocator(mem))

	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = len(features)
	}
	for start := 0; ; start += chunk {
		end := min(start+chunk, len(features))
		rec, err := buildRecord(mem, schema, features[start:end])
		if err != nil {
			return nil, err
		}
		err = w.Write(rec)
		rec.Release()
		if err != nil {
			return nil, fmt.Errorf("failed to write record batch: %w", err)
		}
		if end == len(features) {
			break
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildRecord(mem memory.Allocator, schema *arrow.Schema, features []Feature) (arrow.Record, error) {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for i, field := range schema.Fields() {
		fb := b.Field(i)
		for _, f := range features {
			switch field.Name {
			case ColumnID:
				fb.(*array.Int64Builder).Append(f.ID)
			case ColumnX:
				fb.(*array.Float64Builder).Append(f.X)
			case ColumnY:
				fb.(*array.Float64Builder).Append(f.Y)
			case ColumnBitmask:
				fb.(*array.Float32Builder).Append(float32(f.Bitmask))
			case ColumnGeometry:
				if len(f.Outline) == 0 {
					fb.(*array.BinaryBuilder).AppendNull()
					continue
				}
				wkb, err := encodeOutline(f.Outline)
				if err != nil {
					return nil, err
				}
				fb.(*array.BinaryBuilder).Append(wkb)
			default:
				return nil, errors.New("unknown tile column " + field.Name)
			}
		}
	}
	return b.NewRecord(), nil
}
