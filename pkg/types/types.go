// Package types defines the core domain model shared across slidetiles:
// decode jobs flowing through the worker pool, marker definitions supplied per
// dataset, and the keys that identify overlay tiles.
package types

import (
	"errors"
	"fmt"
)

// JobID identifies one decode job. It is opaque to the scheduler.
type JobID string

// CodecID names a block decode routine ("lzw", "jp2k").
type CodecID string

const (
	CodecLZW      CodecID = "lzw"
	CodecJPEG2000 CodecID = "jp2k"
)

// ============================================================================
// Error kinds
// ============================================================================

var (
	// ErrInvalidInput covers empty decode input and tiles missing a required column.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDecodeFailure is returned when a codec cannot decode a block.
	ErrDecodeFailure = errors.New("decode failure")
	// ErrFetchFailure is returned when a tile cannot be fetched from storage.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrCancelled resolves every pending future once the pool shuts down.
	ErrCancelled = errors.New("job cancelled")
)

// DecodeError records which stage of a decode failed.
type DecodeError struct {
	Op    string  // operation that failed, e.g. "decode lzw block"
	Codec CodecID // codec in use
	Err   error   // underlying error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s (codec %s): %v", e.Op, e.Codec, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDecodeFailure) match every DecodeError whose cause
// is not already one of the other error kinds.
func (e *DecodeError) Is(target error) bool {
	if target != ErrDecodeFailure {
		return false
	}
	return !errors.Is(e.Err, ErrInvalidInput) && !errors.Is(e.Err, ErrCancelled)
}

// ============================================================================
// Decode jobs
// ============================================================================

// DecodeJob is one unit of block decode work. The submitter owns Input until
// it hands the job to the pool; after that the pool and its worker own it.
type DecodeJob struct {
	ID            JobID   `json:"id"`
	Input         []byte  `json:"-"`
	MaxOutputSize int     `json:"max_output_size"`
	Codec         CodecID `json:"codec"`
}

// DecodeResult carries the decoded bytes of a job back to its submitter.
type DecodeResult struct {
	JobID  JobID
	Output []byte
}

// ============================================================================
// Markers
// ============================================================================

// RGBA is an 8-bit per channel color.
type RGBA struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
	A uint8 `json:"a" yaml:"a"`
}

// Transparent is fully transparent black.
var Transparent = RGBA{}

// White is opaque white, the visible stroke color.
var White = RGBA{R: 255, G: 255, B: 255, A: 255}

// MarkerDefinition is a named marker and its display color. Marker order in a
// dataset is significant: the index of a marker is its bit in a feature bitmask.
type MarkerDefinition struct {
	Name  string `json:"name" yaml:"name"`
	Color RGBA   `json:"color" yaml:"color"`
}

// MarkerNames returns the names of markers in order.
func MarkerNames(markers []MarkerDefinition) []string {
	names := make([]string, len(markers))
	for i, m := range markers {
		names[i] = m.Name
	}
	return names
}

// ============================================================================
// Tiles
// ============================================================================

// TileKey addresses one overlay tile in the image pyramid.
type TileKey struct {
	Level int `json:"level"`
	X     int `json:"x"`
	Y     int `json:"y"`
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Level, k.X, k.Y)
}
