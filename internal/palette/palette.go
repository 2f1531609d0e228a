// ============================================================================
// slidetiles Palette - marker to color slot mapping
// ============================================================================
//
// Package: internal/palette
// File: palette.go
// Purpose: Map an ordered, unbounded list of named markers onto the 8 color
// slots the GPU layer exposes, and compose a feature color from its mask.
//
// Two-level mapping:
//   marker index i  ──►  bit i of a 32-bit feature mask      (i < 32)
//   bit i           ──►  slot i % 8 of the palette
//
// Slot collisions (markers 0, 8, 16, 24 all land on slot 0) are resolved
// last-writer-wins: the highest marker index present decides the slot color.
// This is a business rule, covered by tests.
//
// ============================================================================

package palette

import (
	"sync/atomic"

	"github.com/ChuLiYu/slidetiles/pkg/types"
)

// Slots is the number of physical color channels.
const Slots = 8

// MaxMarkers is the number of logical markers a feature mask can carry.
const MaxMarkers = 32

// Palette is the uniform block handed to the GPU layer: 8 colors and one
// layer opacity. A Palette is immutable once resolved.
type Palette struct {
	Colors  [Slots]types.RGBA
	Opacity float64
}

// SlotOf returns the color slot marker index i is drawn with.
func SlotOf(i int) int { return i % Slots }

// Resolve computes the palette for markers. For slot s, markers s, s+8,
// s+16, ... are scanned in ascending order and the last one found wins. Empty
// slots are transparent black. Contributing colors are always fully opaque;
// only their RGB channels are taken from the marker.
func Resolve(markers []types.MarkerDefinition, opacity float64) Palette {
	p := Palette{Opacity: opacity}
	for s := 0; s < Slots; s++ {
		for i := s; i < len(markers); i += Slots {
			c := markers[i].Color
			p.Colors[s] = types.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
		}
	}
	return p
}

// Holder publishes the current palette. Readers always observe a whole
// palette, never one being rebuilt.
type Holder struct {
	current atomic.Pointer[Palette]
}

// NewHolder returns a holder with the palette of markers at opacity.
func NewHolder(markers []types.MarkerDefinition, opacity float64) *Holder {
	h := &Holder{}
	h.Update(markers, opacity)
	return h
}

// Load returns the current palette.
func (h *Holder) Load() Palette {
	if p := h.current.Load(); p != nil {
		return *p
	}
	return Palette{}
}

// Store replaces the current palette wholesale.
func (h *Holder) Store(p Palette) {
	h.current.Store(&p)
}

// Update re-resolves the palette after the marker set, a marker color or the
// opacity changed.
func (h *Holder) Update(markers []types.MarkerDefinition, opacity float64) Palette {
	p := Resolve(markers, opacity)
	h.Store(p)
	return p
}
