package overlay

import (
	"math"

	"github.com/ChuLiYu/slidetiles/internal/palette"
	"github.com/ChuLiYu/slidetiles/pkg/types"
)

// EnabledBitmask returns the mask with bit i set for every enabled marker
// whose first position in known is i. Markers past the 32nd cannot be
// represented and are ignored.
func EnabledBitmask(known []string, enabled []string) uint32 {
	ordinals := markerOrdinals(known)
	var mask uint32
	for _, name := range enabled {
		if i, ok := ordinals[name]; ok && i < palette.MaxMarkers {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// markerOrdinals maps each marker name to its first index in known.
func markerOrdinals(known []string) map[string]int {
	ordinals := make(map[string]int, len(known))
	for i, name := range known {
		if _, dup := ordinals[name]; !dup {
			ordinals[name] = i
		}
	}
	return ordinals
}

// FeatureMask converts a stored bitmask value to its integer form. Masks
// above 0xFFFFFF7F round up to 2^32 as float32 and saturate to all 32 bits.
func FeatureMask(v float32) uint32 {
	if v <= 0 {
		return 0
	}
	if v >= 1<<32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// MarkerMasks intersects every feature's full bitmask with enabled. The
// result is index-aligned with full; full is never modified.
func MarkerMasks(full []float32, enabled uint32) []uint32 {
	out := make([]uint32, len(full))
	for i, v := range full {
		out[i] = FeatureMask(v) & enabled
	}
	return out
}

// StrokeColors returns the outline color of each feature: transparent when
// strokeOpacity is zero or the feature has no enabled marker, white otherwise.
func StrokeColors(masks []uint32, strokeOpacity float64) []types.RGBA {
	out := make([]types.RGBA, len(masks))
	if strokeOpacity == 0 {
		return out
	}
	for i, m := range masks {
		if m != 0 {
			out[i] = types.White
		}
	}
	return out
}
