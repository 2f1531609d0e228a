package palette

import "math/bits"

// Color is a normalized RGBA color with channels in [0,1].
type Color struct {
	R, G, B, A float64
}

// Composite returns the displayed color of a feature with mask. A zero mask
// means the feature is not drawn at all and ok is false. Otherwise the RGB of
// slot i%8 is added once per set bit i (duplicates included), the sum is
// clamped to [0,1] and alpha is the palette opacity.
func Composite(mask uint32, p Palette) (c Color, ok bool) {
	if mask == 0 {
		return Color{}, false
	}
	for m := mask; m != 0; m &= m - 1 {
		slot := p.Colors[SlotOf(bits.TrailingZeros32(m))]
		c.R += float64(slot.R) / 255
		c.G += float64(slot.G) / 255
		c.B += float64(slot.B) / 255
	}
	c.R, c.G, c.B = clamp01(c.R), clamp01(c.G), clamp01(c.B)
	c.A = p.Opacity
	return c, true
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
