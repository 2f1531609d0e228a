package palette

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ChuLiYu/slidetiles/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marker(i int, c types.RGBA) types.MarkerDefinition {
	return types.MarkerDefinition{Name: fmt.Sprintf("m%d", i), Color: c}
}

// markers returns n markers, each with a distinct red channel equal to its index.
func markers(n int) []types.MarkerDefinition {
	out := make([]types.MarkerDefinition, n)
	for i := range out {
		out[i] = marker(i, types.RGBA{R: uint8(i), G: 10, B: 20, A: 7})
	}
	return out
}

func TestResolveNoMarkers(t *testing.T) {
	p := Resolve(nil, 0.4)
	for s, c := range p.Colors {
		assert.Equal(t, types.Transparent, c, "slot %d", s)
	}
	assert.Equal(t, 0.4, p.Opacity)
}

func TestResolveLastWriterWins(t *testing.T) {
	ms := markers(17)
	ms[0].Color = types.RGBA{R: 1}
	ms[8].Color = types.RGBA{G: 2}
	ms[16].Color = types.RGBA{B: 3}

	p := Resolve(ms, 1)
	assert.Equal(t, types.RGBA{B: 3, A: 255}, p.Colors[0], "index 16 overrides 0 and 8")
}

func TestResolveSlotCycling(t *testing.T) {
	ms := make([]types.MarkerDefinition, 10)
	ms[9] = marker(9, types.RGBA{R: 200, G: 100, B: 50})

	p := Resolve(ms, 1)
	assert.Equal(t, types.RGBA{R: 200, G: 100, B: 50, A: 255}, p.Colors[1])
	// markers 0..8 are zero-valued but still contribute, with alpha forced opaque
	assert.Equal(t, types.RGBA{A: 255}, p.Colors[0])
}

func TestResolveForcesOpaqueAlpha(t *testing.T) {
	p := Resolve([]types.MarkerDefinition{marker(0, types.RGBA{R: 9, G: 8, B: 7, A: 0})}, 0.5)
	assert.Equal(t, types.RGBA{R: 9, G: 8, B: 7, A: 255}, p.Colors[0])
	for s := 1; s < Slots; s++ {
		assert.Equal(t, types.Transparent, p.Colors[s])
	}
}

func TestResolveThirtyTwoMarkers(t *testing.T) {
	p := Resolve(markers(32), 1)
	for s := 0; s < Slots; s++ {
		assert.Equal(t, uint8(24+s), p.Colors[s].R, "slot %d takes marker %d", s, 24+s)
	}
}

func TestSlotOf(t *testing.T) {
	assert.Equal(t, 0, SlotOf(0))
	assert.Equal(t, 1, SlotOf(9))
	assert.Equal(t, 7, SlotOf(31))
}

// ============================================================================
// Compositor
// ============================================================================

func testPalette() Palette {
	var p Palette
	p.Colors[0] = types.RGBA{R: 102, A: 255}
	p.Colors[1] = types.RGBA{G: 51, A: 255}
	p.Colors[2] = types.RGBA{R: 200, B: 255, A: 255}
	p.Opacity = 0.75
	return p
}

func TestCompositeZeroMaskDiscarded(t *testing.T) {
	_, ok := Composite(0, testPalette())
	assert.False(t, ok)

	var full Palette
	for i := range full.Colors {
		full.Colors[i] = types.White
	}
	_, ok = Composite(0, full)
	assert.False(t, ok, "mask 0 is discarded regardless of palette")
}

func TestCompositeSingleBit(t *testing.T) {
	c, ok := Composite(1<<1, testPalette())
	require.True(t, ok)
	assert.InDelta(t, 0, c.R, 1e-9)
	assert.InDelta(t, 0.2, c.G, 1e-9)
	assert.InDelta(t, 0, c.B, 1e-9)
	assert.Equal(t, 0.75, c.A)
}

func TestCompositeSameSlotTwiceIsAdditive(t *testing.T) {
	c, ok := Composite(1<<0|1<<8, testPalette())
	require.True(t, ok)
	assert.InDelta(t, 2*102.0/255, c.R, 1e-9, "slot 0 contributes once per set bit")
}

func TestCompositeClamps(t *testing.T) {
	c, ok := Composite(1<<2|1<<10|1<<18, testPalette())
	require.True(t, ok)
	assert.Equal(t, 1.0, c.R)
	assert.Equal(t, 1.0, c.B)
	assert.Equal(t, 0.0, c.G)
}

func TestCompositeIsOrderIndependent(t *testing.T) {
	p := Resolve(markers(32), 1)
	a, _ := Composite(0xF0F0F0F0, p)
	b, _ := Composite(0xF0F0F0F0, Resolve(markers(32), 1))
	assert.Equal(t, a, b)
}

func TestCompositeHighBitsUseCycledSlots(t *testing.T) {
	p := testPalette()
	hi, _ := Composite(1<<25, p) // slot 1
	lo, _ := Composite(1<<1, p)
	assert.Equal(t, lo, hi)
}

// ============================================================================
// Holder
// ============================================================================

func TestHolderUpdate(t *testing.T) {
	h := NewHolder(nil, 0.3)
	assert.Equal(t, 0.3, h.Load().Opacity)

	p := h.Update([]types.MarkerDefinition{marker(0, types.RGBA{R: 5})}, 0.9)
	assert.Equal(t, p, h.Load())
	assert.Equal(t, uint8(5), h.Load().Colors[0].R)

	var zero Holder
	assert.Equal(t, Palette{}, zero.Load())
}

func TestHolderConcurrentReadersSeeWholePalettes(t *testing.T) {
	red := make([]types.MarkerDefinition, Slots)
	blue := make([]types.MarkerDefinition, Slots)
	for i := range red {
		red[i] = marker(i, types.RGBA{R: 255})
		blue[i] = marker(i, types.RGBA{B: 255})
	}
	h := NewHolder(red, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				h.Update(blue, 1)
			} else {
				h.Update(red, 1)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			p := h.Load()
			first := p.Colors[0]
			for _, c := range p.Colors {
				assert.Equal(t, first, c)
			}
		}
	}()
	wg.Wait()
}
