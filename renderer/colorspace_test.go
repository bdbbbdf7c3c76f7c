package renderer

import (
	"math"
	"testing"
)

func TestReconstructNeutralChroma(t *testing.T) {
	// With both chroma channels at the bias, the output is pure luma.
	for _, y := range []float32{0, 0.25, 0.5, 1} {
		r, g, b := ReconstructColor(y, ChromaBias, ChromaBias)
		if r != y || g != y || b != y {
			t.Errorf("ReconstructColor(%v, bias, bias) = (%v, %v, %v), want all %v", y, r, g, b, y)
		}
	}
}

func TestEncodeReconstructRoundTrip(t *testing.T) {
	colors := [][3]float32{
		{0, 0, 0},
		{1, 1, 1},
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0.843, 0.243, 0.404}, // palette entry 0
		{0.3, 0.6, 0.9},
	}
	for _, c := range colors {
		y, cb, cr := EncodeColor(c[0], c[1], c[2])
		r, g, b := ReconstructColor(y, cb, cr)
		if !closeTo(r, c[0]) || !closeTo(g, c[1]) || !closeTo(b, c[2]) {
			t.Errorf("round trip of (%v, %v, %v) = (%v, %v, %v)", c[0], c[1], c[2], r, g, b)
		}
	}
}

func TestEncodeGrayIsNeutral(t *testing.T) {
	y, cb, cr := EncodeColor(0.5, 0.5, 0.5)
	if !closeTo(y, 0.5) {
		t.Errorf("luma = %v, want 0.5", y)
	}
	if !closeTo(cb, ChromaBias) || !closeTo(cr, ChromaBias) {
		t.Errorf("chroma = (%v, %v), want bias (%v)", cb, cr, float32(ChromaBias))
	}
}

func TestPaletteColor(t *testing.T) {
	c := PaletteColor(0)
	want := [4]float32{215.0 / 255, 62.0 / 255, 103.0 / 255, 1}
	if c != want {
		t.Errorf("PaletteColor(0) = %v, want %v", c, want)
	}
	if a := PaletteColor(3); a[3] != 1 {
		t.Errorf("alpha = %v, want 1", a[3])
	}
}

func TestPaletteWraps(t *testing.T) {
	for id := uint32(0); id < PaletteSize; id++ {
		if PaletteColor(id) != PaletteColor(id+PaletteSize) {
			t.Errorf("id %d and %d map to different colors", id, id+PaletteSize)
		}
	}
}

func TestPaletteEntriesDistinct(t *testing.T) {
	seen := make(map[[4]float32]uint32)
	for id := uint32(0); id < PaletteSize; id++ {
		c := PaletteColor(id)
		if prev, dup := seen[c]; dup {
			t.Errorf("ids %d and %d share color %v", prev, id, c)
		}
		seen[c] = id
	}
}

func closeTo(got, want float32) bool {
	return math.Abs(float64(got-want)) <= 1e-3
}
