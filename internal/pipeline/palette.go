package pipeline

import (
	"image/color"
	"math"
)

// Spectra 6 panel palette. Order matters: the quantizer breaks distance ties
// by taking the first entry, so this slice must stay Black, White, Yellow,
// Red, Blue, Green.
var Palette = []color.Color{
	color.RGBA{0, 0, 0, 255},       // Black
	color.RGBA{255, 255, 255, 255}, // White
	color.RGBA{255, 255, 0, 255},   // Yellow
	color.RGBA{255, 0, 0, 255},     // Red
	color.RGBA{0, 0, 255, 255},     // Blue
	color.RGBA{0, 255, 0, 255},     // Green
}

// paletteRGB is Palette as 8-bit triples, in the same order.
var paletteRGB = [6][3]uint8{
	{0, 0, 0},
	{255, 255, 255},
	{255, 255, 0},
	{255, 0, 0},
	{0, 0, 255},
	{0, 255, 0},
}

// linearTable maps 8-bit sRGB to linear light, precomputed once.
var linearTable = func() [256]float64 {
	var t [256]float64
	for i := 0; i < 256; i++ {
		c := float64(i) / 255
		if c <= 0.04045 {
			t[i] = c / 12.92
		} else {
			t[i] = math.Pow((c+0.055)/1.055, 2.4)
		}
	}
	return t
}()

// paletteLinear is the palette in linear sRGB, aligned with paletteRGB.
var paletteLinear = func() [6][3]float64 {
	var p [6][3]float64
	for i, c := range paletteRGB {
		p[i] = [3]float64{linearTable[c[0]], linearTable[c[1]], linearTable[c[2]]}
	}
	return p
}()

// nearestPaletteIndex returns the palette entry minimizing squared Euclidean
// distance in linear sRGB. Strict less-than keeps the first (lowest-index)
// entry on ties.
func nearestPaletteIndex(r, g, b uint8) int {
	lr, lg, lb := linearTable[r], linearTable[g], linearTable[b]
	best := 0
	bestDist := math.MaxFloat64
	for i, p := range paletteLinear {
		dr := lr - p[0]
		dg := lg - p[1]
		db := lb - p[2]
		d := dr*dr + dg*dg + db*db
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// IsPaletteColor reports whether an RGB triple is exactly one of the six
// panel colors.
func IsPaletteColor(r, g, b uint8) bool {
	for _, p := range paletteRGB {
		if p[0] == r && p[1] == g && p[2] == b {
			return true
		}
	}
	return false
}
