package imaging

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// DefaultMarkerColor is the marker colour used when none is given.
const DefaultMarkerColor = "#00FF00"

// Colour ramp endpoints for brightness-coded markers (dim → bright).
var (
	rampDim    = colorful.Color{R: 0.15, G: 0.35, B: 1.0}
	rampBright = colorful.Color{R: 1.0, G: 0.2, B: 0.1}
)

// ParseMarkerColor parses a hex colour string such as "#FF0000" or "#f00".
func ParseMarkerColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid marker colour %q: %w", hex, err)
	}
	return toRGBA(c), nil
}

// MarkerPalette returns n visually distinct colours with evenly spaced hues
// at constant chroma and lightness. The palette is deterministic.
func MarkerPalette(n int) []color.RGBA {
	palette := make([]color.RGBA, n)
	for i := range palette {
		h := 360 * float64(i) / float64(max(n, 1))
		palette[i] = toRGBA(colorful.Hcl(h, 0.6, 0.7).Clamped())
	}
	return palette
}

// RampColor maps t in [0,1] onto the dim-to-bright marker ramp, blending in
// HCL space so the ramp stays perceptually even.
func RampColor(t float64) color.RGBA {
	t = min(max(t, 0), 1)
	return toRGBA(rampDim.BlendHcl(rampBright, t).Clamped())
}

// ColorHex formats a colour as "#RRGGBB".
func ColorHex(c color.RGBA) string {
	return colorful.Color{
		R: float64(c.R) / 255,
		G: float64(c.G) / 255,
		B: float64(c.B) / 255,
	}.Hex()
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
