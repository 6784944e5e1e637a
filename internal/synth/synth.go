// Package synth builds synthetic frames for benchmarks, demos and tests.
package synth

import (
	"math"

	"github.com/valyala/fastrand"

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
)

// Blob describes a Gaussian spot to render into a frame.
type Blob struct {
	X     float64 // Centre column (sub-pixel)
	Y     float64 // Centre row (sub-pixel)
	Sigma float64 // Gaussian width in pixels
	Peak  float64 // Peak intensity above background
}

// Uniform returns a frame with every pixel set to v.
func Uniform(width, height int, v uint16) *detection.Frame {
	pix := make([]uint16, width*height)
	if v != 0 {
		for i := range pix {
			pix[i] = v
		}
	}
	return &detection.Frame{Width: width, Height: height, Pix: pix}
}

// Blobs renders Gaussian blobs on a constant background. Each blob is drawn
// within 4 sigma of its centre and values saturate at 65535.
func Blobs(width, height int, background uint16, blobs []Blob) *detection.Frame {
	f := Uniform(width, height, background)
	for _, b := range blobs {
		reach := int(math.Ceil(4 * b.Sigma))
		x0, x1 := max(int(b.X)-reach, 0), min(int(b.X)+reach, width-1)
		y0, y1 := max(int(b.Y)-reach, 0), min(int(b.Y)+reach, height-1)
		twoSigma2 := 2 * b.Sigma * b.Sigma
		for y := y0; y <= y1; y++ {
			for x := x0; x <= x1; x++ {
				dx, dy := float64(x)-b.X, float64(y)-b.Y
				add := b.Peak * math.Exp(-(dx*dx+dy*dy)/twoSigma2)
				i := y*width + x
				f.Pix[i] = saturate(float64(f.Pix[i]) + add)
			}
		}
	}
	return f
}

// Grid places single-pixel maxima of value v every spacing pixels, starting
// at spacing/2 on both axes. It returns the frame and the number of maxima.
func Grid(width, height, spacing int, v uint16) (*detection.Frame, int) {
	f := Uniform(width, height, 0)
	n := 0
	for y := spacing / 2; y < height; y += spacing {
		for x := spacing / 2; x < width; x += spacing {
			f.Pix[y*width+x] = v
			n++
		}
	}
	return f, n
}

// AddNoise adds uniform noise in [0, amplitude) to every pixel of f in place.
// The generator is not seeded, so output differs between runs; use it for
// benchmarks and demos, not golden tests.
func AddNoise(f *detection.Frame, amplitude uint32) {
	if amplitude == 0 {
		return
	}
	var rng fastrand.RNG
	for i, v := range f.Pix {
		f.Pix[i] = saturate(float64(v) + float64(rng.Uint32n(amplitude)))
	}
}

func saturate(v float64) uint16 {
	if v >= math.MaxUint16 {
		return math.MaxUint16
	}
	if v <= 0 {
		return 0
	}
	return uint16(math.Round(v))
}
