package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
)

// Zoom step limits, matching the camera view's integer zoom range.
const (
	MinZoomStep = -8
	MaxZoomStep = 8
)

// OverlayOptions controls how detections are drawn over a frame.
type OverlayOptions struct {
	// Zoom is an integer zoom step: 0 = 1×, n > 0 = (n+1)×, n < 0 = 1/(1-n)×.
	Zoom int `json:"zoom"`

	// DisplayMin and DisplayMax set the intensity range mapped to black and
	// white. When both are zero the frame's own min and max are used.
	DisplayMin int `json:"display_min"`
	DisplayMax int `json:"display_max"`

	// Marker is "cross" (default) or "circle".
	Marker string `json:"marker"`

	// MarkerSize is the marker half-width in output pixels. Default 4.
	MarkerSize int `json:"marker_size"`

	// MarkerColor is a hex colour for every marker. Default DefaultMarkerColor.
	MarkerColor string `json:"marker_color"`

	// ColorBy is "fixed" (default), "index" (distinct colour per spot) or
	// "peak" (dim-to-bright ramp by seed intensity).
	ColorBy string `json:"color_by"`

	// Labels draws each spot's index next to its marker.
	Labels bool `json:"labels"`

	// GridSpacing draws a coordinate grid every GridSpacing frame pixels.
	// Zero disables the grid.
	GridSpacing int `json:"grid_spacing"`
}

// OverlayResult contains the rendered overlay image.
type OverlayResult struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Zoom        float64 `json:"zoom"`
	DisplayMin  int     `json:"display_min"`
	DisplayMax  int     `json:"display_max"`
	Markers     int     `json:"markers"`
	ImageBase64 string  `json:"image_base64"`
	MimeType    string  `json:"mime_type"`
}

// ZoomFactor converts an integer zoom step into a scale factor.
//
//	step  0 → 1×
//	step  n → (n+1)×      for n > 0
//	step -n → 1/(n+1)×    for n > 0
func ZoomFactor(step int) float64 {
	switch {
	case step > 0:
		return float64(step + 1)
	case step < 0:
		return 1 / float64(-step+1)
	default:
		return 1
	}
}

// RenderOverlay draws detection markers over a display-scaled copy of frame
// and returns the result as a base64 PNG.
//
// # Rendering Pipeline
//
//  1. Display scaling: intensities in [DisplayMin, DisplayMax] map linearly
//     to 0-255; values outside clip
//  2. Zoom: nearest-neighbour when enlarging (pixels stay square), box
//     filter when shrinking
//  3. Grid: optional coordinate grid in frame pixel units
//  4. Markers: one per spot at the centre of its sub-pixel position, with
//     optional index labels
//
// result may be nil to render the frame alone.
func RenderOverlay(frame *detection.Frame, result *detection.ResultSet, opts OverlayOptions) (*OverlayResult, error) {
	if frame == nil || frame.Width <= 0 || frame.Height <= 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if opts.Zoom < MinZoomStep || opts.Zoom > MaxZoomStep {
		return nil, fmt.Errorf("zoom step %d outside range [%d,%d]", opts.Zoom, MinZoomStep, MaxZoomStep)
	}

	lo, hi := opts.DisplayMin, opts.DisplayMax
	if lo == 0 && hi == 0 {
		lo, hi = frameRange(frame)
	}
	if hi <= lo {
		hi = lo + 1
	}

	zoom := ZoomFactor(opts.Zoom)
	display := displayImage(frame, lo, hi)

	outW := max(int(math.Round(float64(frame.Width)*zoom)), 1)
	outH := max(int(math.Round(float64(frame.Height)*zoom)), 1)
	var scaled *image.NRGBA
	switch {
	case zoom > 1:
		scaled = imaging.Resize(display, outW, outH, imaging.NearestNeighbor)
	case zoom < 1:
		scaled = imaging.Resize(display, outW, outH, imaging.Box)
	default:
		scaled = imaging.Clone(display)
	}

	canvas := image.NewRGBA(scaled.Bounds())
	draw.Draw(canvas, canvas.Bounds(), scaled, image.Point{}, draw.Src)

	if opts.GridSpacing > 0 {
		drawGrid(canvas, opts.GridSpacing, zoom, color.RGBA{255, 0, 0, 255})
	}

	markers := 0
	if result != nil {
		colors, err := markerColors(result, opts)
		if err != nil {
			return nil, err
		}
		size := opts.MarkerSize
		if size <= 0 {
			size = 4
		}
		for i, s := range result.Spots {
			cx := int(math.Floor((s.X + 0.5) * zoom))
			cy := int(math.Floor((s.Y + 0.5) * zoom))
			switch opts.Marker {
			case "", "cross":
				drawCross(canvas, cx, cy, size, colors[i])
			case "circle":
				drawCircle(canvas, cx, cy, size, colors[i])
			default:
				return nil, fmt.Errorf("unknown marker shape: %s", opts.Marker)
			}
			if opts.Labels {
				drawLabel(canvas, cx+size+2, cy-2, fmt.Sprint(i), colors[i])
			}
			markers++
		}
	}

	encoded, err := encodePNG(canvas)
	if err != nil {
		return nil, err
	}

	return &OverlayResult{
		Width:       canvas.Bounds().Dx(),
		Height:      canvas.Bounds().Dy(),
		Zoom:        zoom,
		DisplayMin:  lo,
		DisplayMax:  hi,
		Markers:     markers,
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// frameRange returns the smallest and largest intensity in frame.
func frameRange(frame *detection.Frame) (int, int) {
	lo, hi := frame.Pix[0], frame.Pix[0]
	for _, v := range frame.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return int(lo), int(hi)
}

// displayImage maps intensities in [lo, hi] to an 8-bit grayscale image.
func displayImage(frame *detection.Frame, lo, hi int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, frame.Width, frame.Height))
	span := float64(hi - lo)
	parallel.Line(frame.Height, func(start, end int) {
		for y := start; y < end; y++ {
			row := y * frame.Width
			off := y * img.Stride
			for x := 0; x < frame.Width; x++ {
				v := (float64(frame.Pix[row+x]) - float64(lo)) * 255 / span
				img.Pix[off+x] = uint8(math.Round(min(max(v, 0), 255)))
			}
		}
	})
	return img
}

// markerColors picks one colour per spot according to opts.ColorBy.
func markerColors(result *detection.ResultSet, opts OverlayOptions) ([]color.RGBA, error) {
	colors := make([]color.RGBA, len(result.Spots))
	switch opts.ColorBy {
	case "", "fixed":
		hex := opts.MarkerColor
		if hex == "" {
			hex = DefaultMarkerColor
		}
		c, err := ParseMarkerColor(hex)
		if err != nil {
			return nil, err
		}
		for i := range colors {
			colors[i] = c
		}
	case "index":
		copy(colors, MarkerPalette(len(colors)))
	case "peak":
		var lo, hi uint16 = math.MaxUint16, 0
		for _, s := range result.Spots {
			lo = min(lo, s.Peak)
			hi = max(hi, s.Peak)
		}
		for i, s := range result.Spots {
			t := 1.0
			if hi > lo {
				t = float64(s.Peak-lo) / float64(hi-lo)
			}
			colors[i] = RampColor(t)
		}
	default:
		return nil, fmt.Errorf("unknown color_by mode: %s", opts.ColorBy)
	}
	return colors, nil
}

// drawGrid draws lines every spacing frame pixels, scaled by zoom.
func drawGrid(img *image.RGBA, spacing int, zoom float64, c color.RGBA) {
	b := img.Bounds()
	step := float64(spacing) * zoom
	if step < 2 {
		return
	}
	for gx := step; gx < float64(b.Dx()); gx += step {
		x := int(gx)
		for y := 0; y < b.Dy(); y++ {
			img.Set(x, y, c)
		}
	}
	for gy := step; gy < float64(b.Dy()); gy += step {
		y := int(gy)
		for x := 0; x < b.Dx(); x++ {
			img.Set(x, y, c)
		}
	}
}

// drawCross draws a plus-shaped marker with arms of length size.
func drawCross(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	for d := -size; d <= size; d++ {
		setClipped(img, cx+d, cy, c)
		setClipped(img, cx, cy+d, c)
	}
}

// drawCircle draws a circle outline of the given radius using the midpoint
// algorithm.
func drawCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	x, y := r, 0
	err := 1 - r
	for x >= y {
		for _, p := range [8][2]int{
			{x, y}, {y, x}, {-y, x}, {-x, y},
			{-x, -y}, {-y, -x}, {y, -x}, {x, -y},
		} {
			setClipped(img, cx+p[0], cy+p[1], c)
		}
		y++
		if err < 0 {
			err += 2*y + 1
		} else {
			x--
			err += 2*(y-x) + 1
		}
	}
}

// drawLabel writes text with its baseline at (x, y) using a 7×13 bitmap font.
func drawLabel(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func setClipped(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// encodePNG encodes img as PNG and returns it base64-encoded.
func encodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
