package detection

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultMaxDetections is the capacity used when Options.MaxDetections is zero.
	DefaultMaxDetections = 1000

	// DefaultRadius is the half-width of the centroid and suppression window
	// used when Options.Radius is zero. A radius of 2 gives a 5×5 window.
	DefaultRadius = 2
)

// ErrInvalidInput is returned for malformed frames or options.
// Use errors.Is to test for it; the returned error carries the details.
var ErrInvalidInput = errors.New("invalid input")

// Frame is a read-only view over a row-major grid of pixel intensities.
//
// Pix[y*Width+x] is the intensity at column x, row y. The origin is the
// top-left corner. The detector never modifies or retains a Frame.
type Frame struct {
	Width  int
	Height int
	Pix    []uint16
}

// NewFrame wraps pix as a Frame after checking its dimensions.
func NewFrame(pix []uint16, width, height int) (*Frame, error) {
	f := &Frame{Width: width, Height: height, Pix: pix}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// At returns the intensity at column x, row y. No bounds checking is performed.
func (f *Frame) At(x, y int) uint16 {
	return f.Pix[y*f.Width+x]
}

func (f *Frame) validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidInput)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: frame dimensions %dx%d must be positive", ErrInvalidInput, f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height {
		return fmt.Errorf("%w: buffer holds %d pixels, want %d (%dx%d)",
			ErrInvalidInput, len(f.Pix), f.Width*f.Height, f.Width, f.Height)
	}
	return nil
}

// Spot is one detected bright region.
type Spot struct {
	// X is the intensity-weighted column of the region (sub-pixel).
	X float64 `json:"x"`

	// Y is the intensity-weighted row of the region (sub-pixel).
	Y float64 `json:"y"`

	// Peak is the intensity of the local maximum that seeded the spot.
	Peak uint16 `json:"peak"`

	// Mass is the summed intensity of the window pixels above threshold.
	Mass float64 `json:"mass"`

	// Pixels is the number of window pixels that contributed to the centroid.
	Pixels int `json:"pixels"`
}

// ResultSet contains the spots found in one frame.
type ResultSet struct {
	// Spots is the list of detections in scan order (row-major by seed pixel).
	Spots []Spot `json:"spots"`

	// Count is the number of spots detected. Always equal to len(Spots).
	Count int `json:"count"`

	// Truncated is set when the scan stopped at capacity before visiting
	// every pixel of the frame.
	Truncated bool `json:"truncated"`
}

// Options configures a detection run. The zero value of MaxDetections and
// Radius selects DefaultMaxDetections and DefaultRadius.
type Options struct {
	// Threshold is the intensity cutoff. A pixel must be strictly brighter
	// to seed or weight a spot. Zero and negative values are accepted.
	Threshold int `json:"threshold"`

	// MaxDetections caps the number of spots returned.
	MaxDetections int `json:"max_detections,omitempty"`

	// Radius is the half-width of the square centroid window.
	Radius int `json:"radius,omitempty"`
}

// withDefaults validates o and fills in zero values.
func (o Options) withDefaults() (Options, error) {
	if o.MaxDetections < 0 {
		return o, fmt.Errorf("%w: max detections %d must not be negative", ErrInvalidInput, o.MaxDetections)
	}
	if o.Radius < 0 {
		return o, fmt.Errorf("%w: radius %d must not be negative", ErrInvalidInput, o.Radius)
	}
	if o.MaxDetections == 0 {
		o.MaxDetections = DefaultMaxDetections
	}
	if o.Radius == 0 {
		o.Radius = DefaultRadius
	}
	return o, nil
}

// FindSpots locates bright local maxima in frame and refines each one to a
// sub-pixel position using the first moment of its neighbourhood.
//
// FindSpots allocates its own scratch memory and is safe to call
// concurrently on independent frames. Callers processing a stream of frames
// on one goroutine can use a Finder to reuse that memory.
//
// Returns:
//   - *ResultSet: Up to opts.MaxDetections spots in scan order. An empty
//     result is not an error.
//   - error: Wraps ErrInvalidInput if the frame or options are malformed.
//     No partial result is returned in that case.
//
// # Algorithm
//
//  1. Candidate scan: visit pixels in row-major order. A pixel seeds a spot
//     when its intensity exceeds the threshold, is greater than or equal to
//     every in-bounds 8-connected neighbour, and no earlier spot has claimed it.
//  2. Suppression: every pixel in the (2R+1)×(2R+1) window around the seed
//     (clipped to the frame) is claimed, so one blob yields one spot and
//     equal-intensity plateaus resolve to the first pixel scanned.
//  3. Centroid: x = Σ I·col / Σ I and y = Σ I·row / Σ I over window pixels
//     with I > threshold. A window with zero weight is skipped. When the
//     rounded centroid lands off the seed (flat-topped blobs), the window is
//     re-centred on it a bounded number of times.
//  4. Capacity: scanning stops as soon as MaxDetections spots are found.
func FindSpots(frame *Frame, opts Options) (*ResultSet, error) {
	var f Finder
	f.opts = opts
	return f.Find(frame)
}

// Finder runs detection with a fixed set of options and keeps its scratch
// bitmap between calls.
//
// A Finder is not safe for concurrent use. Give each worker goroutine its
// own Finder, or borrow one from a sync.Pool for the duration of a call.
type Finder struct {
	opts    Options
	claimed []bool
}

// NewFinder creates a Finder after validating opts.
func NewFinder(opts Options) (*Finder, error) {
	if _, err := opts.withDefaults(); err != nil {
		return nil, err
	}
	return &Finder{opts: opts}, nil
}

// Reset replaces the Finder's options and keeps its scratch memory.
func (d *Finder) Reset(opts Options) error {
	if _, err := opts.withDefaults(); err != nil {
		return err
	}
	d.opts = opts
	return nil
}

// Options returns the options the Finder was created with.
func (d *Finder) Options() Options {
	return d.opts
}

// Find runs detection on frame with the Finder's options.
func (d *Finder) Find(frame *Frame) (*ResultSet, error) {
	return d.FindWithThreshold(frame, d.opts.Threshold)
}

// FindWithThreshold runs detection on frame, overriding the threshold.
// Live callers adjust the threshold per frame without rebuilding the Finder.
func (d *Finder) FindWithThreshold(frame *Frame, threshold int) (*ResultSet, error) {
	if err := frame.validate(); err != nil {
		return nil, err
	}
	opts, err := d.opts.withDefaults()
	if err != nil {
		return nil, err
	}
	opts.Threshold = threshold

	n := frame.Width * frame.Height
	if cap(d.claimed) < n {
		d.claimed = make([]bool, n)
	} else {
		d.claimed = d.claimed[:n]
		clear(d.claimed)
	}

	return scan(frame, opts, d.claimed), nil
}

// scan performs the candidate scan. claimed must be a zeroed bitmap of
// frame.Width*frame.Height entries.
func scan(frame *Frame, opts Options, claimed []bool) *ResultSet {
	w, h := frame.Width, frame.Height
	pix := frame.Pix
	spots := make([]Spot, 0, min(opts.MaxDetections, 64))

	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			i := row + x
			if claimed[i] {
				continue
			}
			v := pix[i]
			if int(v) <= opts.Threshold || !isLocalMax(frame, x, y, v) {
				continue
			}

			spot, ok := refine(frame, x, y, opts, claimed)
			if !ok {
				continue
			}
			spot.Peak = v
			spots = append(spots, spot)

			if len(spots) == opts.MaxDetections {
				return &ResultSet{
					Spots:     spots,
					Count:     len(spots),
					Truncated: i < len(pix)-1,
				}
			}
		}
	}

	return &ResultSet{
		Spots: spots,
		Count: len(spots),
	}
}

// isLocalMax reports whether v is greater than or equal to every in-bounds
// 8-connected neighbour of (x, y).
func isLocalMax(frame *Frame, x, y int, v uint16) bool {
	w, h := frame.Width, frame.Height
	for dy := -1; dy <= 1; dy++ {
		ny := y + dy
		if ny < 0 || ny >= h {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			nx := x + dx
			if (dx == 0 && dy == 0) || nx < 0 || nx >= w {
				continue
			}
			if frame.Pix[ny*w+nx] > v {
				return false
			}
		}
	}
	return true
}

// maxRecenter bounds how many times the window follows the centroid.
const maxRecenter = 4

// refine computes the centroid of the window around the seed (sx, sy). On
// flat-topped blobs the seed is the first plateau pixel scanned, not the
// middle, so the window is moved onto the rounded centroid until it stops
// moving. The seed window and the final window are both claimed.
func refine(frame *Frame, sx, sy int, opts Options, claimed []bool) (Spot, bool) {
	spot, ok := moments(frame, sx, sy, opts.Radius, opts.Threshold)
	cx, cy := sx, sy
	for iter := 0; ok && iter < maxRecenter; iter++ {
		nx, ny := int(math.Round(spot.X)), int(math.Round(spot.Y))
		if nx == cx && ny == cy {
			break
		}
		next, nok := moments(frame, nx, ny, opts.Radius, opts.Threshold)
		if !nok {
			break
		}
		cx, cy, spot = nx, ny, next
	}

	claimWindow(frame, sx, sy, opts.Radius, claimed)
	if cx != sx || cy != sy {
		claimWindow(frame, cx, cy, opts.Radius, claimed)
	}
	return spot, ok
}

// window returns the inclusive bounds of the square window around (cx, cy)
// clipped to the frame.
func window(frame *Frame, cx, cy, radius int) (x0, y0, x1, y1 int) {
	x0, x1 = max(cx-radius, 0), min(cx+radius, frame.Width-1)
	y0, y1 = max(cy-radius, 0), min(cy+radius, frame.Height-1)
	return x0, y0, x1, y1
}

func claimWindow(frame *Frame, cx, cy, radius int, claimed []bool) {
	x0, y0, x1, y1 := window(frame, cx, cy, radius)
	for y := y0; y <= y1; y++ {
		row := y * frame.Width
		for x := x0; x <= x1; x++ {
			claimed[row+x] = true
		}
	}
}

// moments computes the intensity-weighted centroid of the window around
// (cx, cy), counting only pixels above threshold. ok is false when the
// window carries no weight.
func moments(frame *Frame, cx, cy, radius, threshold int) (Spot, bool) {
	w := frame.Width
	x0, y0, x1, y1 := window(frame, cx, cy, radius)

	// uint64 sums: 65535 * coordinate * window area stays far below 2^64.
	var sum, sumX, sumY uint64
	pixels := 0
	for y := y0; y <= y1; y++ {
		row := y * w
		for x := x0; x <= x1; x++ {
			v := frame.Pix[row+x]
			if int(v) <= threshold || v == 0 {
				continue
			}
			iv := uint64(v)
			sum += iv
			sumX += iv * uint64(x)
			sumY += iv * uint64(y)
			pixels++
		}
	}

	if sum == 0 {
		return Spot{}, false
	}
	return Spot{
		X:      float64(sumX) / float64(sum),
		Y:      float64(sumY) / float64(sum),
		Mass:   float64(sum),
		Pixels: pixels,
	}, true
}
