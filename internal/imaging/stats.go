package imaging

import (
	"fmt"
	"math"
	"slices"

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
)

// FrameStatistics summarises the intensity distribution of a frame.
//
// Use it to pick a detection threshold: a common starting point is
// Median + k·StdDev with k between 3 and 6 for sparse bright spots.
type FrameStatistics struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Min    uint16  `json:"min"`
	Max    uint16  `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Median uint16  `json:"median"`
	P99    uint16  `json:"p99"`

	// SuggestedThreshold is Median + 5·StdDev, clipped to Max.
	SuggestedThreshold int `json:"suggested_threshold"`
}

// Statistics computes the intensity distribution of a frame.
//
// Percentiles use the nearest-rank method on a sorted copy of the pixels, so
// memory use is one extra frame.
func Statistics(frame *detection.Frame) (*FrameStatistics, error) {
	if frame == nil || len(frame.Pix) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	var sum, sumSq float64
	for _, v := range frame.Pix {
		f := float64(v)
		sum += f
		sumSq += f * f
	}
	n := float64(len(frame.Pix))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	stddev := math.Sqrt(variance)

	sorted := slices.Clone(frame.Pix)
	slices.Sort(sorted)

	median := percentile(sorted, 50)
	suggested := int(math.Round(float64(median) + 5*stddev))
	maxV := sorted[len(sorted)-1]
	if suggested > int(maxV) {
		suggested = int(maxV)
	}

	return &FrameStatistics{
		Width:              frame.Width,
		Height:             frame.Height,
		Min:                sorted[0],
		Max:                maxV,
		Mean:               math.Round(mean*100) / 100,
		StdDev:             math.Round(stddev*100) / 100,
		Median:             median,
		P99:                percentile(sorted, 99),
		SuggestedThreshold: suggested,
	}, nil
}

// percentile returns the nearest-rank percentile p (0-100) of sorted values.
func percentile(sorted []uint16, p float64) uint16 {
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// IntensityResult is the value of one pixel.
type IntensityResult struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Value uint16 `json:"value"`
}

// SampleIntensity returns the intensity at column x, row y.
func SampleIntensity(frame *detection.Frame, x, y int) (*IntensityResult, error) {
	if x < 0 || y < 0 || x >= frame.Width || y >= frame.Height {
		return nil, fmt.Errorf("coordinates (%d,%d) outside frame bounds (0,0)-(%d,%d)",
			x, y, frame.Width, frame.Height)
	}
	return &IntensityResult{X: x, Y: y, Value: frame.At(x, y)}, nil
}
