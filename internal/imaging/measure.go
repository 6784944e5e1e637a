package imaging

import (
	"fmt"
	"math"

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
)

// SeparationResult describes the geometry between two spots.
type SeparationResult struct {
	DistancePixels float64 `json:"distance_pixels"`
	DeltaX         float64 `json:"delta_x"`
	DeltaY         float64 `json:"delta_y"`
	AngleDegrees   float64 `json:"angle_degrees"`
	MidpointX      float64 `json:"midpoint_x"`
	MidpointY      float64 `json:"midpoint_y"`
}

// MeasureSeparation calculates the sub-pixel distance and angle from spot a
// to spot b. The angle is measured in degrees with 0 pointing right (+X) and
// 90 pointing down (+Y).
//
// Focus-lock setups track a pair of reflections whose separation changes with
// defocus, so the distance is reported to 0.001 pixel.
func MeasureSeparation(a, b detection.Spot) *SeparationResult {
	dx := b.X - a.X
	dy := b.Y - a.Y

	distance := math.Hypot(dx, dy)
	angle := math.Atan2(dy, dx) * 180 / math.Pi

	return &SeparationResult{
		DistancePixels: math.Round(distance*1000) / 1000,
		DeltaX:         math.Round(dx*1000) / 1000,
		DeltaY:         math.Round(dy*1000) / 1000,
		AngleDegrees:   math.Round(angle*10) / 10,
		MidpointX:      math.Round((a.X+b.X)/2*1000) / 1000,
		MidpointY:      math.Round((a.Y+b.Y)/2*1000) / 1000,
	}
}

// AlignmentResult contains alignment check information
type AlignmentResult struct {
	HorizontallyAligned bool    `json:"horizontally_aligned"`
	VerticallyAligned   bool    `json:"vertically_aligned"`
	HorizontalSpread    float64 `json:"horizontal_spread"`
	VerticalSpread      float64 `json:"vertical_spread"`
	AverageX            float64 `json:"average_x"`
	AverageY            float64 `json:"average_y"`
	Count               int     `json:"count"`
}

// CheckAlignment checks whether spots lie on a common row or column.
//
// The spread on each axis is the population standard deviation of the spot
// coordinates. Spots are horizontally aligned when the Y spread is within
// tolerance and vertically aligned when the X spread is. Fewer than two spots
// are trivially aligned.
func CheckAlignment(spots []detection.Spot, tolerance float64) (*AlignmentResult, error) {
	if tolerance < 0 {
		return nil, fmt.Errorf("tolerance must not be negative: %g", tolerance)
	}
	if len(spots) < 2 {
		res := &AlignmentResult{
			HorizontallyAligned: true,
			VerticallyAligned:   true,
			Count:               len(spots),
		}
		if len(spots) == 1 {
			res.AverageX = spots[0].X
			res.AverageY = spots[0].Y
		}
		return res, nil
	}

	n := float64(len(spots))
	var sumX, sumY float64
	for _, s := range spots {
		sumX += s.X
		sumY += s.Y
	}
	avgX := sumX / n
	avgY := sumY / n

	var varX, varY float64
	for _, s := range spots {
		dx := s.X - avgX
		dy := s.Y - avgY
		varX += dx * dx
		varY += dy * dy
	}
	spreadX := math.Sqrt(varX / n)
	spreadY := math.Sqrt(varY / n)

	return &AlignmentResult{
		HorizontallyAligned: spreadY <= tolerance,
		VerticallyAligned:   spreadX <= tolerance,
		HorizontalSpread:    math.Round(spreadY*1000) / 1000,
		VerticalSpread:      math.Round(spreadX*1000) / 1000,
		AverageX:            math.Round(avgX*1000) / 1000,
		AverageY:            math.Round(avgY*1000) / 1000,
		Count:               len(spots),
	}, nil
}
