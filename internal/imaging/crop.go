package imaging

import (
	"fmt"

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
)

// Region is a rectangular area of a frame. (X1, Y1) is inclusive and
// (X2, Y2) is exclusive.
type Region struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns the horizontal extent of the region.
func (r Region) Width() int { return r.X2 - r.X1 }

// Height returns the vertical extent of the region.
func (r Region) Height() int { return r.Y2 - r.Y1 }

// Validate checks that r is non-empty and lies inside a width×height frame.
func (r Region) Validate(width, height int) error {
	if r.X1 < 0 || r.Y1 < 0 || r.X2 > width || r.Y2 > height {
		return fmt.Errorf("region (%d,%d)-(%d,%d) outside frame bounds (0,0)-(%d,%d)",
			r.X1, r.Y1, r.X2, r.Y2, width, height)
	}
	if r.X1 >= r.X2 || r.Y1 >= r.Y2 {
		return fmt.Errorf("invalid region: x1 must be < x2, y1 must be < y2")
	}
	return nil
}

// Offset translates spots found in a cropped frame back into the
// coordinates of the frame the region was cut from.
func (r Region) Offset(result *detection.ResultSet) {
	for i := range result.Spots {
		result.Spots[i].X += float64(r.X1)
		result.Spots[i].Y += float64(r.Y1)
	}
}

// CropFrame copies a region of a frame into a new frame.
//
// Detection on a crop sees the crop's edge as the frame border, so maxima on
// the crop boundary compare only against in-crop neighbours.
func CropFrame(frame *detection.Frame, r Region) (*detection.Frame, error) {
	if err := r.Validate(frame.Width, frame.Height); err != nil {
		return nil, err
	}

	w, h := r.Width(), r.Height()
	pix := make([]uint16, w*h)
	for y := 0; y < h; y++ {
		src := (r.Y1+y)*frame.Width + r.X1
		copy(pix[y*w:(y+1)*w], frame.Pix[src:src+w])
	}
	return &detection.Frame{Width: w, Height: h, Pix: pix}, nil
}

// CropQuadrant returns the region for a named part of a width×height frame:
// top-left, top-right, bottom-left, bottom-right, top-half, bottom-half,
// left-half, right-half or center.
func CropQuadrant(width, height int, name string) (Region, error) {
	midX := width / 2
	midY := height / 2

	switch name {
	case "top-left":
		return Region{0, 0, midX, midY}, nil
	case "top-right":
		return Region{midX, 0, width, midY}, nil
	case "bottom-left":
		return Region{0, midY, midX, height}, nil
	case "bottom-right":
		return Region{midX, midY, width, height}, nil
	case "top-half":
		return Region{0, 0, width, midY}, nil
	case "bottom-half":
		return Region{0, midY, width, height}, nil
	case "left-half":
		return Region{0, 0, midX, height}, nil
	case "right-half":
		return Region{midX, 0, width, height}, nil
	case "center":
		// Center 50% of the frame
		qW := width / 4
		qH := height / 4
		return Region{qW, qH, width - qW, height - qH}, nil
	default:
		return Region{}, fmt.Errorf("unknown region: %s", name)
	}
}
