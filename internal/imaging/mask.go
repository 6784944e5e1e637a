package imaging

import (
	"image"
	"sync/atomic"

	"github.com/anthonynsimon/bild/parallel"

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
)

// ThresholdMaskResult contains a binary mask of the pixels a threshold keeps.
type ThresholdMaskResult struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	Threshold int `json:"threshold"`

	// AbovePixels is the number of pixels with intensity > Threshold.
	AbovePixels int `json:"above_pixels"`

	// AboveFraction is AbovePixels as a fraction of all pixels (0-1).
	AboveFraction float64 `json:"above_fraction"`

	// ImageBase64 is the mask as a grayscale PNG: white (255) where the
	// intensity exceeds the threshold, black elsewhere.
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// ThresholdMask shows which pixels can seed or weight a spot at threshold.
//
// A mask that is mostly white means the threshold sits in the background
// and detection will spend its capacity on noise.
func ThresholdMask(frame *detection.Frame, threshold int) (*ThresholdMaskResult, error) {
	mask, above := thresholdImage(frame, threshold)

	encoded, err := encodePNG(mask)
	if err != nil {
		return nil, err
	}

	total := frame.Width * frame.Height
	return &ThresholdMaskResult{
		Width:         frame.Width,
		Height:        frame.Height,
		Threshold:     threshold,
		AbovePixels:   above,
		AboveFraction: float64(above) / float64(total),
		ImageBase64:   encoded,
		MimeType:      "image/png",
	}, nil
}

// thresholdImage builds the mask image and counts the pixels above threshold.
func thresholdImage(frame *detection.Frame, threshold int) (*image.Gray, int) {
	mask := image.NewGray(image.Rect(0, 0, frame.Width, frame.Height))
	var above atomic.Int64

	parallel.Line(frame.Height, func(start, end int) {
		n := 0
		for y := start; y < end; y++ {
			row := y * frame.Width
			off := y * mask.Stride
			for x := 0; x < frame.Width; x++ {
				if int(frame.Pix[row+x]) > threshold {
					mask.Pix[off+x] = 255
					n++
				}
			}
		}
		above.Add(int64(n))
	})

	return mask, int(above.Load())
}
