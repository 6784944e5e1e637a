package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"testing"
)

// decodeBase64PNG decodes an image returned by the renderers.
func decodeBase64PNG(t *testing.T, encoded string) image.Image {
	t.Helper()

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode PNG: %v", err)
	}
	return img
}

func TestThresholdMask(t *testing.T) {
	frame := newTestFrame(10, 10, 100)
	frame.Pix[2*10+3] = 500
	frame.Pix[7*10+8] = 501
	frame.Pix[0] = 400 // equal to threshold, stays black

	result, err := ThresholdMask(frame, 400)
	if err != nil {
		t.Fatalf("ThresholdMask failed: %v", err)
	}

	if result.AbovePixels != 2 {
		t.Errorf("AbovePixels: got %d, want 2", result.AbovePixels)
	}
	if result.AboveFraction != 0.02 {
		t.Errorf("AboveFraction: got %v, want 0.02", result.AboveFraction)
	}
	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}

	img := decodeBase64PNG(t, result.ImageBase64)
	if img.Bounds().Dx() != 10 || img.Bounds().Dy() != 10 {
		t.Fatalf("mask size %v, want 10x10", img.Bounds())
	}

	tests := []struct {
		x, y  int
		white bool
	}{
		{3, 2, true},
		{8, 7, true},
		{0, 0, false},
		{5, 5, false},
	}
	for _, tt := range tests {
		r, _, _, _ := img.At(tt.x, tt.y).RGBA()
		if got := r == 0xFFFF; got != tt.white {
			t.Errorf("mask(%d,%d) white = %v, want %v", tt.x, tt.y, got, tt.white)
		}
	}
}

func TestThresholdMask_NegativeThresholdSelectsAll(t *testing.T) {
	frame := newTestFrame(6, 4, 0)

	result, err := ThresholdMask(frame, -1)
	if err != nil {
		t.Fatalf("ThresholdMask failed: %v", err)
	}
	if result.AbovePixels != 24 {
		t.Errorf("AbovePixels: got %d, want 24", result.AbovePixels)
	}
	if result.AboveFraction != 1 {
		t.Errorf("AboveFraction: got %v, want 1", result.AboveFraction)
	}
}

func TestThresholdMask_LargeFrameCount(t *testing.T) {
	// Enough rows to be split across workers.
	frame := newTestFrame(64, 512, 0)
	for y := 0; y < frame.Height; y++ {
		frame.Pix[y*frame.Width+y%frame.Width] = 1000
	}

	result, err := ThresholdMask(frame, 10)
	if err != nil {
		t.Fatalf("ThresholdMask failed: %v", err)
	}
	if result.AbovePixels != 512 {
		t.Errorf("AbovePixels: got %d, want 512", result.AbovePixels)
	}
}
