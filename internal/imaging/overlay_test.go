package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
)

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func countColor(img image.Image, c color.RGBA) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if rgbaAt(img, x, y) == c {
				n++
			}
		}
	}
	return n
}

func singleSpot(x, y float64, peak uint16) *detection.ResultSet {
	return &detection.ResultSet{
		Spots: []detection.Spot{{X: x, Y: y, Peak: peak}},
		Count: 1,
	}
}

func TestZoomFactor(t *testing.T) {
	tests := []struct {
		step int
		want float64
	}{
		{0, 1},
		{1, 2},
		{3, 4},
		{-1, 0.5},
		{-3, 0.25},
	}

	for _, tt := range tests {
		if got := ZoomFactor(tt.step); got != tt.want {
			t.Errorf("ZoomFactor(%d) = %v, want %v", tt.step, got, tt.want)
		}
	}
}

func TestRenderOverlay_Dimensions(t *testing.T) {
	frame := indexFrame(40, 30)

	tests := []struct {
		zoom         int
		wantW, wantH int
	}{
		{0, 40, 30},
		{1, 80, 60},
		{3, 160, 120},
		{-1, 20, 15},
		{-3, 10, 8},
	}

	for _, tt := range tests {
		result, err := RenderOverlay(frame, nil, OverlayOptions{Zoom: tt.zoom})
		if err != nil {
			t.Fatalf("RenderOverlay(zoom %d) failed: %v", tt.zoom, err)
		}
		if result.Width != tt.wantW || result.Height != tt.wantH {
			t.Errorf("zoom %d: got %dx%d, want %dx%d",
				tt.zoom, result.Width, result.Height, tt.wantW, tt.wantH)
		}

		img := decodeBase64PNG(t, result.ImageBase64)
		if img.Bounds().Dx() != tt.wantW || img.Bounds().Dy() != tt.wantH {
			t.Errorf("zoom %d: PNG is %v, want %dx%d", tt.zoom, img.Bounds(), tt.wantW, tt.wantH)
		}
	}
}

func TestRenderOverlay_ZoomOutOfRange(t *testing.T) {
	frame := indexFrame(8, 8)
	for _, zoom := range []int{MinZoomStep - 1, MaxZoomStep + 1} {
		if _, err := RenderOverlay(frame, nil, OverlayOptions{Zoom: zoom}); err == nil {
			t.Errorf("zoom %d should fail", zoom)
		}
	}
}

func TestRenderOverlay_CrossMarkerPosition(t *testing.T) {
	frame := newTestFrame(30, 20, 0)

	result, err := RenderOverlay(frame, singleSpot(10, 5, 1000), OverlayOptions{Zoom: 1})
	if err != nil {
		t.Fatalf("RenderOverlay failed: %v", err)
	}
	if result.Markers != 1 {
		t.Errorf("Markers: got %d, want 1", result.Markers)
	}

	img := decodeBase64PNG(t, result.ImageBase64)
	green := color.RGBA{0, 255, 0, 255}
	black := color.RGBA{0, 0, 0, 255}

	// Spot (10,5) at 2× sits at ((10+0.5)*2, (5+0.5)*2) = (21, 11).
	tests := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"centre", 21, 11, green},
		{"right arm end", 25, 11, green},
		{"top arm end", 21, 7, green},
		{"beyond arm", 26, 11, black},
		{"diagonal", 22, 12, black},
		{"background", 0, 0, black},
	}
	for _, tt := range tests {
		if got := rgbaAt(img, tt.x, tt.y); got != tt.want {
			t.Errorf("%s (%d,%d): got %v, want %v", tt.name, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestRenderOverlay_CircleMarker(t *testing.T) {
	frame := newTestFrame(20, 20, 0)
	opts := OverlayOptions{Marker: "circle", MarkerSize: 4, MarkerColor: "#FF0000"}

	result, err := RenderOverlay(frame, singleSpot(10, 10, 1), opts)
	if err != nil {
		t.Fatalf("RenderOverlay failed: %v", err)
	}

	img := decodeBase64PNG(t, result.ImageBase64)
	red := color.RGBA{255, 0, 0, 255}
	if got := rgbaAt(img, 14, 10); got != red {
		t.Errorf("circle edge: got %v, want %v", got, red)
	}
	if got := rgbaAt(img, 10, 10); got == red {
		t.Error("circle marker should leave its centre unpainted")
	}
}

func TestRenderOverlay_DisplayRange(t *testing.T) {
	frame := &detection.Frame{Width: 3, Height: 1, Pix: []uint16{50, 150, 300}}

	result, err := RenderOverlay(frame, nil, OverlayOptions{DisplayMin: 100, DisplayMax: 200})
	if err != nil {
		t.Fatalf("RenderOverlay failed: %v", err)
	}
	if result.DisplayMin != 100 || result.DisplayMax != 200 {
		t.Errorf("display range: got [%d,%d], want [100,200]", result.DisplayMin, result.DisplayMax)
	}

	img := decodeBase64PNG(t, result.ImageBase64)
	want := []uint8{0, 128, 255}
	for x, w := range want {
		if got := rgbaAt(img, x, 0).R; got != w {
			t.Errorf("pixel %d: got %d, want %d", x, got, w)
		}
	}
}

func TestRenderOverlay_AutoRange(t *testing.T) {
	frame := &detection.Frame{Width: 2, Height: 1, Pix: []uint16{1000, 3000}}

	result, err := RenderOverlay(frame, nil, OverlayOptions{})
	if err != nil {
		t.Fatalf("RenderOverlay failed: %v", err)
	}
	if result.DisplayMin != 1000 || result.DisplayMax != 3000 {
		t.Errorf("auto range: got [%d,%d], want [1000,3000]", result.DisplayMin, result.DisplayMax)
	}
}

func TestRenderOverlay_Labels(t *testing.T) {
	frame := newTestFrame(60, 40, 0)
	spots := singleSpot(10, 20, 1)
	green := color.RGBA{0, 255, 0, 255}

	plain, err := RenderOverlay(frame, spots, OverlayOptions{})
	if err != nil {
		t.Fatalf("RenderOverlay failed: %v", err)
	}
	labelled, err := RenderOverlay(frame, spots, OverlayOptions{Labels: true})
	if err != nil {
		t.Fatalf("RenderOverlay with labels failed: %v", err)
	}

	before := countColor(decodeBase64PNG(t, plain.ImageBase64), green)
	after := countColor(decodeBase64PNG(t, labelled.ImageBase64), green)
	if after <= before {
		t.Errorf("labels added no pixels: %d before, %d after", before, after)
	}
}

func TestRenderOverlay_ColorByIndex(t *testing.T) {
	frame := newTestFrame(40, 20, 0)
	result := &detection.ResultSet{
		Spots: []detection.Spot{{X: 10, Y: 10}, {X: 30, Y: 10}},
		Count: 2,
	}

	overlay, err := RenderOverlay(frame, result, OverlayOptions{ColorBy: "index"})
	if err != nil {
		t.Fatalf("RenderOverlay failed: %v", err)
	}

	img := decodeBase64PNG(t, overlay.ImageBase64)
	if rgbaAt(img, 10, 10) == rgbaAt(img, 30, 10) {
		t.Error("index colouring gave both spots the same colour")
	}
}

func TestRenderOverlay_ColorByPeak(t *testing.T) {
	frame := newTestFrame(40, 20, 0)
	result := &detection.ResultSet{
		Spots: []detection.Spot{{X: 10, Y: 10, Peak: 100}, {X: 30, Y: 10, Peak: 9000}},
		Count: 2,
	}

	overlay, err := RenderOverlay(frame, result, OverlayOptions{ColorBy: "peak"})
	if err != nil {
		t.Fatalf("RenderOverlay failed: %v", err)
	}

	img := decodeBase64PNG(t, overlay.ImageBase64)
	if got := rgbaAt(img, 10, 10); got != RampColor(0) {
		t.Errorf("dimmest spot: got %v, want %v", got, RampColor(0))
	}
	if got := rgbaAt(img, 30, 10); got != RampColor(1) {
		t.Errorf("brightest spot: got %v, want %v", got, RampColor(1))
	}
}

func TestRenderOverlay_GridLines(t *testing.T) {
	frame := newTestFrame(40, 40, 0)

	result, err := RenderOverlay(frame, nil, OverlayOptions{GridSpacing: 10})
	if err != nil {
		t.Fatalf("RenderOverlay failed: %v", err)
	}

	img := decodeBase64PNG(t, result.ImageBase64)
	if rgbaAt(img, 10, 5).R == 0 {
		t.Error("expected grid line at x=10")
	}
	if rgbaAt(img, 5, 20).R == 0 {
		t.Error("expected grid line at y=20")
	}
	if rgbaAt(img, 5, 5).R != 0 {
		t.Error("unexpected grid colour between lines")
	}
}

func TestRenderOverlay_InvalidOptions(t *testing.T) {
	frame := newTestFrame(10, 10, 0)
	spots := singleSpot(5, 5, 1)

	tests := []struct {
		name string
		opts OverlayOptions
	}{
		{"unknown marker", OverlayOptions{Marker: "star"}},
		{"unknown color_by", OverlayOptions{ColorBy: "size"}},
		{"bad hex", OverlayOptions{MarkerColor: "green"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RenderOverlay(frame, spots, tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := RenderOverlay(&detection.Frame{}, nil, OverlayOptions{}); err == nil {
		t.Error("expected error for empty frame")
	}
}
