package imaging

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"
	"sync"

	"github.com/anthonynsimon/bild/parallel"
	_ "golang.org/x/image/tiff" // Register TIFF format decoder

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
)

// decodedFrame is a frame together with what the decoder reported about it.
type decodedFrame struct {
	frame    *detection.Frame
	format   string
	bitDepth int
	maxValue int
}

// FrameCache provides thread-safe caching of decoded frames to avoid redundant
// disk reads and conversions.
//
// The cache stores decoded frames keyed by their file path. Once a file is
// loaded, subsequent Load() calls for the same path return the cached frame
// without disk I/O. Frames returned from the cache are shared and must be
// treated as read-only.
//
// FrameCache is safe for concurrent use by multiple goroutines.
//
// # Memory Management
//
// Cached frames remain in memory until explicitly removed via Evict() or
// Clear(). A 2048×2048 16-bit frame holds 8 MiB.
type FrameCache struct {
	mu     sync.RWMutex
	frames map[string]*decodedFrame
}

// NewFrameCache creates and initializes a new empty frame cache.
func NewFrameCache() *FrameCache {
	return &FrameCache{
		frames: make(map[string]*decodedFrame),
	}
}

// Load retrieves a frame from the cache or decodes it from disk if not cached.
//
// Parameters:
//   - path: Absolute or relative file path. Supported formats are PNG, TIFF,
//     JPEG, and GIF. 16-bit grayscale PNG and TIFF keep their full range.
//
// Returns:
//   - *detection.Frame: The decoded intensity frame.
//   - error: Non-nil if the file cannot be opened or decoded.
func (c *FrameCache) Load(path string) (*detection.Frame, error) {
	d, err := c.load(path)
	if err != nil {
		return nil, err
	}
	return d.frame, nil
}

func (c *FrameCache) load(path string) (*decodedFrame, error) {
	c.mu.RLock()
	if d, ok := c.frames[path]; ok {
		c.mu.RUnlock()
		return d, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	d := &decodedFrame{
		frame:    FrameFromImage(img),
		format:   format,
		bitDepth: bitDepth(img),
		maxValue: maxValue(img),
	}

	c.mu.Lock()
	c.frames[path] = d
	c.mu.Unlock()

	return d, nil
}

// Clear removes all frames from the cache, freeing the associated memory.
func (c *FrameCache) Clear() {
	c.mu.Lock()
	c.frames = make(map[string]*decodedFrame)
	c.mu.Unlock()
}

// Evict removes a specific frame from the cache by its path.
// If the path is not in the cache, this method does nothing.
func (c *FrameCache) Evict(path string) {
	c.mu.Lock()
	delete(c.frames, path)
	c.mu.Unlock()
}

// DecodeFrame decodes an image stream into an intensity frame.
//
// It returns the frame and the name of the format that decoded it
// ("png", "tiff", "jpeg", "gif").
func DecodeFrame(r io.Reader) (*detection.Frame, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return FrameFromImage(img), format, nil
}

// FrameFromImage converts an image into an intensity frame.
//
// Conversion rules:
//   - *image.Gray16: values copied unchanged (0-65535)
//   - *image.Gray: values copied unchanged (0-255), so thresholds keep
//     their 8-bit meaning
//   - Everything else: luminance via color.Gray16Model (0-65535)
//
// Rows are converted in parallel. The result is origin-relative: pixel (0,0)
// is img.Bounds().Min.
func FrameFromImage(img image.Image) *detection.Frame {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pix := make([]uint16, width*height)

	var at func(x, y int) uint16
	switch src := img.(type) {
	case *image.Gray16:
		at = func(x, y int) uint16 { return src.Gray16At(x, y).Y }
	case *image.Gray:
		at = func(x, y int) uint16 { return uint16(src.GrayAt(x, y).Y) }
	default:
		at = func(x, y int) uint16 {
			return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
		}
	}

	parallel.Line(height, func(start, end int) {
		for y := start; y < end; y++ {
			row := y * width
			for x := 0; x < width; x++ {
				pix[row+x] = at(x+bounds.Min.X, y+bounds.Min.Y)
			}
		}
	})

	return &detection.Frame{Width: width, Height: height, Pix: pix}
}

// bitDepth reports the per-channel bit depth of the decoded image type.
func bitDepth(img image.Image) int {
	switch img.(type) {
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		return 16
	default:
		return 8
	}
}

// maxValue reports the largest intensity FrameFromImage can produce for img.
func maxValue(img image.Image) int {
	if _, ok := img.(*image.Gray); ok {
		return 255
	}
	return 65535
}

// FrameInfo contains metadata about a loaded frame file.
type FrameInfo struct {
	// Width is the frame width in pixels.
	Width int `json:"width"`

	// Height is the frame height in pixels.
	Height int `json:"height"`

	// Format is the decoder that read the file: "png", "tiff", "jpeg" or "gif".
	Format string `json:"format"`

	// BitDepth is the per-channel bit depth of the source: 8 or 16.
	BitDepth int `json:"bit_depth"`

	// MaxValue is the largest intensity the source format can represent.
	MaxValue int `json:"max_value"`

	// FileSizeBytes is the size of the file on disk in bytes.
	FileSizeBytes int64 `json:"file_size_bytes"`
}

// LoadFrameInfo loads a frame and returns metadata about it.
//
// Parameters:
//   - cache: The frame cache to use for loading. Must not be nil.
//   - path: Path to the image file.
func LoadFrameInfo(cache *FrameCache, path string) (*FrameInfo, error) {
	d, err := cache.load(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &FrameInfo{
		Width:         d.frame.Width,
		Height:        d.frame.Height,
		Format:        d.format,
		BitDepth:      d.bitDepth,
		MaxValue:      d.maxValue,
		FileSizeBytes: stat.Size(),
	}, nil
}
