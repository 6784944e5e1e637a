// Package imaging turns image files into detection frames and provides the
// tooling around spot detection: frame statistics, ROI crops, Gaussian
// prefiltering, detection overlays, threshold masks and spot measurements.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost column)
//   - Y: vertical position (0 = topmost row)
//   - For regions, (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//
// Spot positions are sub-pixel: a spot at (10.0, 4.0) sits on the centre of
// pixel (10, 4). Overlays therefore draw markers at ((X+0.5)·zoom, (Y+0.5)·zoom).
//
// # Intensity Conversion
//
// Frames hold 16-bit intensities. 16-bit grayscale files are copied as-is and
// 8-bit grayscale files keep their 0-255 values, so a threshold chosen for the
// camera's native bit depth applies directly. Colour files are reduced to
// luminance through color.Gray16Model.
//
// # Thread Safety
//
// FrameCache is safe for concurrent use. Frames returned from the cache are
// shared and must be treated as read-only; CropFrame and Smooth always return
// new frames.
//
// # Performance Considerations
//
// Per-row loops (decoding, display scaling, masks) are split across CPUs with
// bild/parallel. Large frames stay in the cache until Evict or Clear.
package imaging
