// Package detection locates bright spots in microscope camera frames.
//
// The detector scans a frame of unsigned 16-bit intensities for local maxima
// above a threshold and refines each maximum to a sub-pixel position using
// the first moment (intensity-weighted centroid) of its neighbourhood. It is
// the per-frame feature extractor for tracking and focus-lock consumers.
//
// # Algorithm Overview
//
//  1. Candidate scan: row-major; a pixel qualifies when it exceeds the
//     threshold and is >= all of its in-bounds 8-connected neighbours
//  2. Suppression: a square window around each candidate is claimed so a
//     blob produces one spot
//  3. Centroid: first moment over window pixels above threshold
//  4. Capacity: the scan stops once MaxDetections spots are found
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at the centre of the top-left pixel
//   - X increases rightward (column)
//   - Y increases downward (row)
//
// # Determinism and Concurrency
//
// Results depend only on the frame and options, and spots are returned in
// scan order, so identical inputs always give identical result sets.
// FindSpots holds no shared state and may be called from many goroutines.
// A Finder reuses its scratch bitmap and belongs to one goroutine at a time.
//
// # Capacity
//
// Reaching MaxDetections is not an error. The result carries exactly
// MaxDetections spots and Truncated reports whether the scan stopped early.
package detection
