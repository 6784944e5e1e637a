// Package server implements the MCP (Model Context Protocol) server for spot
// detection tools.
//
// This package provides a JSON-RPC 2.0 server that exposes frame inspection and
// sub-pixel spot detection through the MCP protocol, so an assistant can tune
// detection thresholds on real camera frames and check the results visually.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Frame Information:
//   - frame_load: Load a frame file and get its size, format and bit depth
//   - frame_statistics: Intensity distribution and a suggested threshold
//   - frame_sample_intensity: Raw intensity at one pixel
//   - frame_crop: Render a region of the frame as PNG
//
// Spot Detection:
//   - frame_find_spots: Sub-pixel spot positions above a threshold
//   - frame_spot_overlay: Detections drawn over the frame as PNG
//   - frame_threshold_mask: Pixels above a threshold as a binary PNG
//
// Spot Geometry:
//   - spot_measure_separation: Distance and angle between two spots
//   - spot_check_alignment: Whether spots share a row or column
//
// # Frame Caching
//
// Frames are decoded once per path and reused across tool calls for the
// lifetime of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure), -32602 (invalid params),
//     -32601 (unknown method) or -32700 (request line is not JSON)
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	srv := server.New(server.WithVersion(Version))
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
