package server

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
	"github.com/ironsheep/spot-tools-mcp/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "frame_load", "frame_find_spots").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	start := time.Now()
	result, err := s.executeTool(params.Name, params.Arguments)
	if s.debug {
		log.Printf("tool %s finished in %s (err=%v)", params.Name, time.Since(start), err)
	}
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads frames from cache as needed
//  4. Calls the appropriate imaging/detection function
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Frame Information
	case "frame_load":
		return s.handleFrameLoad(args)
	case "frame_statistics":
		return s.handleFrameStatistics(args)
	case "frame_sample_intensity":
		return s.handleFrameSampleIntensity(args)
	case "frame_crop":
		return s.handleFrameCrop(args)

	// Spot Detection
	case "frame_find_spots":
		return s.handleFrameFindSpots(args)
	case "frame_spot_overlay":
		return s.handleFrameSpotOverlay(args)
	case "frame_threshold_mask":
		return s.handleFrameThresholdMask(args)

	// Spot Geometry
	case "spot_measure_separation":
		return s.handleSpotMeasureSeparation(args)
	case "spot_check_alignment":
		return s.handleSpotCheckAlignment(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// loadRegion loads the frame at path and, when region is set, crops it.
func (s *Server) loadRegion(path string, region *imaging.Region) (*detection.Frame, error) {
	frame, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return frame, nil
	}
	return imaging.CropFrame(frame, *region)
}

// === Frame Information Handlers ===

type frameLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleFrameLoad(args json.RawMessage) (interface{}, error) {
	var a frameLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadFrameInfo(s.cache, a.Path)
}

type frameStatisticsArgs struct {
	Path   string          `json:"path"`
	Region *imaging.Region `json:"region,omitempty"`
}

func (s *Server) handleFrameStatistics(args json.RawMessage) (interface{}, error) {
	var a frameStatisticsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	frame, err := s.loadRegion(a.Path, a.Region)
	if err != nil {
		return nil, err
	}
	return imaging.Statistics(frame)
}

type frameSampleIntensityArgs struct {
	Path string `json:"path"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

func (s *Server) handleFrameSampleIntensity(args json.RawMessage) (interface{}, error) {
	var a frameSampleIntensityArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	frame, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.SampleIntensity(frame, a.X, a.Y)
}

type frameCropArgs struct {
	Path     string `json:"path"`
	X1       int    `json:"x1"`
	Y1       int    `json:"y1"`
	X2       int    `json:"x2"`
	Y2       int    `json:"y2"`
	Quadrant string `json:"quadrant"`
	Zoom     int    `json:"zoom"`
}

type frameCropResult struct {
	Region imaging.Region `json:"region"`
	*imaging.OverlayResult
}

func (s *Server) handleFrameCrop(args json.RawMessage) (interface{}, error) {
	var a frameCropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	frame, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	region := imaging.Region{X1: a.X1, Y1: a.Y1, X2: a.X2, Y2: a.Y2}
	if a.Quadrant != "" {
		region, err = imaging.CropQuadrant(frame.Width, frame.Height, a.Quadrant)
		if err != nil {
			return nil, err
		}
	}

	crop, err := imaging.CropFrame(frame, region)
	if err != nil {
		return nil, err
	}
	rendered, err := imaging.RenderOverlay(crop, nil, imaging.OverlayOptions{Zoom: a.Zoom})
	if err != nil {
		return nil, err
	}
	return &frameCropResult{Region: region, OverlayResult: rendered}, nil
}

// === Spot Detection Handlers ===

// detectArgs are the arguments shared by every tool that runs detection.
type detectArgs struct {
	Path          string          `json:"path"`
	Threshold     *int            `json:"threshold"`
	MaxDetections int             `json:"max_detections"`
	Radius        int             `json:"radius"`
	SmoothSigma   float64         `json:"smooth_sigma"`
	Region        *imaging.Region `json:"region,omitempty"`
}

// detectRun is a completed detection on a (possibly cropped) frame. Spot
// coordinates in result are relative to frame.
type detectRun struct {
	frame     *detection.Frame
	result    *detection.ResultSet
	threshold int
}

// detect loads, crops and optionally smooths the frame, then finds spots.
// When no threshold is given the frame's suggested threshold is used.
func (s *Server) detect(a detectArgs) (*detectRun, error) {
	frame, err := s.loadRegion(a.Path, a.Region)
	if err != nil {
		return nil, err
	}

	frame, err = imaging.Smooth(frame, a.SmoothSigma)
	if err != nil {
		return nil, err
	}

	var threshold int
	if a.Threshold != nil {
		threshold = *a.Threshold
	} else {
		stats, err := imaging.Statistics(frame)
		if err != nil {
			return nil, err
		}
		threshold = stats.SuggestedThreshold
	}

	result, err := detection.FindSpots(frame, detection.Options{
		Threshold:     threshold,
		MaxDetections: a.MaxDetections,
		Radius:        a.Radius,
	})
	if err != nil {
		return nil, err
	}
	return &detectRun{frame: frame, result: result, threshold: threshold}, nil
}

type findSpotsResult struct {
	*detection.ResultSet
	Threshold int             `json:"threshold"`
	Region    *imaging.Region `json:"region,omitempty"`
}

func (s *Server) handleFrameFindSpots(args json.RawMessage) (interface{}, error) {
	var a detectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	run, err := s.detect(a)
	if err != nil {
		return nil, err
	}
	if a.Region != nil {
		a.Region.Offset(run.result)
	}
	return &findSpotsResult{ResultSet: run.result, Threshold: run.threshold, Region: a.Region}, nil
}

type frameSpotOverlayArgs struct {
	detectArgs
	Zoom        int    `json:"zoom"`
	DisplayMin  int    `json:"display_min"`
	DisplayMax  int    `json:"display_max"`
	Marker      string `json:"marker"`
	MarkerSize  int    `json:"marker_size"`
	MarkerColor string `json:"marker_color"`
	ColorBy     string `json:"color_by"`
	Labels      bool   `json:"labels"`
	GridSpacing int    `json:"grid_spacing"`
}

type spotOverlayResult struct {
	*imaging.OverlayResult
	Count     int  `json:"count"`
	Truncated bool `json:"truncated"`
	Threshold int  `json:"threshold"`
}

func (s *Server) handleFrameSpotOverlay(args json.RawMessage) (interface{}, error) {
	var a frameSpotOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.MarkerColor == "" {
		a.MarkerColor = imaging.DefaultMarkerColor
	}

	run, err := s.detect(a.detectArgs)
	if err != nil {
		return nil, err
	}

	// The overlay is drawn on the crop, so spots stay crop-relative here.
	rendered, err := imaging.RenderOverlay(run.frame, run.result, imaging.OverlayOptions{
		Zoom:        a.Zoom,
		DisplayMin:  a.DisplayMin,
		DisplayMax:  a.DisplayMax,
		Marker:      a.Marker,
		MarkerSize:  a.MarkerSize,
		MarkerColor: a.MarkerColor,
		ColorBy:     a.ColorBy,
		Labels:      a.Labels,
		GridSpacing: a.GridSpacing,
	})
	if err != nil {
		return nil, err
	}
	return &spotOverlayResult{
		OverlayResult: rendered,
		Count:         run.result.Count,
		Truncated:     run.result.Truncated,
		Threshold:     run.threshold,
	}, nil
}

type frameThresholdMaskArgs struct {
	Path      string `json:"path"`
	Threshold int    `json:"threshold"`
}

func (s *Server) handleFrameThresholdMask(args json.RawMessage) (interface{}, error) {
	var a frameThresholdMaskArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	frame, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.ThresholdMask(frame, a.Threshold)
}

// === Spot Geometry Handlers ===

type spotPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p spotPosition) spot() detection.Spot {
	return detection.Spot{X: p.X, Y: p.Y}
}

type spotMeasureSeparationArgs struct {
	A spotPosition `json:"a"`
	B spotPosition `json:"b"`
}

func (s *Server) handleSpotMeasureSeparation(args json.RawMessage) (interface{}, error) {
	var a spotMeasureSeparationArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.MeasureSeparation(a.A.spot(), a.B.spot()), nil
}

type spotCheckAlignmentArgs struct {
	Spots     []spotPosition `json:"spots"`
	Tolerance float64        `json:"tolerance"`
}

func (s *Server) handleSpotCheckAlignment(args json.RawMessage) (interface{}, error) {
	var a spotCheckAlignmentArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Tolerance == 0 {
		a.Tolerance = 0.5
	}

	spots := make([]detection.Spot, len(a.Spots))
	for i, p := range a.Spots {
		spots[i] = p.spot()
	}
	return imaging.CheckAlignment(spots, a.Tolerance)
}
