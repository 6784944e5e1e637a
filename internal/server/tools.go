package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Shared schema fragments.
var (
	pathProperty = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the frame file (PNG, TIFF, JPEG or GIF; 16-bit grayscale keeps full range)",
	}

	regionProperty = map[string]interface{}{
		"type":        "object",
		"description": "Optional region of interest; x1,y1 inclusive, x2,y2 exclusive. Spot coordinates are still reported in full-frame pixels.",
		"properties": map[string]interface{}{
			"x1": map[string]interface{}{"type": "integer"},
			"y1": map[string]interface{}{"type": "integer"},
			"x2": map[string]interface{}{"type": "integer"},
			"y2": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"x1", "y1", "x2", "y2"},
	}

	spotProperty = map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"x": map[string]interface{}{"type": "number"},
			"y": map[string]interface{}{"type": "number"},
		},
		"required": []string{"x", "y"},
	}
)

// detectionProperties returns the schema properties shared by every tool that
// runs spot detection.
func detectionProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": pathProperty,
		"threshold": map[string]interface{}{
			"type":        "integer",
			"description": "Pixels must be strictly brighter than this to seed or weight a spot. Omit to use the frame's suggested threshold (median + 5 stddev).",
		},
		"max_detections": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum spots to report; the scan stops once reached. Default 1000",
			"default":     1000,
		},
		"radius": map[string]interface{}{
			"type":        "integer",
			"description": "Half-width of the centroid and suppression window. Default 2 (5x5 window)",
			"default":     2,
		},
		"smooth_sigma": map[string]interface{}{
			"type":        "number",
			"description": "Gaussian prefilter sigma in pixels; 0 disables. Typical 0.7-1.5 for noisy frames",
			"default":     0,
		},
		"region": regionProperty,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	overlayProps := detectionProperties()
	overlayProps["zoom"] = map[string]interface{}{
		"type":        "integer",
		"description": "Zoom step: 0 = 1x, n > 0 = (n+1)x, n < 0 = 1/(1-n)x. Range -8..8. Default 0",
		"default":     0,
	}
	overlayProps["display_min"] = map[string]interface{}{
		"type":        "integer",
		"description": "Intensity shown as black. With display_max 0 too, the frame's own range is used",
	}
	overlayProps["display_max"] = map[string]interface{}{
		"type":        "integer",
		"description": "Intensity shown as white",
	}
	overlayProps["marker"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"cross", "circle"},
		"description": "Marker shape. Default cross",
		"default":     "cross",
	}
	overlayProps["marker_size"] = map[string]interface{}{
		"type":        "integer",
		"description": "Marker half-width in output pixels. Default 4",
		"default":     4,
	}
	overlayProps["marker_color"] = map[string]interface{}{
		"type":        "string",
		"description": "Hex marker colour for color_by=fixed. Default #00FF00",
		"default":     "#00FF00",
	}
	overlayProps["color_by"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"fixed", "index", "peak"},
		"description": "fixed: one colour; index: distinct colour per spot; peak: dim-to-bright ramp by peak intensity",
		"default":     "fixed",
	}
	overlayProps["labels"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Draw each spot's index next to its marker",
		"default":     false,
	}
	overlayProps["grid_spacing"] = map[string]interface{}{
		"type":        "integer",
		"description": "Draw a coordinate grid every N frame pixels; 0 disables",
		"default":     0,
	}

	return []Tool{
		// Frame Information
		{
			Name:        "frame_load",
			Description: "Load a camera frame file and return its dimensions, format, bit depth and maximum representable intensity.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "frame_statistics",
			Description: "Compute min, max, mean, standard deviation, median and 99th percentile of frame intensities, plus a suggested detection threshold. Use this before frame_find_spots to choose a threshold.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty,
					"region": regionProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "frame_sample_intensity",
			Description: "Get the raw intensity value at a specific pixel.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "Column (0-based, from left)",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Row (0-based, from top)",
					},
				},
				"required": []string{"path", "x", "y"},
			},
		},
		{
			Name:        "frame_crop",
			Description: "Render a rectangular region or a named part of a frame as a display-scaled PNG. Use this to inspect individual spots up close.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"x1": map[string]interface{}{
						"type":        "integer",
						"description": "Left edge X coordinate (0-based)",
					},
					"y1": map[string]interface{}{
						"type":        "integer",
						"description": "Top edge Y coordinate (0-based)",
					},
					"x2": map[string]interface{}{
						"type":        "integer",
						"description": "Right edge X coordinate (exclusive)",
					},
					"y2": map[string]interface{}{
						"type":        "integer",
						"description": "Bottom edge Y coordinate (exclusive)",
					},
					"quadrant": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"top-left", "top-right", "bottom-left", "bottom-right", "top-half", "bottom-half", "left-half", "right-half", "center"},
						"description": "Named region to extract instead of x1..y2",
					},
					"zoom": map[string]interface{}{
						"type":        "integer",
						"description": "Zoom step: 0 = 1x, n > 0 = (n+1)x, n < 0 = 1/(1-n)x. Default 0",
						"default":     0,
					},
				},
				"required": []string{"path"},
			},
		},

		// Spot Detection
		{
			Name:        "frame_find_spots",
			Description: "Find bright spots in a frame and return their sub-pixel centroid positions. A pixel seeds a spot when it is brighter than the threshold and at least as bright as its 8 neighbours; the position is the intensity-weighted centroid of the surrounding window. Results are in row-major scan order and capped at max_detections.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": detectionProperties(),
				"required":   []string{"path"},
			},
		},
		{
			Name:        "frame_spot_overlay",
			Description: "Run spot detection and return the frame as PNG with a marker drawn at every detected spot. Use this to check that a threshold finds the right spots.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": overlayProps,
				"required":   []string{"path"},
			},
		},
		{
			Name:        "frame_threshold_mask",
			Description: "Return a black and white PNG showing which pixels are brighter than the threshold, with the count and fraction of such pixels. A mostly white mask means the threshold is inside the background.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"threshold": map[string]interface{}{
						"type":        "integer",
						"description": "Intensity threshold",
					},
				},
				"required": []string{"path", "threshold"},
			},
		},

		// Spot Geometry
		{
			Name:        "spot_measure_separation",
			Description: "Measure the sub-pixel distance and angle from spot a to spot b, as returned by frame_find_spots.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"a": spotProperty,
					"b": spotProperty,
				},
				"required": []string{"a", "b"},
			},
		},
		{
			Name:        "spot_check_alignment",
			Description: "Check whether spots lie on a common row (horizontal) or column (vertical) within a tolerance on the coordinate standard deviation.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"spots": map[string]interface{}{
						"type":        "array",
						"description": "Spot positions to check",
						"items":       spotProperty,
					},
					"tolerance": map[string]interface{}{
						"type":        "number",
						"description": "Maximum coordinate standard deviation in pixels. Default 0.5",
						"default":     0.5,
					},
				},
				"required": []string{"spots"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
