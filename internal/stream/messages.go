package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
)

// Message types carried in the "type" field of replies.
const (
	TypeSpots = "spots"
	TypeError = "error"
)

// FrameMessage is one frame submitted for detection. It is the body of
// POST /v1/spots and the payload of every websocket message. The json tags
// name the fields in both JSON and msgpack encodings.
type FrameMessage struct {
	Seq           uint64   `json:"seq,omitempty"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`
	Pixels        []uint16 `json:"pixels"` // row-major, Width*Height values
	Threshold     *int     `json:"threshold,omitempty"`
	MaxDetections int      `json:"max_detections,omitempty"`
	Radius        int      `json:"radius,omitempty"`
}

// Frame validates the message dimensions and wraps its pixels.
func (m *FrameMessage) Frame() (*detection.Frame, error) {
	return detection.NewFrame(m.Pixels, m.Width, m.Height)
}

// SpotsMessage is the reply to a detected frame.
type SpotsMessage struct {
	Type      string           `json:"type"`
	Session   string           `json:"session"`
	Seq       uint64           `json:"seq"`
	Threshold int              `json:"threshold"`
	Count     int              `json:"count"`
	Truncated bool             `json:"truncated"`
	Spots     []detection.Spot `json:"spots"`
}

func newSpotsMessage(session string, seq uint64, threshold int, result *detection.ResultSet) *SpotsMessage {
	return &SpotsMessage{
		Type:      TypeSpots,
		Session:   session,
		Seq:       seq,
		Threshold: threshold,
		Count:     result.Count,
		Truncated: result.Truncated,
		Spots:     result.Spots,
	}
}

// ErrorMessage is the reply to a frame that could not be processed. The
// session stays open.
type ErrorMessage struct {
	Type    string `json:"type"`
	Session string `json:"session"`
	Seq     uint64 `json:"seq,omitempty"`
	Error   string `json:"error"`
}

// decodeMessage decodes a websocket payload into v: msgpack for binary
// messages, JSON for text messages.
func decodeMessage(kind int, data []byte, v interface{}) error {
	switch kind {
	case websocket.BinaryMessage:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		return dec.Decode(v)
	case websocket.TextMessage:
		return json.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported message type %d", kind)
	}
}

// encodeMessage encodes v in the encoding matching kind.
func encodeMessage(kind int, v interface{}) ([]byte, error) {
	if kind != websocket.BinaryMessage {
		return json.Marshal(v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
