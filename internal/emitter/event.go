// Package emitter fans detection results out to downstream consumers.
package emitter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ironsheep/spot-tools-mcp/internal/detection"
)

// Event is the result of detection on one frame of a session.
type Event struct {
	Session   string           `json:"session"`
	Seq       uint64           `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Threshold int              `json:"threshold"`
	Count     int              `json:"count"`
	Truncated bool             `json:"truncated"`
	Spots     []detection.Spot `json:"spots"`
}

// NewEvent builds an Event from a detection result.
func NewEvent(session string, seq uint64, frame *detection.Frame, threshold int, result *detection.ResultSet) Event {
	return Event{
		Session:   session,
		Seq:       seq,
		Timestamp: time.Now().UTC(),
		Width:     frame.Width,
		Height:    frame.Height,
		Threshold: threshold,
		Count:     result.Count,
		Truncated: result.Truncated,
		Spots:     result.Spots,
	}
}

// Topic returns the topic the event is published on: <prefix>/<session>/spots.
func (e Event) Topic(prefix string) string {
	return fmt.Sprintf("%s/%s/spots", prefix, e.Session)
}

// ToJSON encodes the event payload.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

// Publish implements the publisher contract and does nothing.
func (Nop) Publish(Event) error { return nil }
