// Package stream serves spot detection to live clients.
//
// Frames arrive as JSON or image bodies over HTTP, or as a continuous
// websocket stream of msgpack (binary) or JSON (text) messages. Every
// detection result is handed to a Publisher for downstream consumers.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ironsheep/spot-tools-mcp/internal/config"
	"github.com/ironsheep/spot-tools-mcp/internal/detection"
	"github.com/ironsheep/spot-tools-mcp/internal/emitter"
	"github.com/ironsheep/spot-tools-mcp/internal/imaging"
)

// httpSession is the session name results of one-shot HTTP requests are
// published under.
const httpSession = "http"

// Publisher receives every detection result.
type Publisher interface {
	Publish(emitter.Event) error
}

// statsPublisher is implemented by publishers that report connection state.
type statsPublisher interface {
	Stats() emitter.Stats
}

// Stats contains service counters.
type Stats struct {
	Frames        uint64 `json:"frames"`         // frames detected successfully
	Spots         uint64 `json:"spots"`          // spots found across all frames
	Rejected      uint64 `json:"rejected"`       // malformed frames or options
	PublishErrors uint64 `json:"publish_errors"` // results the publisher refused
	Sessions      int64  `json:"sessions"`       // open websocket sessions
}

// HealthStatus is reported by GET /healthz.
type HealthStatus struct {
	Status        string         `json:"status"` // "healthy" or "degraded"
	UptimeSeconds int64          `json:"uptime_seconds"`
	Stats         Stats          `json:"stats"`
	MQTT          *emitter.Stats `json:"mqtt,omitempty"`
}

// Service runs detection for HTTP requests and websocket sessions.
type Service struct {
	defaults  config.DetectionConfig
	ws        config.WebSocketConfig
	publisher Publisher
	started   time.Time

	// finders holds *detection.Finder values. A Finder is borrowed for
	// exactly one detection call.
	finders sync.Pool

	frames        atomic.Uint64
	spots         atomic.Uint64
	rejected      atomic.Uint64
	publishErrors atomic.Uint64
	httpSeq       atomic.Uint64

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewService creates a Service. A nil publisher discards results.
func NewService(cfg *config.Config, publisher Publisher) *Service {
	if publisher == nil {
		publisher = emitter.Nop{}
	}
	s := &Service{
		defaults:  cfg.Detection,
		ws:        cfg.WebSocket,
		publisher: publisher,
		started:   time.Now(),
		clients:   make(map[*client]struct{}),
	}
	s.finders.New = func() any { return new(detection.Finder) }
	return s
}

// Process runs detection on one frame message. Fields the message leaves
// unset fall back to the configured detection defaults.
//
// Errors wrap detection.ErrInvalidInput when the frame or its options are
// malformed.
func (s *Service) Process(session string, m *FrameMessage) (*SpotsMessage, error) {
	frame, err := m.Frame()
	if err != nil {
		s.rejected.Add(1)
		return nil, err
	}
	opts := s.options(m)

	src := frame
	if s.defaults.SmoothSigma > 0 {
		if src, err = imaging.Smooth(frame, s.defaults.SmoothSigma); err != nil {
			return nil, fmt.Errorf("failed to smooth frame: %w", err)
		}
	}

	d := s.finders.Get().(*detection.Finder)
	defer s.finders.Put(d)

	if err := d.Reset(opts); err != nil {
		s.rejected.Add(1)
		return nil, err
	}
	result, err := d.Find(src)
	if err != nil {
		s.rejected.Add(1)
		return nil, err
	}

	s.frames.Add(1)
	s.spots.Add(uint64(result.Count))

	seq := m.Seq
	if session == httpSession && seq == 0 {
		seq = s.httpSeq.Add(1)
	}

	if err := s.publisher.Publish(emitter.NewEvent(session, seq, frame, opts.Threshold, result)); err != nil {
		s.publishErrors.Add(1)
		slog.Warn("failed to publish spots", "session", session, "seq", seq, "error", err)
	}

	return newSpotsMessage(session, seq, opts.Threshold, result), nil
}

func (s *Service) options(m *FrameMessage) detection.Options {
	opts := detection.Options{
		Threshold:     s.defaults.Threshold,
		MaxDetections: s.defaults.MaxDetections,
		Radius:        s.defaults.Radius,
	}
	if m.Threshold != nil {
		opts.Threshold = *m.Threshold
	}
	if m.MaxDetections != 0 {
		opts.MaxDetections = m.MaxDetections
	}
	if m.Radius != 0 {
		opts.Radius = m.Radius
	}
	return opts
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	sessions := int64(len(s.clients))
	s.mu.Unlock()

	return Stats{
		Frames:        s.frames.Load(),
		Spots:         s.spots.Load(),
		Rejected:      s.rejected.Load(),
		PublishErrors: s.publishErrors.Load(),
		Sessions:      sessions,
	}
}

// Health reports the service status. The service is degraded when its
// publisher reports a lost broker connection.
func (s *Service) Health() HealthStatus {
	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Stats:         s.Stats(),
	}
	if p, ok := s.publisher.(statsPublisher); ok {
		mqtt := p.Stats()
		status.MQTT = &mqtt
		if !mqtt.Connected {
			status.Status = "degraded"
		}
	}
	return status
}

// CloseSessions sends a going-away close frame to every open websocket
// session and closes its connection. http.Server.Shutdown does not track
// hijacked connections, so callers shutting down should call this too.
func (s *Service) CloseSessions() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.conn.Close()
	}
	if len(clients) > 0 {
		slog.Info("closed websocket sessions", "count", len(clients))
	}
}

func (s *Service) track(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Service) untrack(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// isInvalid reports whether err was caused by the request rather than the
// service.
func isInvalid(err error) bool {
	return errors.Is(err, detection.ErrInvalidInput)
}
