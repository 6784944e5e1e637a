package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ironsheep/spot-tools-mcp/internal/config"
	"github.com/ironsheep/spot-tools-mcp/internal/detection"
	"github.com/ironsheep/spot-tools-mcp/internal/emitter"
	"github.com/ironsheep/spot-tools-mcp/internal/imaging"
	"github.com/ironsheep/spot-tools-mcp/internal/synth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []emitter.Event
	err    error
}

func (p *recordingPublisher) Publish(ev emitter.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []emitter.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]emitter.Event(nil), p.events...)
}

// statsRecordingPublisher also reports broker state.
type statsRecordingPublisher struct {
	recordingPublisher
	connected bool
}

func (p *statsRecordingPublisher) Stats() emitter.Stats {
	return emitter.Stats{Connected: p.connected, Published: map[string]uint64{}}
}

// twoSpotFrame has spots at (20,16) and (44,32) on a background of 100.
func twoSpotFrame() *detection.Frame {
	return synth.Blobs(64, 48, 100, []synth.Blob{
		{X: 20, Y: 16, Sigma: 1.2, Peak: 4000},
		{X: 44, Y: 32, Sigma: 1.2, Peak: 3000},
	})
}

func twoSpotMessage(seq uint64) FrameMessage {
	f := twoSpotFrame()
	threshold := 1000
	return FrameMessage{Seq: seq, Width: f.Width, Height: f.Height, Pixels: f.Pix, Threshold: &threshold}
}

func newTestService(t *testing.T, pub Publisher) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.Detection.Threshold = 500
	return NewService(cfg, pub)
}

func checkTwoSpots(t *testing.T, reply *SpotsMessage) {
	t.Helper()
	if reply.Type != TypeSpots {
		t.Errorf("Type: got %q, want %q", reply.Type, TypeSpots)
	}
	if reply.Count != 2 || len(reply.Spots) != 2 {
		t.Fatalf("Count: got %d (%d spots), want 2", reply.Count, len(reply.Spots))
	}
	want := [][2]float64{{20, 16}, {44, 32}}
	for i, w := range want {
		s := reply.Spots[i]
		if math.Abs(s.X-w[0]) > 1e-6 || math.Abs(s.Y-w[1]) > 1e-6 {
			t.Errorf("spot %d at (%.4f, %.4f), want (%g, %g)", i, s.X, s.Y, w[0], w[1])
		}
	}
}

func TestService_Process(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestService(t, pub)

	m := twoSpotMessage(9)
	reply, err := s.Process("cam1", &m)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	checkTwoSpots(t, reply)
	if reply.Session != "cam1" || reply.Seq != 9 || reply.Threshold != 1000 {
		t.Errorf("reply header: %+v", reply)
	}

	events := pub.Events()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	if events[0].Session != "cam1" || events[0].Seq != 9 || events[0].Count != 2 {
		t.Errorf("event: %+v", events[0])
	}

	stats := s.Stats()
	if stats.Frames != 1 || stats.Spots != 2 || stats.Rejected != 0 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestService_ProcessDefaults(t *testing.T) {
	s := newTestService(t, nil)

	m := twoSpotMessage(0)
	m.Threshold = nil
	m.MaxDetections = 1

	reply, err := s.Process("cam1", &m)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if reply.Threshold != 500 {
		t.Errorf("Threshold: got %d, want configured default 500", reply.Threshold)
	}
	if reply.Count != 1 || !reply.Truncated {
		t.Errorf("got count %d truncated %v, want 1 and true", reply.Count, reply.Truncated)
	}
}

func TestService_ProcessInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *FrameMessage)
	}{
		{"short buffer", func(m *FrameMessage) { m.Pixels = m.Pixels[:10] }},
		{"zero width", func(m *FrameMessage) { m.Width = 0 }},
		{"negative max detections", func(m *FrameMessage) { m.MaxDetections = -1 }},
		{"negative radius", func(m *FrameMessage) { m.Radius = -2 }},
	}

	pub := &recordingPublisher{}
	s := newTestService(t, pub)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := twoSpotMessage(1)
			tt.mutate(&m)
			if _, err := s.Process("cam1", &m); !errors.Is(err, detection.ErrInvalidInput) {
				t.Errorf("got %v, want ErrInvalidInput", err)
			}
		})
	}

	if got := s.Stats().Rejected; got != uint64(len(tests)) {
		t.Errorf("Rejected: got %d, want %d", got, len(tests))
	}
	if len(pub.Events()) != 0 {
		t.Error("rejected frames must not be published")
	}
}

func TestService_ProcessSmoothed(t *testing.T) {
	cfg := config.Default()
	cfg.Detection.SmoothSigma = 1
	s := NewService(cfg, nil)

	m := twoSpotMessage(1)
	reply, err := s.Process("cam1", &m)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if reply.Count != 2 {
		t.Fatalf("Count: got %d, want 2", reply.Count)
	}
	if sp := reply.Spots[0]; math.Abs(sp.X-20) > 0.05 || math.Abs(sp.Y-16) > 0.05 {
		t.Errorf("smoothed spot at (%.4f, %.4f), want near (20, 16)", sp.X, sp.Y)
	}
	// Events and replies describe the submitted frame, not the smoothed copy.
	if m.Pixels[16*64+20] != twoSpotFrame().Pix[16*64+20] {
		t.Error("smoothing modified the submitted pixels")
	}
}

func TestService_PublishErrorCounted(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	s := newTestService(t, pub)

	m := twoSpotMessage(1)
	if _, err := s.Process("cam1", &m); err != nil {
		t.Fatalf("publish failures must not fail detection: %v", err)
	}
	if got := s.Stats().PublishErrors; got != 1 {
		t.Errorf("PublishErrors: got %d, want 1", got)
	}
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		pub        Publisher
		wantStatus string
		wantMQTT   bool
	}{
		{"no broker", nil, "healthy", false},
		{"broker connected", &statsRecordingPublisher{connected: true}, "healthy", true},
		{"broker lost", &statsRecordingPublisher{connected: false}, "degraded", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestService(t, tt.pub).Router()

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status: got %d, want 200", w.Code)
			}
			var health HealthStatus
			if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if health.Status != tt.wantStatus {
				t.Errorf("Status: got %q, want %q", health.Status, tt.wantStatus)
			}
			if (health.MQTT != nil) != tt.wantMQTT {
				t.Errorf("MQTT present: got %v, want %v", health.MQTT != nil, tt.wantMQTT)
			}
		})
	}
}

func TestPostSpots(t *testing.T) {
	pub := &recordingPublisher{}
	router := newTestService(t, pub).Router()

	body, _ := json.Marshal(twoSpotMessage(0))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/spots", bytes.NewReader(body)))

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", w.Code, w.Body.String())
	}
	var reply SpotsMessage
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	checkTwoSpots(t, &reply)
	if reply.Session != httpSession || reply.Seq != 1 {
		t.Errorf("got session %q seq %d, want %q and 1", reply.Session, reply.Seq, httpSession)
	}
	if len(pub.Events()) != 1 {
		t.Errorf("published %d events, want 1", len(pub.Events()))
	}
}

func TestPostSpots_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"width": `, http.StatusBadRequest},
		{"pixel out of range", `{"width":1,"height":1,"pixels":[70000]}`, http.StatusBadRequest},
		{"size mismatch", `{"width":4,"height":4,"pixels":[1,2,3]}`, http.StatusBadRequest},
		{"negative radius", `{"width":1,"height":1,"pixels":[5],"radius":-1}`, http.StatusBadRequest},
	}

	router := newTestService(t, nil).Router()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/spots", strings.NewReader(tt.body)))
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Errorf("body has no error field: %s", w.Body.String())
			}
		})
	}
}

func TestPostSpots_TooLarge(t *testing.T) {
	cfg := config.Default()
	cfg.WebSocket.ReadLimitBytes = 64
	router := NewService(cfg, nil).Router()

	body, _ := json.Marshal(twoSpotMessage(0))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/spots", bytes.NewReader(body)))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", w.Code)
	}
}

func TestPostSpotsImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, imaging.Gray16(twoSpotFrame())); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	router := newTestService(t, nil).Router()

	tests := []struct {
		name  string
		query string
		body  []byte
		want  int
	}{
		{"png with threshold", "?threshold=1000", buf.Bytes(), http.StatusOK},
		{"png with defaults", "", buf.Bytes(), http.StatusOK},
		{"not an image", "?threshold=1000", []byte("hello"), http.StatusUnsupportedMediaType},
		{"bad threshold", "?threshold=high", buf.Bytes(), http.StatusBadRequest},
		{"bad radius", "?radius=1.5", buf.Bytes(), http.StatusBadRequest},
		{"negative max detections", "?max_detections=-3", buf.Bytes(), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/spots/image"+tt.query, bytes.NewReader(tt.body))
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status: got %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			var reply SpotsMessage
			if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			checkTwoSpots(t, &reply)
		})
	}
}

// dialStream starts the service on a test server and opens a stream session.
func dialStream(t *testing.T, s *Service) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial stream: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, kind int, payload []byte, out interface{}) {
	t.Helper()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(kind, payload); err != nil {
		t.Fatalf("failed to write message: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	gotKind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read reply: %v", err)
	}
	if gotKind != kind {
		t.Fatalf("reply message type: got %d, want %d", gotKind, kind)
	}
	if err := decodeMessage(kind, data, out); err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
}

func TestStream_Msgpack(t *testing.T) {
	pub := &recordingPublisher{}
	conn := dialStream(t, newTestService(t, pub))

	for seq := uint64(1); seq <= 3; seq++ {
		payload, err := encodeMessage(websocket.BinaryMessage, twoSpotMessage(seq))
		if err != nil {
			t.Fatalf("failed to encode frame: %v", err)
		}

		var reply SpotsMessage
		roundTrip(t, conn, websocket.BinaryMessage, payload, &reply)
		checkTwoSpots(t, &reply)
		if reply.Seq != seq {
			t.Errorf("Seq: got %d, want %d", reply.Seq, seq)
		}
		if reply.Session == "" || reply.Session == httpSession {
			t.Errorf("Session: got %q, want a generated id", reply.Session)
		}
	}

	events := pub.Events()
	if len(events) != 3 {
		t.Fatalf("published %d events, want 3", len(events))
	}
	if events[0].Session != events[2].Session {
		t.Error("events of one session carry different session ids")
	}
}

func TestStream_JSONAndErrors(t *testing.T) {
	s := newTestService(t, nil)
	conn := dialStream(t, s)

	var em ErrorMessage
	roundTrip(t, conn, websocket.TextMessage, []byte("not json"), &em)
	if em.Type != TypeError || !strings.Contains(em.Error, "malformed frame message") {
		t.Errorf("malformed message reply: %+v", em)
	}

	bad, _ := json.Marshal(FrameMessage{Seq: 4, Width: 3, Height: 3, Pixels: []uint16{1}})
	em = ErrorMessage{}
	roundTrip(t, conn, websocket.TextMessage, bad, &em)
	if em.Type != TypeError || em.Seq != 4 || !strings.Contains(em.Error, "invalid input") {
		t.Errorf("invalid frame reply: %+v", em)
	}

	garbage := []byte{0xc1, 0xc1, 0xc1}
	em = ErrorMessage{}
	roundTrip(t, conn, websocket.BinaryMessage, garbage, &em)
	if em.Type != TypeError {
		t.Errorf("garbage msgpack reply: %+v", em)
	}

	// The session survives rejected frames.
	good, _ := json.Marshal(twoSpotMessage(5))
	var reply SpotsMessage
	roundTrip(t, conn, websocket.TextMessage, good, &reply)
	checkTwoSpots(t, &reply)

	if got := s.Stats().Rejected; got != 3 {
		t.Errorf("Rejected: got %d, want 3", got)
	}
}

func waitSessions(t *testing.T, s *Service, want int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Stats().Sessions != want {
		if time.Now().After(deadline) {
			t.Fatalf("Sessions: got %d, want %d", s.Stats().Sessions, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestService_CloseSessions(t *testing.T) {
	s := newTestService(t, nil)
	conn := dialStream(t, s)
	waitSessions(t, s, 1)

	s.CloseSessions()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("got %v, want going-away close", err)
	}
	waitSessions(t, s, 0)
}

func TestPingPeriod(t *testing.T) {
	if got := pingPeriod(time.Minute); got != 54*time.Second {
		t.Errorf("pingPeriod(1m) = %s, want 54s", got)
	}
}
