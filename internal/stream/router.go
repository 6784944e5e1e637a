package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ironsheep/spot-tools-mcp/internal/imaging"
)

// Router returns the HTTP handler for the service:
//
//	GET  /healthz          status and counters
//	POST /v1/spots         JSON FrameMessage body
//	POST /v1/spots/image   PNG/TIFF/JPEG/GIF body, options in the query string
//	GET  /v1/stream        websocket frame stream
func (s *Service) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", s.getHealth)
	router.POST("/v1/spots", s.postSpots)
	router.POST("/v1/spots/image", s.postSpotsImage)
	router.GET("/v1/stream", s.serveStream)

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Service) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.Health())
}

func (s *Service) postSpots(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.ws.ReadLimitBytes)

	var m FrameMessage
	if err := c.ShouldBindJSON(&m); err != nil {
		s.rejected.Add(1)
		abortBody(c, err, http.StatusBadRequest)
		return
	}
	s.respond(c, &m)
}

func (s *Service) postSpotsImage(c *gin.Context) {
	var m FrameMessage
	if err := bindQuery(c, &m); err != nil {
		s.rejected.Add(1)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, s.ws.ReadLimitBytes)
	frame, format, err := imaging.DecodeFrame(body)
	if err != nil {
		s.rejected.Add(1)
		abortBody(c, err, http.StatusUnsupportedMediaType)
		return
	}
	slog.Debug("decoded image body", "format", format, "width", frame.Width, "height", frame.Height)

	m.Width, m.Height, m.Pixels = frame.Width, frame.Height, frame.Pix
	s.respond(c, &m)
}

func (s *Service) respond(c *gin.Context, m *FrameMessage) {
	reply, err := s.Process(httpSession, m)
	if err != nil {
		status := http.StatusInternalServerError
		if isInvalid(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reply)
}

// abortBody reports a body that could not be read. Oversized bodies get 413
// regardless of status.
func abortBody(c *gin.Context, err error, status int) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	c.JSON(status, gin.H{"error": fmt.Sprintf("malformed request body: %v", err)})
}

// bindQuery reads the optional threshold, max_detections and radius query
// parameters.
func bindQuery(c *gin.Context, m *FrameMessage) error {
	if v, ok := c.GetQuery("threshold"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("threshold must be an integer: %q", v)
		}
		m.Threshold = &n
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"max_detections", &m.MaxDetections},
		{"radius", &m.Radius},
	} {
		v, ok := c.GetQuery(p.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer: %q", p.name, v)
		}
		*p.dst = n
	}
	return nil
}
