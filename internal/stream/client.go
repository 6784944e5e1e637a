package stream

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// replyQueue is the number of replies buffered ahead of the writer.
const replyQueue = 16

var upgrader = websocket.Upgrader{}

// message is one websocket data message.
type message struct {
	kind int
	data []byte
}

// client is one websocket session.
type client struct {
	conn    *websocket.Conn
	svc     *Service
	session string

	read  chan message  // frames from the peer
	write chan message  // replies to the peer
	done  chan struct{} // closed when the writer exits
}

// serveStream upgrades the request to a websocket and starts the session.
func (s *Service) serveStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", c.Request.RemoteAddr, "error", err)
		return
	}
	conn.EnableWriteCompression(false)

	cl := &client{
		conn:    conn,
		svc:     s,
		session: uuid.NewString(),
		read:    make(chan message),
		write:   make(chan message, replyQueue),
		done:    make(chan struct{}),
	}
	s.track(cl)

	slog.Info("stream session opened", "session", cl.session, "remote", c.Request.RemoteAddr)

	// reader, detector and writer run concurrently; replies keep the order
	// frames arrived in.
	go cl.streamReader()
	go cl.process()
	go cl.streamWriter()
}

// pingPeriod is how often the writer pings the peer. It must be shorter
// than the read timeout so a healthy peer's pong arrives in time.
func pingPeriod(readTimeout time.Duration) time.Duration {
	return (readTimeout * 9) / 10
}

// streamReader reads messages from the websocket connection and forwards
// them to the read channel.
func (c *client) streamReader() {
	defer close(c.read)

	readTimeout := c.svc.ws.ReadTimeout()
	c.conn.SetReadLimit(c.svc.ws.ReadLimitBytes)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("stream read failed", "session", c.session, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		select {
		case c.read <- message{kind: kind, data: data}:
		case <-c.done:
			return
		}
	}
}

// process runs detection on each frame and queues the reply.
func (c *client) process() {
	defer close(c.write)

	for msg := range c.read {
		reply := c.handle(msg)
		select {
		case c.write <- reply:
		case <-c.done:
			return
		}
	}
}

func (c *client) handle(msg message) message {
	var fm FrameMessage
	if err := decodeMessage(msg.kind, msg.data, &fm); err != nil {
		c.svc.rejected.Add(1)
		return c.errorReply(msg.kind, 0, fmt.Errorf("malformed frame message: %w", err))
	}

	reply, err := c.svc.Process(c.session, &fm)
	if err != nil {
		return c.errorReply(msg.kind, fm.Seq, err)
	}

	data, err := encodeMessage(msg.kind, reply)
	if err != nil {
		return c.errorReply(msg.kind, fm.Seq, fmt.Errorf("failed to encode reply: %w", err))
	}
	slog.Debug("stream frame detected", "session", c.session, "seq", fm.Seq, "count", reply.Count)
	return message{kind: msg.kind, data: data}
}

func (c *client) errorReply(kind int, seq uint64, err error) message {
	slog.Debug("stream frame rejected", "session", c.session, "seq", seq, "error", err)

	em := ErrorMessage{Type: TypeError, Session: c.session, Seq: seq, Error: err.Error()}
	data, encErr := encodeMessage(kind, em)
	if encErr != nil {
		// ErrorMessage holds only strings and integers; fall back to text.
		return message{kind: websocket.TextMessage, data: []byte(err.Error())}
	}
	return message{kind: kind, data: data}
}

// streamWriter writes messages from the write channel to the websocket
// connection and keeps the peer alive with pings.
func (c *client) streamWriter() {
	ticker := time.NewTicker(pingPeriod(c.svc.ws.ReadTimeout()))
	defer func() {
		ticker.Stop()
		close(c.done)
		c.conn.Close()
		c.svc.untrack(c)
		slog.Info("stream session closed", "session", c.session)
	}()

	writeTimeout := c.svc.ws.WriteTimeout()
	for {
		select {
		case msg, ok := <-c.write:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One reply per websocket message; binary payloads cannot be
			// concatenated.
			w, err := c.conn.NextWriter(msg.kind)
			if err != nil {
				return
			}
			w.Write(msg.data)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
