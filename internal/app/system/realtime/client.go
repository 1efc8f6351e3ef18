package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/taskhub/internal/app/system/metrics"
	"github.com/dalemusser/taskhub/internal/app/system/timeouts"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10

	// DefaultSendBuffer is the number of frames queued per session before
	// further pushes to it are dropped.
	DefaultSendBuffer = 32
)

// EventHandler handles one inbound event from a client.
type EventHandler func(c *Client, ev Event)

// Client is one WebSocket connection. Reads happen on the goroutine that
// calls Run; writes on a second goroutine fed by a bounded queue so a slow
// reader never blocks a dispatcher.
type Client struct {
	id      string
	conn    *websocket.Conn
	reg     *Registry
	handle  EventHandler
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewClient wraps conn. bufSize <= 0 uses DefaultSendBuffer.
func NewClient(conn *websocket.Conn, reg *Registry, handle EventHandler, bufSize int, m *metrics.Metrics, logger *zap.Logger) *Client {
	if bufSize <= 0 {
		bufSize = DefaultSendBuffer
	}
	id := uuid.NewString()
	return &Client{
		id:      id,
		conn:    conn,
		reg:     reg,
		handle:  handle,
		send:    make(chan []byte, bufSize),
		done:    make(chan struct{}),
		metrics: m,
		log:     logger.With(zap.String("session_id", id)),
	}
}

// ID is the session identifier used in the presence registry.
func (c *Client) ID() string { return c.id }

// Log returns the session-scoped logger.
func (c *Client) Log() *zap.Logger { return c.log }

// Send queues a frame. It never blocks: a full queue or a closed client drops the frame.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Reply sends an event to this session only.
func (c *Client) Reply(name string, data any) {
	ev, err := NewEvent(name, data)
	if err != nil {
		c.log.Warn("realtime: encode reply failed", zap.Error(err))
		return
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		c.log.Warn("realtime: encode reply failed", zap.Error(err))
		return
	}
	if !c.Send(frame) {
		c.metrics.PushDropped()
	}
}

// Run registers the session, serves it until the peer goes away, then
// removes every trace of it from the registry.
func (c *Client) Run() {
	c.reg.Connect(c.id, c)
	c.metrics.ConnectionOpened()
	c.log.Debug("realtime: session connected")

	go c.writePump()
	c.readPump()
	c.Close()
}

// Close tears the session down. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.reg.Disconnect(c.id)
		_ = c.conn.Close()
		c.metrics.ConnectionClosed()
		c.log.Debug("realtime: session closed")
	})
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				c.log.Debug("realtime: read failed", zap.Error(err))
			}
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Name == "" {
			c.Reply(EventError, map[string]string{"message": "malformed event"})
			continue
		}
		c.handle(c, ev)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeouts.Write()))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeouts.Write()))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("realtime: write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(timeouts.Write()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
