package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize is enough for SDP offers with many candidates.
	DefaultMaxMessageSize = 64 * 1024

	// DefaultSendQueueSize bounds the frames buffered for a slow peer.
	DefaultSendQueueSize = 256
)

// Client is a wrapper for a single websocket connection (a participant).
type Client struct {
	// ID identifies the connection in logs.
	ID string

	// Conn is the websocket connection. Nil in registry-only tests.
	Conn *websocket.Conn

	// RoomID and Slot are set by Hub.Join.
	RoomID string
	Slot   int

	// Send is a buffered channel for all outbound frames. Writes to it never
	// block; a full queue disconnects the client.
	Send chan []byte

	kickOnce sync.Once
	kicked   chan struct{}
}

// NewClient creates a client with an outbound queue of queueSize frames.
func NewClient(conn *websocket.Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	return &Client{
		ID:     uuid.NewString(),
		Conn:   conn,
		Slot:   -1,
		Send:   make(chan []byte, queueSize),
		kicked: make(chan struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// kick drops the connection. The read pump notices and runs the departure
// path, so the registry is never touched from here.
func (c *Client) kick() {
	c.kickOnce.Do(func() {
		close(c.kicked)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// Kicked is closed once the client has been disconnected for backpressure.
func (c *Client) Kicked() <-chan struct{} {
	return c.kicked
}

// writePump pumps frames from the send queue to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump(log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The relay closed the queue on departure.
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("write failed", "client", c.ID, "err", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
