package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kunalsinghdadhwal/axi-vid/backend/internal/metrics"
)

// RelayConfig bounds a single signaling link.
type RelayConfig struct {
	MaxMessageSize int64
	SendQueueSize  int
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = DefaultSendQueueSize
	}
	return c
}

// Relay is the server side of the signaling protocol. One Relay serves every
// link; per-link state lives in the Client.
type Relay struct {
	hub     *Hub
	cfg     RelayConfig
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewRelay(hub *Hub, cfg RelayConfig, logger *slog.Logger, m *metrics.Metrics) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		hub:     hub,
		cfg:     cfg.withDefaults(),
		log:     logger,
		metrics: m,
	}
}

// Serve binds an upgraded connection to roomID and runs it until the
// participant departs. It blocks for the lifetime of the link.
func (r *Relay) Serve(conn *websocket.Conn, roomID string) {
	c := NewClient(conn, r.cfg.SendQueueSize)
	log := r.log.With("client", c.ID, "room", roomID, "remote", conn.RemoteAddr().String())

	if _, err := r.hub.Join(roomID, c); err != nil {
		log.Info("rejecting connection", "err", err)
		r.reject(conn, err)
		return
	}

	go c.writePump(log)
	r.readPump(c, log)
}

// reject writes a terminal error frame and closes the link.
func (r *Relay) reject(conn *websocket.Conn, err error) {
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if werr := conn.WriteMessage(websocket.TextMessage, errorFrame(err.Error())); werr != nil {
		return
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, err.Error()))
}

// readPump pumps frames from the websocket connection into the room.
//
// The application runs readPump in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (r *Relay) readPump(c *Client, log *slog.Logger) {
	defer r.depart(c, log)

	c.Conn.SetReadLimit(r.cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("read failed", "err", err)
			}
			return
		}

		if !r.handleFrame(c, data, log) {
			return
		}
	}
}

// handleFrame processes one inbound frame. It returns false when the
// participant has left voluntarily.
func (r *Relay) handleFrame(c *Client, data []byte, log *slog.Logger) bool {
	env, err := ParseEnvelope(data)
	if err != nil {
		r.metrics.Inc(metrics.MalformedMessages)
		log.Debug("malformed frame", "err", err)
		r.reply(c, errorFrame(err.Error()), log)
		return true
	}

	switch {
	case isRelayType(env.Type):
		if !r.hub.BroadcastExcept(c.RoomID, c.Slot, data) {
			log.Debug("frame dropped, no peer", "type", env.Type)
		}
	case env.Type == MessageTypeLeave:
		log.Info("client signaled leave")
		return false
	case env.Type == MessageTypePing:
		r.reply(c, pongFrame, log)
	default:
		r.metrics.Inc(metrics.MalformedMessages)
		log.Debug("unknown message type", "type", env.Type)
		r.reply(c, errorFrame("unknown message type: "+env.Type), log)
	}
	return true
}

// reply queues a frame for the sender only.
func (r *Relay) reply(c *Client, frame []byte, log *slog.Logger) {
	if !c.enqueue(frame) {
		r.metrics.Inc(metrics.BackpressureDisconnect)
		log.Warn("send queue full, disconnecting client")
		c.kick()
	}
}

// depart frees the slot, notifies the remaining peer and stops the write
// pump. It runs exactly once, from the read goroutine.
func (r *Relay) depart(c *Client, log *slog.Logger) {
	remaining, ok := r.hub.Leave(c)
	if ok {
		log.Info("client departed", "remaining", remaining)
	}
	close(c.Send)
}
