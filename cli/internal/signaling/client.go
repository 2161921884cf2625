package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/callerr"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/dns"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

// State is the condition of the signaling channel.
type State int

const (
	StateConnected State = iota
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Event is either an inbound message or a channel state change. Events are
// delivered in order on a single channel.
type Event struct {
	Message *Message

	State   State
	Attempt int
	Err     error
}

// DialFunc opens one WebSocket connection.
type DialFunc func(ctx context.Context, url string) (*websocket.Conn, error)

type Option func(*Client)

func WithBackoff(b Backoff) Option {
	return func(c *Client) {
		c.backoff = b
	}
}

func WithDialer(dial DialFunc) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

// WithAfter replaces time.After for the reconnect schedule.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(c *Client) {
		c.after = after
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// Client manages the WebSocket connection to the signaling server and
// re-establishes it when it drops.
type Client struct {
	serverURL string
	backoff   Backoff
	dial      DialFunc
	after     func(time.Duration) <-chan time.Time
	log       *slog.Logger

	events chan Event

	mu       sync.Mutex
	sess     *session
	closing  bool
	finalErr error

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// errRejoinRefused ends a reconnected session whose first answer was a
// full room.
var errRejoinRefused = errors.New("rejoin refused: room is full")

// session is one live connection with its writer.
type session struct {
	conn     *websocket.Conn
	send     chan []byte
	quit     chan struct{}
	quitOnce sync.Once
	written  chan struct{}

	// Set for sessions opened by reconnect. Cleared by the first frame
	// that is not a room_full refusal.
	rejoin bool
}

func (s *session) stop() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// NewClient creates a new signaling client
func NewClient(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL: serverURL,
		backoff:   DefaultBackoff(),
		dial:      defaultDial,
		after:     time.After,
		log:       slog.Default(),
		events:    make(chan Event, 16),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultDial(ctx context.Context, serverURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		NetDialContext:   dns.DialContext,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, serverURL, nil)
	return conn, err
}

// Connect establishes the first connection. Later drops are retried in the
// background according to the backoff policy until Close is called.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.backoff.Validate(); err != nil {
		return err
	}
	conn, err := c.dial(ctx, c.serverURL)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	sess := c.startSession(conn, false)
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	c.emit(Event{State: StateConnected})
	go c.supervise(ctx, sess)
	return nil
}

// Events returns the ordered stream of messages and state changes. It is
// closed after the final StateClosed event.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed once the channel is permanently closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the channel closed: nil after Close, otherwise the
// terminal error.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalErr
}

// Send queues msg on the current connection.
func (c *Client) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing || c.sess == nil {
		return callerr.ErrChannelDisconnected
	}
	return c.sess.enqueue(data)
}

func (s *session) enqueue(data []byte) error {
	select {
	case s.send <- data:
		return nil
	default:
		return errors.New("signaling send queue full")
	}
}

// Leave tells the room this participant is going away and closes the
// channel. No reconnect is attempted afterwards.
func (c *Client) Leave() {
	data, _ := json.Marshal(Leave())

	c.mu.Lock()
	c.closing = true
	sess := c.sess
	if sess != nil {
		sess.enqueue(data)
	}
	c.mu.Unlock()

	c.Close()
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.mu.Lock()
	c.closing = true
	sess := c.sess
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.closed) })
	if sess != nil {
		sess.stop()
	}
}

func (c *Client) startSession(conn *websocket.Conn, rejoin bool) *session {
	s := &session{
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		quit:    make(chan struct{}),
		written: make(chan struct{}),
		rejoin:  rejoin,
	}
	go c.writePump(s)
	return s
}

// supervise runs sessions back to back until the channel is closed or the
// reconnect budget is spent. Refused or silent rejoins keep spending the
// same budget; a session that received a frame resets it.
func (c *Client) supervise(ctx context.Context, sess *session) {
	attempt := 0
	for {
		err := c.readPump(sess)
		sess.stop()
		<-sess.written

		c.mu.Lock()
		c.sess = nil
		closing := c.closing
		c.mu.Unlock()

		if closing || ctx.Err() != nil {
			c.finish(nil)
			return
		}

		var lastErr error
		if errors.Is(err, errRejoinRefused) {
			// The server may still hold our previous slot until it notices
			// the old link is dead.
			lastErr = callerr.ErrRoomFull
		} else if !sess.rejoin {
			attempt = 0
		}

		c.log.Warn("signaling connection lost", "err", err)
		next, used, err := c.reconnect(ctx, attempt, lastErr)
		attempt = used
		if err != nil {
			c.finish(err)
			return
		}
		if next == nil {
			c.finish(nil)
			return
		}

		c.mu.Lock()
		if c.closing {
			c.mu.Unlock()
			next.stop()
			<-next.written
			c.finish(nil)
			return
		}
		c.sess = next
		c.mu.Unlock()

		c.emit(Event{State: StateConnected})
		sess = next
	}
}

// reconnect dials until a connection is up, continuing after the given
// number of attempts already spent. It returns the attempts used so far.
func (c *Client) reconnect(ctx context.Context, spent int, lastErr error) (*session, int, error) {
	attempt := spent
	for attempt < c.backoff.MaxAttempts {
		attempt++
		delay := c.backoff.Delay(attempt)
		c.emit(Event{State: StateReconnecting, Attempt: attempt, Err: lastErr})
		c.log.Info("reconnecting to signaling server", "attempt", attempt, "delay", delay)

		select {
		case <-c.after(delay):
		case <-c.closed:
			return nil, attempt, nil
		case <-ctx.Done():
			return nil, attempt, ctx.Err()
		}

		conn, err := c.dial(ctx, c.serverURL)
		if err != nil {
			lastErr = err
			continue
		}
		return c.startSession(conn, true), attempt, nil
	}
	if lastErr != nil {
		return nil, attempt, fmt.Errorf("%w: %v", callerr.ErrReconnectExhausted, lastErr)
	}
	return nil, attempt, callerr.ErrReconnectExhausted
}

// finish publishes the terminal state exactly once.
func (c *Client) finish(err error) {
	c.mu.Lock()
	if err == nil && c.finalErr == nil && !c.closing {
		err = callerr.ErrChannelDisconnected
	}
	if err != nil {
		c.finalErr = err
	}
	err = c.finalErr
	c.closing = true
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.closed) })
	c.emit(Event{State: StateClosed, Err: err})
	close(c.events)
	close(c.done)
}

// emit delivers ev unless the consumer has gone away after Close.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
		// Still try to hand over terminal events without blocking.
		select {
		case c.events <- ev:
		default:
		}
	}
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump(s *session) error {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}

		msg, err := Decode(data)
		if err != nil {
			c.log.Debug("dropping inbound frame", "err", err)
			continue
		}

		// A full room is terminal on the first join; the server closes the
		// link right after.
		if msg.Type == MessageTypeError && msg.Text == callerr.ErrRoomFull.Error() {
			if s.rejoin {
				return errRejoinRefused
			}
			c.mu.Lock()
			c.closing = true
			c.finalErr = callerr.ErrRoomFull
			c.mu.Unlock()
		}
		s.rejoin = false

		c.emit(Event{Message: msg})
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		s.conn.Close()
		close(s.written)
	}()

	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.quit:
			// Flush what was queued before the close, leave included.
			if err := s.flush(); err != nil {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *session) flush() error {
	for {
		select {
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}
