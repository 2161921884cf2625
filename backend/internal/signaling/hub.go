package signaling

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kunalsinghdadhwal/axi-vid/backend/internal/metrics"
)

var (
	// ErrRoomFull is returned by Join when both slots are taken.
	ErrRoomFull = errors.New("room is full")

	// ErrInvalidRoomID is returned for ids rejected by ValidRoomID.
	ErrInvalidRoomID = errors.New("invalid room id")
)

// MaxRoomIDLength bounds client-chosen room ids.
const MaxRoomIDLength = 128

// ValidRoomID reports whether id is 1 to MaxRoomIDLength characters of
// [A-Za-z0-9_-].
func ValidRoomID(id string) bool {
	if id == "" || len(id) > MaxRoomIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		switch c := id[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// JoinResult describes the slot a participant was admitted to.
type JoinResult struct {
	Slot      int
	Role      Role
	PeerCount int
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
}

// Hub is the room registry: the single source of truth for room membership.
//
// mu guards the rooms map only. Slot state lives behind each Room's own
// lock, so operations on unrelated rooms never wait on each other. When both
// locks are needed, mu is always taken first.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	idleTimeout time.Duration
	log         *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

type HubOption func(*Hub)

func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.log = logger
	}
}

// WithIdleTimeout sets how long an empty room is kept around for a
// reconnecting participant. Zero destroys rooms as soon as they empty.
func WithIdleTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.idleTimeout = d
	}
}

func WithMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		h.now = now
	}
}

// NewHub creates a new Hub instance.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		rooms: make(map[string]*Room),
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateRoom registers a fresh, empty room under a random id.
func (h *Hub) CreateRoom() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		id := uuid.NewString()
		if _, ok := h.rooms[id]; ok {
			continue
		}
		h.rooms[id] = newRoom(id, h.now())
		h.metrics.Inc(metrics.RoomsCreated)
		h.log.Info("room created", "room", id)
		return id
	}
}

// Join admits c to the room, creating the room on first use.
//
// On success c.RoomID and c.Slot are set, the newcomer is queued a
// room_info frame and, if the room just became full, the existing peer is
// queued join followed by its own room_info.
func (h *Hub) Join(roomID string, c *Client) (JoinResult, error) {
	if !ValidRoomID(roomID) {
		return JoinResult{}, ErrInvalidRoomID
	}

	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = newRoom(roomID, h.now())
		h.rooms[roomID] = room
		h.metrics.Inc(metrics.RoomsCreated)
		h.log.Info("room created", "room", roomID)
	}
	room.mu.Lock()
	h.mu.Unlock()
	defer room.mu.Unlock()

	slot, err := room.admitLocked(c, h.now())
	if err != nil {
		h.metrics.Inc(metrics.RoomFull)
		h.log.Info("room join rejected", "room", roomID, "client", c.ID, "err", err)
		return JoinResult{}, err
	}
	c.RoomID = roomID
	c.Slot = slot

	count := room.countLocked()
	h.metrics.Inc(metrics.Joins)
	h.log.Info("client joined room", "room", roomID, "client", c.ID, "slot", slot, "peers", count)

	c.enqueue(roomInfoFrame(count, slot))
	if other := room.otherLocked(slot); other != nil {
		h.deliverLocked(other, joinFrame)
		h.deliverLocked(other, roomInfoFrame(count, other.Slot))
	}

	return JoinResult{Slot: slot, Role: roleForSlot(slot), PeerCount: count}, nil
}

// Leave frees c's slot and tells the remaining peer, if any. It returns the
// number of participants left in the room and false if c held no slot.
func (h *Hub) Leave(c *Client) (int, bool) {
	room := h.room(c.RoomID)
	if room == nil {
		return 0, false
	}

	room.mu.Lock()
	if !room.removeLocked(c, h.now()) {
		room.mu.Unlock()
		return 0, false
	}
	remaining := room.countLocked()
	if other := room.otherLocked(c.Slot); other != nil {
		h.deliverLocked(other, leaveFrame)
		h.deliverLocked(other, roomInfoFrame(remaining, other.Slot))
	}
	room.mu.Unlock()

	h.metrics.Inc(metrics.Leaves)
	h.log.Info("client left room", "room", room.ID, "client", c.ID, "slot", c.Slot, "peers", remaining)

	if remaining == 0 {
		if h.idleTimeout <= 0 {
			h.destroyIfIdle(room, 0)
		} else {
			h.log.Debug("room is empty, retained for reconnect", "room", room.ID, "grace", h.idleTimeout)
		}
	}
	return remaining, true
}

// Occupancy returns the number of occupied slots, 0 for unknown rooms.
func (h *Hub) Occupancy(roomID string) int {
	room := h.room(roomID)
	if room == nil {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.countLocked()
}

// BroadcastExcept delivers frame to the occupant of the other slot. With no
// one there the frame is dropped and false is returned.
func (h *Hub) BroadcastExcept(roomID string, slot int, frame []byte) bool {
	room := h.room(roomID)
	if room == nil {
		h.metrics.Inc(metrics.MessagesDroppedNoPeer)
		return false
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	other := room.otherLocked(slot)
	if other == nil {
		h.metrics.Inc(metrics.MessagesDroppedNoPeer)
		return false
	}
	room.lastActivity = h.now()
	if !h.deliverLocked(other, frame) {
		return false
	}
	h.metrics.Inc(metrics.MessagesRelayed)
	return true
}

// Sweep destroys every room that has been empty for at least the idle
// timeout and returns how many were removed.
func (h *Hub) Sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	removed := 0
	for id, room := range h.rooms {
		room.mu.Lock()
		idle := room.idleLocked(now, h.idleTimeout)
		room.mu.Unlock()
		if idle {
			delete(h.rooms, id)
			removed++
			h.metrics.Inc(metrics.RoomsDestroyed)
			h.log.Info("cleaning up inactive room", "room", id)
		}
	}
	if removed > 0 {
		h.log.Info("cleaned up inactive rooms", "count", removed)
	}
	return removed
}

// RunJanitor sweeps idle rooms every interval until ctx is done.
func (h *Hub) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Stats returns the number of rooms and connected participants.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{Rooms: len(h.rooms)}
	for _, room := range h.rooms {
		room.mu.Lock()
		s.Participants += room.countLocked()
		room.mu.Unlock()
	}
	return s
}

func (h *Hub) room(roomID string) *Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID]
}

// destroyIfIdle removes room if it is still registered and still idle.
// A join that raced in between holds the room's lock before mu is released,
// so it is either fully visible here or lands in a fresh room.
func (h *Hub) destroyIfIdle(room *Room, timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room.ID] != room {
		return
	}
	room.mu.Lock()
	idle := room.idleLocked(h.now(), timeout)
	room.mu.Unlock()
	if !idle {
		return
	}
	delete(h.rooms, room.ID)
	h.metrics.Inc(metrics.RoomsDestroyed)
	h.log.Info("room deleted", "room", room.ID)
}

// deliverLocked hands frame to c without blocking. A peer whose queue is
// full is disconnected; its own read loop then runs the departure path.
func (h *Hub) deliverLocked(c *Client, frame []byte) bool {
	if c.enqueue(frame) {
		return true
	}
	h.metrics.Inc(metrics.BackpressureDisconnect)
	h.log.Warn("send queue full, disconnecting client", "room", c.RoomID, "client", c.ID)
	c.kick()
	return false
}
