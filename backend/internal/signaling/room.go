package signaling

import (
	"sync"
	"time"
)

// MaxPeersPerRoom is the slot capacity of a room.
const MaxPeersPerRoom = 2

// Room represents a single call between at most two peers.
//
// The slots are only touched with mu held. Every frame enqueued to a peer is
// enqueued under mu while that peer still occupies its slot, which is what
// lets the departure path close the peer's send queue right after freeing the
// slot.
type Room struct {
	// ID is the unique identifier for the room.
	ID string

	mu           sync.Mutex
	slots        [MaxPeersPerRoom]*Client
	createdAt    time.Time
	lastActivity time.Time
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:           id,
		createdAt:    now,
		lastActivity: now,
	}
}

// countLocked returns the number of occupied slots.
func (r *Room) countLocked() int {
	n := 0
	for _, c := range r.slots {
		if c != nil {
			n++
		}
	}
	return n
}

// admitLocked places c in the first free slot. Slot 0 is always preferred,
// so membership order is deterministic.
func (r *Room) admitLocked(c *Client, now time.Time) (int, error) {
	for i, occupant := range r.slots {
		if occupant == nil {
			r.slots[i] = c
			r.lastActivity = now
			return i, nil
		}
	}
	return -1, ErrRoomFull
}

// removeLocked frees c's slot. It reports false when c does not hold it.
func (r *Room) removeLocked(c *Client, now time.Time) bool {
	if c.Slot < 0 || c.Slot >= MaxPeersPerRoom || r.slots[c.Slot] != c {
		return false
	}
	r.slots[c.Slot] = nil
	r.lastActivity = now
	return true
}

// otherLocked returns the occupant of the slot that is not slot.
func (r *Room) otherLocked(slot int) *Client {
	for i, c := range r.slots {
		if i != slot && c != nil {
			return c
		}
	}
	return nil
}

// idleLocked reports whether the room has been empty for at least timeout.
func (r *Room) idleLocked(now time.Time, timeout time.Duration) bool {
	return r.countLocked() == 0 && now.Sub(r.lastActivity) >= timeout
}
