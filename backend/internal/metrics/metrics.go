package metrics

import "sync"

// Event names counted by the signaling server.
const (
	RoomsCreated           = "rooms_created"
	RoomsDestroyed         = "rooms_destroyed"
	Joins                  = "joins"
	Leaves                 = "leaves"
	RoomFull               = "room_full"
	MessagesRelayed        = "messages_relayed"
	MessagesDroppedNoPeer  = "messages_dropped_no_peer"
	MalformedMessages      = "malformed_messages"
	BackpressureDisconnect = "backpressure_disconnects"
)

// Metrics is a concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

// Inc is safe to call on a nil *Metrics.
func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
