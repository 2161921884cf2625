package negotiation

import (
	"context"
	"time"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/signaling"
)

// State is the negotiation state of the local participant.
type State int

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateAwaitingPeer
	StateOffering
	StateAnswering
	StateConnected
	StateFailed
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring media"
	case StateAwaitingPeer:
		return "awaiting peer"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Connectivity is the transport-level state reported by the peer connection.
type Connectivity int

const (
	ConnectivityNew Connectivity = iota
	ConnectivityConnected
	ConnectivityDisconnected
	ConnectivityFailed
)

func (c Connectivity) String() string {
	switch c {
	case ConnectivityNew:
		return "new"
	case ConnectivityConnected:
		return "connected"
	case ConnectivityDisconnected:
		return "disconnected"
	case ConnectivityFailed:
		return "failed"
	}
	return "unknown"
}

// Candidate is an ICE candidate as carried in ice frames.
type Candidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex uint16
}

// Peer is one peer connection.
type Peer interface {
	// CreateOffer creates an offer, sets it as the local description and
	// returns its SDP.
	CreateOffer(iceRestart bool) (string, error)
	// Answer applies a remote offer and returns the local answer SDP.
	Answer(offerSDP string) (string, error)
	SetAnswer(answerSDP string) error
	AddICECandidate(c Candidate) error
	Close() error
}

// PeerHooks are called from the peer connection's own goroutines.
type PeerHooks struct {
	OnICECandidate func(Candidate)
	OnConnectivity func(Connectivity)
	OnRemoteTrack  func(kind string)
}

type PeerFactory func(media LocalMedia, hooks PeerHooks) (Peer, error)

// LocalMedia is a held set of local tracks.
type LocalMedia interface {
	AudioEnabled() bool
	VideoEnabled() bool
	SetAudioEnabled(bool)
	SetVideoEnabled(bool)
	Close() error
}

type MediaSource interface {
	Acquire(ctx context.Context) (LocalMedia, error)
}

type MediaSourceFunc func(ctx context.Context) (LocalMedia, error)

func (f MediaSourceFunc) Acquire(ctx context.Context) (LocalMedia, error) {
	return f(ctx)
}

// Signaler sends frames to the other participant through the server.
type Signaler interface {
	Send(msg *signaling.Message) error
}

// StatusFetcher reports the current room occupancy.
type StatusFetcher interface {
	PeerCount(ctx context.Context) (int, error)
}

type StatusFetcherFunc func(ctx context.Context) (int, error)

func (f StatusFetcherFunc) PeerCount(ctx context.Context) (int, error) {
	return f(ctx)
}

// ChatEntry is one line of chat history.
type ChatEntry struct {
	FromSelf bool
	Text     string
	At       time.Time
}

// Snapshot is a consistent view of the machine for rendering.
type Snapshot struct {
	State     State
	Role      string
	PeerCount int

	Channel          signaling.State
	ReconnectAttempt int

	Connectivity Connectivity

	HasLocalMedia bool
	LocalAudio    bool
	LocalVideo    bool

	RemoteAudio  bool
	RemoteVideo  bool
	RemoteTracks []string

	Chat      []ChatEntry
	LastError error
}

// ChatEnabled reports whether chat input may be sent.
func (s Snapshot) ChatEnabled() bool {
	return s.Channel == signaling.StateConnected
}
