package negotiation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/callerr"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/signaling"
)

// Config wires a Machine to its collaborators.
type Config struct {
	Signaler Signaler
	Media    MediaSource
	Peers    PeerFactory
	Status   StatusFetcher

	Logger *slog.Logger

	// OnChange is called from the machine goroutine after every event.
	OnChange func(Snapshot)

	Now func() time.Time
}

// Machine is the client-side negotiation state machine. All state is owned
// by the goroutine running Run; every other method only posts an event.
type Machine struct {
	cfg Config
	log *slog.Logger

	events  chan event
	stopped chan struct{}
	ctx     context.Context

	// Owned by the Run goroutine.
	state     State
	role      string
	peerCount int
	memberSeq int // bumped by every room_info, join and leave
	channel   signaling.State
	attempt   int
	wantCall  bool

	gen   int // call generation, guards async media and status results
	media LocalMedia

	peer      Peer
	peerGen   int
	remoteSet bool
	pending   []Candidate

	pendingOffer *string
	restarting   bool

	connectivity Connectivity
	remoteAudio  bool
	remoteVideo  bool
	remoteTracks []string
	chat         []ChatEntry
	lastErr      error

	mu   sync.RWMutex
	snap Snapshot
}

func New(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Machine{
		cfg:     cfg,
		log:     cfg.Logger,
		events:  make(chan event, 64),
		stopped: make(chan struct{}),
		channel: signaling.StateConnected,
	}
	m.snap = m.snapshot()
	return m
}

// Run processes events until ctx is done. Local media and the peer
// connection are released on return.
func (m *Machine) Run(ctx context.Context) error {
	m.ctx = ctx
	defer close(m.stopped)
	defer m.teardown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			m.handle(ev)
			m.publish()
		}
	}
}

// Snapshot returns the state as of the last processed event.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// StartCall acquires media and joins the negotiation.
func (m *Machine) StartCall() { m.post(startCall{}) }

// HangUp tears the call down locally. The caller is expected to leave the
// room on the signaling channel afterwards.
func (m *Machine) HangUp() { m.post(hangUp{}) }

func (m *Machine) Deliver(msg *signaling.Message) { m.post(inbound{msg: msg}) }

func (m *Machine) ToggleAudio() { m.post(toggleAudio{}) }

func (m *Machine) ToggleVideo() { m.post(toggleVideo{}) }

// ChannelDown marks the signaling channel as reconnecting.
func (m *Machine) ChannelDown(attempt int) { m.post(channelChanged{state: signaling.StateReconnecting, attempt: attempt}) }

// ChannelUp marks the signaling channel as connected again.
func (m *Machine) ChannelUp() { m.post(channelChanged{state: signaling.StateConnected}) }

// ChannelClosed marks the signaling channel as permanently gone.
func (m *Machine) ChannelClosed(err error) {
	m.post(channelChanged{state: signaling.StateClosed, err: err})
}

// SendChat sends a chat line to the peer. It fails while the signaling
// channel is down.
func (m *Machine) SendChat(text string) error {
	reply := make(chan error, 1)
	if !m.post(sendChat{text: text, reply: reply}) {
		return callerr.ErrChannelDisconnected
	}
	select {
	case err := <-reply:
		return err
	case <-m.stopped:
		return callerr.ErrChannelDisconnected
	}
}

func (m *Machine) post(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.stopped:
		return false
	}
}

func (m *Machine) publish() {
	snap := m.snapshot()
	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
	if m.cfg.OnChange != nil {
		m.cfg.OnChange(snap)
	}
}

func (m *Machine) snapshot() Snapshot {
	s := Snapshot{
		State:            m.state,
		Role:             m.role,
		PeerCount:        m.peerCount,
		Channel:          m.channel,
		ReconnectAttempt: m.attempt,
		Connectivity:     m.connectivity,
		RemoteAudio:      m.remoteAudio,
		RemoteVideo:      m.remoteVideo,
		RemoteTracks:     append([]string(nil), m.remoteTracks...),
		Chat:             append([]ChatEntry(nil), m.chat...),
		LastError:        m.lastErr,
	}
	if m.media != nil {
		s.HasLocalMedia = true
		s.LocalAudio = m.media.AudioEnabled()
		s.LocalVideo = m.media.VideoEnabled()
	}
	return s
}

func (m *Machine) handle(ev event) {
	switch ev := ev.(type) {
	case startCall:
		m.wantCall = true
		m.startCall()
	case hangUp:
		m.wantCall = false
		m.end()
	case mediaAcquired:
		m.onMediaAcquired(ev)
	case statusResult:
		m.onStatus(ev)
	case inbound:
		m.onMessage(ev.msg)
	case localCandidate:
		if ev.peerGen == m.peerGen && m.peer != nil {
			m.send(signaling.ICE(ev.c.Candidate, ev.c.SDPMid, ev.c.SDPMLineIndex))
		}
	case connectivityChanged:
		if ev.peerGen == m.peerGen && m.peer != nil {
			m.onConnectivity(ev.state)
		}
	case remoteTrack:
		if ev.peerGen == m.peerGen && m.peer != nil {
			m.remoteTracks = append(m.remoteTracks, ev.kind)
		}
	case channelChanged:
		m.onChannel(ev)
	case toggleAudio:
		if m.media != nil {
			m.media.SetAudioEnabled(!m.media.AudioEnabled())
			m.sendMediaStatus()
		}
	case toggleVideo:
		if m.media != nil {
			m.media.SetVideoEnabled(!m.media.VideoEnabled())
			m.sendMediaStatus()
		}
	case sendChat:
		err := m.onSendChat(ev.text)
		m.publish()
		ev.reply <- err
	}
}

func (m *Machine) startCall() {
	switch m.state {
	case StateIdle, StateFailed, StateEnded:
	default:
		return
	}
	m.lastErr = nil
	m.state = StateAcquiringMedia
	m.acquire()
}

// acquire starts media acquisition for the current generation.
func (m *Machine) acquire() {
	m.gen++
	gen := m.gen
	go func() {
		media, err := m.cfg.Media.Acquire(m.ctx)
		if !m.post(mediaAcquired{gen: gen, media: media, err: err}) && media != nil {
			media.Close()
		}
	}()
}

func (m *Machine) onMediaAcquired(ev mediaAcquired) {
	if ev.gen != m.gen || (m.state != StateAcquiringMedia && m.state != StateAnswering) {
		if ev.media != nil {
			ev.media.Close()
		}
		return
	}
	if ev.err != nil {
		m.log.Warn("media acquisition failed", "err", ev.err)
		m.pendingOffer = nil
		m.state = StateFailed
		m.lastErr = ev.err
		return
	}

	m.media = ev.media
	m.sendMediaStatus()

	if m.state == StateAnswering && m.pendingOffer != nil {
		sdp := *m.pendingOffer
		m.pendingOffer = nil
		m.answer(sdp)
		return
	}
	m.queryStatus()
}

func (m *Machine) queryStatus() {
	gen, seq := m.gen, m.memberSeq
	go func() {
		count, err := m.cfg.Status.PeerCount(m.ctx)
		m.post(statusResult{gen: gen, seq: seq, count: count, err: err})
	}()
}

func (m *Machine) onStatus(ev statusResult) {
	if ev.gen != m.gen || m.media == nil {
		return
	}
	switch m.state {
	case StateAcquiringMedia, StateAwaitingPeer, StateConnected:
	default:
		return
	}

	switch {
	case ev.seq != m.memberSeq:
		// Membership frames arrived while the query was in flight and
		// are newer than its answer.
		if m.state != StateAcquiringMedia {
			return
		}
	case ev.err != nil:
		m.log.Warn("room status query failed, using last known occupancy", "err", ev.err)
	default:
		m.peerCount = ev.count
	}

	if m.peerCount >= 2 && m.role == signaling.RoleInitiator {
		m.offer()
		return
	}
	if m.state == StateAcquiringMedia {
		m.state = StateAwaitingPeer
	}
}

// offer starts a fresh negotiation round on a new peer connection.
func (m *Machine) offer() {
	m.closePeer()
	m.pending = nil
	m.state = StateOffering

	if err := m.newPeer(); err != nil {
		m.fail(err)
		return
	}
	sdp, err := m.peer.CreateOffer(false)
	if err != nil {
		m.fail(callerr.Wrap("create offer", callerr.ErrNegotiationFailed, err.Error()))
		return
	}
	if err := m.send(signaling.Offer(sdp)); err != nil {
		// Retried on the next join or channel reconnect.
		m.closePeer()
		m.state = StateAwaitingPeer
		return
	}
	m.state = StateConnected
}

// answer replies to a remote offer on a new peer connection.
func (m *Machine) answer(offerSDP string) {
	m.closePeer()
	m.state = StateAnswering

	if err := m.newPeer(); err != nil {
		m.fail(err)
		return
	}
	sdp, err := m.peer.Answer(offerSDP)
	if err != nil {
		m.fail(callerr.Wrap("answer offer", callerr.ErrNegotiationFailed, err.Error()))
		return
	}
	m.remoteDescriptionSet()
	if err := m.send(signaling.Answer(sdp)); err != nil {
		m.closePeer()
		m.state = StateAwaitingPeer
		return
	}
	m.state = StateConnected
}

func (m *Machine) newPeer() error {
	m.peerGen++
	gen := m.peerGen
	peer, err := m.cfg.Peers(m.media, PeerHooks{
		OnICECandidate: func(c Candidate) {
			m.post(localCandidate{peerGen: gen, c: c})
		},
		OnConnectivity: func(state Connectivity) {
			m.post(connectivityChanged{peerGen: gen, state: state})
		},
		OnRemoteTrack: func(kind string) {
			m.post(remoteTrack{peerGen: gen, kind: kind})
		},
	})
	if err != nil {
		return callerr.Wrap("create peer connection", callerr.ErrNegotiationFailed, err.Error())
	}
	m.peer = peer
	m.remoteSet = false
	m.connectivity = ConnectivityNew
	m.restarting = false
	return nil
}

func (m *Machine) closePeer() {
	if m.peer == nil {
		return
	}
	if err := m.peer.Close(); err != nil {
		m.log.Debug("closing peer connection", "err", err)
	}
	m.peer = nil
	m.peerGen++
	m.remoteSet = false
	m.remoteTracks = nil
	m.connectivity = ConnectivityNew
}

func (m *Machine) remoteDescriptionSet() {
	m.remoteSet = true
	for _, c := range m.pending {
		if err := m.peer.AddICECandidate(c); err != nil {
			m.log.Debug("dropping buffered candidate", "err", err)
		}
	}
	m.pending = nil
}

func (m *Machine) onMessage(msg *signaling.Message) {
	switch msg.Type {
	case signaling.MessageTypeRoomInfo:
		m.memberSeq++
		m.role = msg.Role
		m.peerCount = msg.PeerCount
		// Covers a status query that raced ahead of the first room_info.
		if m.state == StateAwaitingPeer && m.role == signaling.RoleInitiator && m.peerCount >= 2 && m.media != nil {
			m.offer()
		}

	case signaling.MessageTypeJoin:
		m.onJoin()

	case signaling.MessageTypeLeave:
		m.memberSeq++
		m.log.Info("peer left the room")
		m.end()

	case signaling.MessageTypeOffer:
		m.onOffer(msg.SDP)

	case signaling.MessageTypeAnswer:
		if m.peer == nil || m.remoteSet {
			m.log.Debug("ignoring unexpected answer", "state", m.state)
			return
		}
		if err := m.peer.SetAnswer(msg.SDP); err != nil {
			m.lastErr = callerr.Wrap("apply answer", callerr.ErrNegotiationFailed, err.Error())
			return
		}
		m.remoteDescriptionSet()

	case signaling.MessageTypeICE:
		c := Candidate{Candidate: msg.Candidate, SDPMid: msg.SDPMid, SDPMLineIndex: msg.SDPMLineIndex}
		if m.peer == nil || !m.remoteSet {
			m.pending = append(m.pending, c)
			return
		}
		if err := m.peer.AddICECandidate(c); err != nil {
			m.log.Debug("adding remote candidate", "err", err)
		}

	case signaling.MessageTypeChat:
		m.chat = append(m.chat, ChatEntry{Text: msg.Text, At: m.cfg.Now()})

	case signaling.MessageTypeMediaStatus:
		m.remoteAudio = msg.Audio
		m.remoteVideo = msg.Video

	case signaling.MessageTypeError:
		if msg.Text == callerr.ErrRoomFull.Error() {
			if m.role != "" {
				// Already admitted once: a rejoin lost a race with our own
				// stale slot. The channel keeps retrying.
				m.log.Warn("rejoin refused by server", "err", msg.Text)
				return
			}
			m.wantCall = false
			m.teardown()
			m.state = StateFailed
			m.lastErr = callerr.ErrRoomFull
			return
		}
		m.lastErr = callerr.Wrap("signaling", callerr.ErrSignalingError, msg.Text)
	}
}

func (m *Machine) onJoin() {
	m.memberSeq++
	if m.peerCount < 2 {
		m.peerCount = 2
	}
	if m.role != signaling.RoleInitiator {
		return
	}
	switch m.state {
	case StateAwaitingPeer, StateConnected:
		if m.media != nil {
			m.offer()
		}
	case StateIdle, StateEnded:
		if m.wantCall {
			m.startCall()
		}
	}
}

func (m *Machine) onOffer(sdp string) {
	if m.role == signaling.RoleInitiator {
		m.log.Warn("ignoring offer received as initiator")
		return
	}

	if m.state == StateConnected && m.peer != nil {
		answer, err := m.peer.Answer(sdp)
		if err == nil {
			m.remoteDescriptionSet()
			m.send(signaling.Answer(answer))
			return
		}
		m.log.Info("renegotiation on the existing connection failed, starting over", "err", err)
	}

	if m.media != nil {
		m.answer(sdp)
		return
	}

	m.wantCall = true
	m.pendingOffer = &sdp
	if m.state != StateAcquiringMedia && m.state != StateAnswering {
		m.lastErr = nil
		m.acquire()
	}
	m.state = StateAnswering
}

func (m *Machine) onConnectivity(state Connectivity) {
	m.connectivity = state
	switch state {
	case ConnectivityConnected:
		m.restarting = false
		if m.lastErr != nil && errors.Is(m.lastErr, callerr.ErrNegotiationFailed) {
			m.lastErr = nil
		}
	case ConnectivityFailed:
		if m.state != StateConnected {
			m.lastErr = callerr.ErrNegotiationFailed
			m.end()
			return
		}
		m.lastErr = callerr.ErrNegotiationFailed
		if m.role != signaling.RoleInitiator || m.restarting {
			return
		}
		m.restarting = true
		sdp, err := m.peer.CreateOffer(true)
		if err != nil {
			m.lastErr = callerr.Wrap("ice restart", callerr.ErrNegotiationFailed, err.Error())
			return
		}
		// The restart answer is applied on this same peer connection.
		m.remoteSet = false
		m.send(signaling.Offer(sdp))
	}
}

func (m *Machine) onChannel(ev channelChanged) {
	prev := m.channel
	m.channel = ev.state
	m.attempt = ev.attempt

	switch ev.state {
	case signaling.StateConnected:
		if prev != signaling.StateConnected && m.media != nil {
			// Membership may have changed while disconnected.
			m.queryStatus()
		}
	case signaling.StateClosed:
		if ev.err != nil {
			m.wantCall = false
			m.teardown()
			m.state = StateFailed
			m.lastErr = ev.err
		}
	}
}

func (m *Machine) onSendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if m.channel != signaling.StateConnected {
		return callerr.ErrChannelDisconnected
	}
	if err := m.send(signaling.Chat(text)); err != nil {
		return err
	}
	m.chat = append(m.chat, ChatEntry{FromSelf: true, Text: text, At: m.cfg.Now()})
	return nil
}

func (m *Machine) sendMediaStatus() {
	if m.media == nil {
		return
	}
	m.send(signaling.MediaStatus(m.media.AudioEnabled(), m.media.VideoEnabled()))
}

func (m *Machine) send(msg *signaling.Message) error {
	if err := m.cfg.Signaler.Send(msg); err != nil {
		m.log.Debug("signaling send failed", "type", msg.Type, "err", err)
		return err
	}
	return nil
}

// end moves through Ended back to Idle.
func (m *Machine) end() {
	m.teardown()
	m.state = StateEnded
	m.publish()
	m.state = StateIdle
}

func (m *Machine) fail(err error) {
	m.log.Warn("negotiation failed", "err", err)
	m.teardown()
	m.state = StateFailed
	m.lastErr = err
}

// teardown releases the peer connection and local media and invalidates
// any acquisition still in flight.
func (m *Machine) teardown() {
	m.closePeer()
	m.pending = nil
	m.pendingOffer = nil
	m.restarting = false
	if m.media != nil {
		if err := m.media.Close(); err != nil {
			m.log.Debug("closing local media", "err", err)
		}
		m.media = nil
	}
	m.remoteAudio = false
	m.remoteVideo = false
	m.gen++
}
