package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/callerr"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/signaling"
)

type fakeSignaler struct {
	mu   sync.Mutex
	sent []*signaling.Message
	fail bool
}

func (s *fakeSignaler) Send(msg *signaling.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return callerr.ErrChannelDisconnected
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSignaler) ofType(kind string) []*signaling.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*signaling.Message
	for _, msg := range s.sent {
		if msg.Type == kind {
			out = append(out, msg)
		}
	}
	return out
}

type fakeMedia struct {
	mu     sync.Mutex
	audio  bool
	video  bool
	closed bool
}

func (f *fakeMedia) AudioEnabled() bool     { f.mu.Lock(); defer f.mu.Unlock(); return f.audio }
func (f *fakeMedia) VideoEnabled() bool     { f.mu.Lock(); defer f.mu.Unlock(); return f.video }
func (f *fakeMedia) SetAudioEnabled(v bool) { f.mu.Lock(); defer f.mu.Unlock(); f.audio = v }
func (f *fakeMedia) SetVideoEnabled(v bool) { f.mu.Lock(); defer f.mu.Unlock(); f.video = v }

func (f *fakeMedia) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMedia) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakePeer struct {
	n     int
	hooks PeerHooks

	mu         sync.Mutex
	offers     []bool // iceRestart flag per CreateOffer
	remote     []string
	answers    []string
	candidates []Candidate
	closed     bool
}

func (p *fakePeer) CreateOffer(iceRestart bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers = append(p.offers, iceRestart)
	return fmt.Sprintf("offer-%d-%d", p.n, len(p.offers)), nil
}

func (p *fakePeer) Answer(offerSDP string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = append(p.remote, offerSDP)
	return fmt.Sprintf("answer-%d", p.n), nil
}

func (p *fakePeer) SetAnswer(sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers = append(p.answers, sdp)
	return nil
}

func (p *fakePeer) AddICECandidate(c Candidate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) remotes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.remote...)
}

func (p *fakePeer) snapshot() (offers []bool, answers []string, candidates []Candidate, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.offers...), append([]string(nil), p.answers...),
		append([]Candidate(nil), p.candidates...), p.closed
}

type fakePeers struct {
	mu    sync.Mutex
	peers []*fakePeer
}

func (f *fakePeers) create(_ LocalMedia, hooks PeerHooks) (Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePeer{n: len(f.peers) + 1, hooks: hooks}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakePeers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakePeers) get(i int) *fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers[i]
}

type harness struct {
	m      *Machine
	sig    *fakeSignaler
	peers  *fakePeers
	status atomic.Int64

	mu       sync.Mutex
	statusFn func(context.Context) (int, error)
	media  []*fakeMedia
	states []State
}

func newHarness(t *testing.T, source MediaSource) *harness {
	t.Helper()
	h := &harness{sig: &fakeSignaler{}, peers: &fakePeers{}}
	h.status.Store(1)
	if source == nil {
		source = MediaSourceFunc(h.acquire)
	}
	h.m = New(Config{
		Signaler: h.sig,
		Media:    source,
		Peers:    h.peers.create,
		Status: StatusFetcherFunc(func(ctx context.Context) (int, error) {
			h.mu.Lock()
			fn := h.statusFn
			h.mu.Unlock()
			if fn != nil {
				return fn(ctx)
			}
			return int(h.status.Load()), nil
		}),
		OnChange: func(s Snapshot) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if n := len(h.states); n == 0 || h.states[n-1] != s.State {
				h.states = append(h.states, s.State)
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) acquire(context.Context) (LocalMedia, error) {
	m := &fakeMedia{audio: true, video: true}
	h.mu.Lock()
	h.media = append(h.media, m)
	h.mu.Unlock()
	return m, nil
}

// setStatus replaces the room status answer for later queries.
func (h *harness) setStatus(fn func(context.Context) (int, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statusFn = fn
}

func (h *harness) lastMedia() *fakeMedia {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.media[len(h.media)-1]
}

func (h *harness) seenStates() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

// sync waits until every event posted so far has been handled.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, h.m.SendChat(""))
}

func (h *harness) waitFor(t *testing.T, cond func(Snapshot) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.m.Snapshot()) }, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	h.waitFor(t, func(s Snapshot) bool { return s.State == want })
}

func roomInfo(count int, role string) *signaling.Message {
	return &signaling.Message{Type: signaling.MessageTypeRoomInfo, PeerCount: count, Role: role}
}

func bare(kind string) *signaling.Message {
	return &signaling.Message{Type: kind}
}

// connectInitiator drives an initiator through a full offer/answer round.
func connectInitiator(t *testing.T, h *harness) *fakePeer {
	t.Helper()
	h.m.Deliver(roomInfo(1, signaling.RoleInitiator))
	h.m.StartCall()
	h.waitState(t, StateAwaitingPeer)

	h.m.Deliver(bare(signaling.MessageTypeJoin))
	h.m.Deliver(roomInfo(2, signaling.RoleInitiator))
	h.waitState(t, StateConnected)
	require.Equal(t, 1, h.peers.count())
	peer := h.peers.get(0)

	h.m.Deliver(signaling.Answer("remote-answer"))
	h.sync(t)
	return peer
}

func TestMachine_InitiatorOffersWhenPeerJoins(t *testing.T) {
	h := newHarness(t, nil)
	peer := connectInitiator(t, h)

	offers := h.sig.ofType(signaling.MessageTypeOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, "offer-1-1", offers[0].SDP)

	status := h.sig.ofType(signaling.MessageTypeMediaStatus)
	require.NotEmpty(t, status)
	assert.True(t, status[0].Audio)
	assert.True(t, status[0].Video)

	h.m.Deliver(signaling.ICE("candidate:remote", "0", 0))
	peer.hooks.OnICECandidate(Candidate{Candidate: "candidate:local", SDPMid: "0", SDPMLineIndex: 0})
	peer.hooks.OnRemoteTrack("video")
	peer.hooks.OnConnectivity(ConnectivityConnected)
	h.sync(t)

	gotOffers, answers, candidates, closed := peer.snapshot()
	assert.Equal(t, []bool{false}, gotOffers)
	assert.Equal(t, []string{"remote-answer"}, answers)
	assert.Equal(t, []Candidate{{Candidate: "candidate:remote", SDPMid: "0"}}, candidates)
	assert.False(t, closed)

	ice := h.sig.ofType(signaling.MessageTypeICE)
	require.Len(t, ice, 1)
	assert.Equal(t, "candidate:local", ice[0].Candidate)

	snap := h.m.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.Equal(t, signaling.RoleInitiator, snap.Role)
	assert.Equal(t, 2, snap.PeerCount)
	assert.Equal(t, ConnectivityConnected, snap.Connectivity)
	assert.Equal(t, []string{"video"}, snap.RemoteTracks)
	assert.True(t, snap.HasLocalMedia)
	assert.Equal(t, []State{StateIdle, StateAcquiringMedia, StateAwaitingPeer, StateConnected}, h.seenStates())
}

func TestMachine_InitiatorOffersWhenPeerAlreadyPresent(t *testing.T) {
	h := newHarness(t, nil)
	h.status.Store(2)
	h.m.Deliver(roomInfo(2, signaling.RoleInitiator))
	h.m.StartCall()

	h.waitState(t, StateConnected)
	assert.Len(t, h.sig.ofType(signaling.MessageTypeOffer), 1)
}

func TestMachine_ResponderNeverOffers(t *testing.T) {
	h := newHarness(t, nil)
	h.status.Store(2)
	h.m.Deliver(roomInfo(2, signaling.RoleResponder))
	h.m.StartCall()
	h.waitState(t, StateAwaitingPeer)

	h.m.Deliver(bare(signaling.MessageTypeJoin))
	h.sync(t)
	assert.Empty(t, h.sig.ofType(signaling.MessageTypeOffer))
	assert.Equal(t, 0, h.peers.count())

	h.m.Deliver(signaling.Offer("remote-offer"))
	h.waitState(t, StateConnected)

	answers := h.sig.ofType(signaling.MessageTypeAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, "answer-1", answers[0].SDP)
	assert.Empty(t, h.sig.ofType(signaling.MessageTypeOffer))
	assert.Equal(t, []string{"remote-offer"}, h.peers.get(0).remotes())
}

func TestMachine_InitiatorIgnoresOffers(t *testing.T) {
	h := newHarness(t, nil)
	connectInitiator(t, h)

	h.m.Deliver(signaling.Offer("glare"))
	h.sync(t)
	assert.Empty(t, h.sig.ofType(signaling.MessageTypeAnswer))
	assert.Equal(t, 1, h.peers.count())
}

func TestMachine_OfferBeforeMediaIsBufferedWithCandidates(t *testing.T) {
	release := make(chan struct{})
	var h *harness
	h = newHarness(t, MediaSourceFunc(func(ctx context.Context) (LocalMedia, error) {
		<-release
		return h.acquire(ctx)
	}))
	h.m.Deliver(roomInfo(2, signaling.RoleResponder))

	h.m.Deliver(signaling.Offer("early-offer"))
	h.m.Deliver(signaling.ICE("candidate:early", "0", 0))
	h.sync(t)
	assert.Equal(t, StateAnswering, h.m.Snapshot().State)
	assert.Equal(t, 0, h.peers.count())

	close(release)
	h.waitState(t, StateConnected)

	peer := h.peers.get(0)
	_, _, candidates, _ := peer.snapshot()
	assert.Equal(t, []Candidate{{Candidate: "candidate:early", SDPMid: "0"}}, candidates)
	require.Len(t, h.sig.ofType(signaling.MessageTypeAnswer), 1)
}

func TestMachine_CandidatesBeforeAnswerAreBuffered(t *testing.T) {
	h := newHarness(t, nil)
	h.m.Deliver(roomInfo(1, signaling.RoleInitiator))
	h.m.StartCall()
	h.waitState(t, StateAwaitingPeer)
	h.m.Deliver(bare(signaling.MessageTypeJoin))
	h.waitState(t, StateConnected)
	peer := h.peers.get(0)

	h.m.Deliver(signaling.ICE("candidate:a", "0", 0))
	h.m.Deliver(signaling.ICE("candidate:b", "1", 1))
	h.sync(t)
	_, _, candidates, _ := peer.snapshot()
	assert.Empty(t, candidates)

	h.m.Deliver(signaling.Answer("remote-answer"))
	h.sync(t)
	_, _, candidates, _ = peer.snapshot()
	assert.Equal(t, []Candidate{
		{Candidate: "candidate:a", SDPMid: "0"},
		{Candidate: "candidate:b", SDPMid: "1", SDPMLineIndex: 1},
	}, candidates)
}

func TestMachine_ICERestartSendsExactlyOneOffer(t *testing.T) {
	h := newHarness(t, nil)
	peer := connectInitiator(t, h)
	h.m.Deliver(&signaling.Message{Type: signaling.MessageTypeChat, Text: "hello"})
	peer.hooks.OnConnectivity(ConnectivityConnected)
	h.sync(t)
	before := h.m.Snapshot()

	peer.hooks.OnConnectivity(ConnectivityFailed)
	peer.hooks.OnConnectivity(ConnectivityFailed)
	h.sync(t)

	offers := h.sig.ofType(signaling.MessageTypeOffer)
	require.Len(t, offers, 2)
	assert.Equal(t, "offer-1-2", offers[1].SDP)

	gotOffers, _, _, closed := peer.snapshot()
	assert.Equal(t, []bool{false, true}, gotOffers)
	assert.False(t, closed)
	assert.Equal(t, 1, h.peers.count())

	after := h.m.Snapshot()
	assert.Equal(t, StateConnected, after.State)
	assert.Equal(t, before.PeerCount, after.PeerCount)
	assert.Equal(t, before.Chat, after.Chat)
	assert.ErrorIs(t, after.LastError, callerr.ErrNegotiationFailed)

	h.m.Deliver(signaling.Answer("restart-answer"))
	peer.hooks.OnConnectivity(ConnectivityConnected)
	h.sync(t)
	_, answers, _, _ := peer.snapshot()
	assert.Equal(t, []string{"remote-answer", "restart-answer"}, answers)
	assert.NoError(t, h.m.Snapshot().LastError)

	// The guard re-arms once connectivity recovers.
	peer.hooks.OnConnectivity(ConnectivityFailed)
	h.sync(t)
	assert.Len(t, h.sig.ofType(signaling.MessageTypeOffer), 3)
}

func TestMachine_ResponderDoesNotRestart(t *testing.T) {
	h := newHarness(t, nil)
	h.m.Deliver(roomInfo(2, signaling.RoleResponder))
	h.m.Deliver(signaling.Offer("remote-offer"))
	h.waitState(t, StateConnected)
	peer := h.peers.get(0)

	peer.hooks.OnConnectivity(ConnectivityFailed)
	h.sync(t)
	assert.Empty(t, h.sig.ofType(signaling.MessageTypeOffer))

	// A restart offer from the initiator is answered on the same connection.
	h.m.Deliver(signaling.Offer("restart-offer"))
	h.sync(t)
	assert.Equal(t, 1, h.peers.count())
	assert.Equal(t, []string{"remote-offer", "restart-offer"}, peer.remotes())
	assert.Len(t, h.sig.ofType(signaling.MessageTypeAnswer), 2)
}

func TestMachine_MediaFailureThenRetry(t *testing.T) {
	var calls atomic.Int32
	var h *harness
	h = newHarness(t, MediaSourceFunc(func(ctx context.Context) (LocalMedia, error) {
		if calls.Add(1) == 1 {
			return nil, callerr.ErrMediaAcquisitionDenied
		}
		return h.acquire(ctx)
	}))
	h.m.Deliver(roomInfo(1, signaling.RoleInitiator))
	h.m.StartCall()

	h.waitState(t, StateFailed)
	snap := h.m.Snapshot()
	assert.ErrorIs(t, snap.LastError, callerr.ErrMediaAcquisitionDenied)
	assert.False(t, snap.HasLocalMedia)
	assert.Equal(t, 0, h.peers.count())

	h.m.StartCall()
	h.waitState(t, StateAwaitingPeer)
	assert.NoError(t, h.m.Snapshot().LastError)
	assert.True(t, h.m.Snapshot().HasLocalMedia)
}

func TestMachine_PeerLeaveReturnsToIdle(t *testing.T) {
	h := newHarness(t, nil)
	peer := connectInitiator(t, h)
	h.m.Deliver(&signaling.Message{Type: signaling.MessageTypeChat, Text: "bye"})
	h.m.Deliver(signaling.MediaStatus(false, true))
	h.sync(t)
	assert.True(t, h.m.Snapshot().RemoteVideo)

	h.m.Deliver(bare(signaling.MessageTypeLeave))
	h.m.Deliver(roomInfo(1, signaling.RoleInitiator))
	h.waitState(t, StateIdle)
	h.sync(t)

	_, _, _, closed := peer.snapshot()
	assert.True(t, closed)
	assert.True(t, h.lastMedia().isClosed())

	snap := h.m.Snapshot()
	assert.False(t, snap.HasLocalMedia)
	assert.False(t, snap.RemoteVideo)
	assert.Equal(t, 1, snap.PeerCount)
	require.Len(t, snap.Chat, 1)
	assert.Equal(t, "bye", snap.Chat[0].Text)
	assert.Contains(t, h.seenStates(), StateEnded)

	// A new peer joining restarts the call.
	h.m.Deliver(bare(signaling.MessageTypeJoin))
	h.waitFor(t, func(s Snapshot) bool { return s.State == StateAwaitingPeer || s.State == StateConnected })
}

func TestMachine_HangUpTearsDown(t *testing.T) {
	h := newHarness(t, nil)
	peer := connectInitiator(t, h)

	h.m.HangUp()
	h.waitState(t, StateIdle)
	_, _, _, closed := peer.snapshot()
	assert.True(t, closed)
	assert.True(t, h.lastMedia().isClosed())

	// Hung up calls are not restarted by a join.
	h.m.Deliver(bare(signaling.MessageTypeJoin))
	h.sync(t)
	assert.Equal(t, StateIdle, h.m.Snapshot().State)
}

func TestMachine_ChatRequiresChannel(t *testing.T) {
	h := newHarness(t, nil)
	h.m.ChannelDown(1)
	h.sync(t)

	snap := h.m.Snapshot()
	assert.False(t, snap.ChatEnabled())
	assert.Equal(t, signaling.StateReconnecting, snap.Channel)
	assert.Equal(t, 1, snap.ReconnectAttempt)
	assert.ErrorIs(t, h.m.SendChat("hello"), callerr.ErrChannelDisconnected)
	assert.Empty(t, h.sig.ofType(signaling.MessageTypeChat))

	h.m.ChannelUp()
	require.NoError(t, h.m.SendChat("  hello  "))
	chats := h.sig.ofType(signaling.MessageTypeChat)
	require.Len(t, chats, 1)
	assert.Equal(t, "hello", chats[0].Text)

	snap = h.m.Snapshot()
	assert.True(t, snap.ChatEnabled())
	require.Len(t, snap.Chat, 1)
	assert.True(t, snap.Chat[0].FromSelf)
}

func TestMachine_ChannelReconnectRenegotiates(t *testing.T) {
	h := newHarness(t, nil)
	first := connectInitiator(t, h)
	h.status.Store(2)

	h.m.ChannelDown(1)
	h.m.ChannelUp()
	require.Eventually(t, func() bool { return h.peers.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	h.waitState(t, StateConnected)

	_, _, _, closed := first.snapshot()
	assert.True(t, closed)
	offers := h.sig.ofType(signaling.MessageTypeOffer)
	require.Len(t, offers, 2)
	assert.Equal(t, "offer-2-1", offers[1].SDP)
}

func TestMachine_StaleStatusDoesNotHideJoinedPeer(t *testing.T) {
	h := newHarness(t, nil)
	release := make(chan struct{})
	queried := make(chan struct{}, 1)
	h.setStatus(func(ctx context.Context) (int, error) {
		queried <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return 1, nil
	})

	h.m.Deliver(roomInfo(1, signaling.RoleInitiator))
	h.m.StartCall()
	select {
	case <-queried:
	case <-time.After(2 * time.Second):
		t.Fatal("status never queried")
	}

	// The peer arrives while the answer from before its join is in flight.
	h.m.Deliver(bare(signaling.MessageTypeJoin))
	h.m.Deliver(roomInfo(2, signaling.RoleInitiator))
	h.sync(t)
	assert.Empty(t, h.sig.ofType(signaling.MessageTypeOffer))

	close(release)
	h.waitState(t, StateConnected)
	assert.Len(t, h.sig.ofType(signaling.MessageTypeOffer), 1)
	assert.Equal(t, 2, h.m.Snapshot().PeerCount)
}

func TestMachine_FailedStatusAfterReconnectWaitsForRoomInfo(t *testing.T) {
	h := newHarness(t, nil)
	h.m.Deliver(roomInfo(1, signaling.RoleInitiator))
	h.m.StartCall()
	h.waitState(t, StateAwaitingPeer)

	queried := make(chan struct{}, 1)
	h.setStatus(func(context.Context) (int, error) {
		queried <- struct{}{}
		return 0, errors.New("status unavailable")
	})
	h.m.ChannelDown(1)
	h.m.ChannelUp()
	select {
	case <-queried:
	case <-time.After(2 * time.Second):
		t.Fatal("status never queried")
	}
	h.sync(t)
	// Falls back to the last known occupancy of one.
	assert.Equal(t, StateAwaitingPeer, h.m.Snapshot().State)
	assert.Empty(t, h.sig.ofType(signaling.MessageTypeOffer))

	// The peer joined while we were away; the rejoin room_info reports it.
	h.m.Deliver(roomInfo(2, signaling.RoleInitiator))
	h.waitState(t, StateConnected)
	assert.Len(t, h.sig.ofType(signaling.MessageTypeOffer), 1)
}

func TestMachine_FailedStatusAfterReconnectUsesLastKnownOccupancy(t *testing.T) {
	h := newHarness(t, nil)
	connectInitiator(t, h)
	h.setStatus(func(context.Context) (int, error) {
		return 0, errors.New("status unavailable")
	})

	h.m.ChannelDown(1)
	h.m.ChannelUp()
	require.Eventually(t, func() bool { return h.peers.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	h.waitState(t, StateConnected)
	assert.Len(t, h.sig.ofType(signaling.MessageTypeOffer), 2)
	assert.Equal(t, 2, h.m.Snapshot().PeerCount)
}

func TestMachine_RefusedRejoinKeepsCall(t *testing.T) {
	h := newHarness(t, nil)
	peer := connectInitiator(t, h)

	h.m.ChannelDown(1)
	h.m.Deliver(&signaling.Message{Type: signaling.MessageTypeError, Text: "room is full"})
	h.sync(t)

	snap := h.m.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.True(t, snap.HasLocalMedia)
	assert.NotErrorIs(t, snap.LastError, callerr.ErrRoomFull)
	assert.False(t, h.lastMedia().isClosed())
	_, _, _, closed := peer.snapshot()
	assert.False(t, closed)
}

func TestMachine_RoomFull(t *testing.T) {
	h := newHarness(t, nil)
	h.m.StartCall()
	h.m.Deliver(&signaling.Message{Type: signaling.MessageTypeError, Text: "room is full"})

	h.waitState(t, StateFailed)
	assert.ErrorIs(t, h.m.Snapshot().LastError, callerr.ErrRoomFull)
	assert.False(t, h.m.Snapshot().HasLocalMedia)
}

func TestMachine_ServerErrorIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.m.Deliver(&signaling.Message{Type: signaling.MessageTypeError, Text: "malformed message"})
	h.sync(t)

	err := h.m.Snapshot().LastError
	assert.ErrorIs(t, err, callerr.ErrSignalingError)
	assert.Equal(t, StateIdle, h.m.Snapshot().State)
}

func TestMachine_ChannelClosedWithError(t *testing.T) {
	h := newHarness(t, nil)
	connectInitiator(t, h)

	h.m.ChannelClosed(callerr.ErrReconnectExhausted)
	h.waitState(t, StateFailed)
	snap := h.m.Snapshot()
	assert.ErrorIs(t, snap.LastError, callerr.ErrReconnectExhausted)
	assert.Equal(t, signaling.StateClosed, snap.Channel)
	assert.True(t, h.lastMedia().isClosed())
}

func TestMachine_TogglesPublishMediaStatus(t *testing.T) {
	h := newHarness(t, nil)
	connectInitiator(t, h)
	n := len(h.sig.ofType(signaling.MessageTypeMediaStatus))

	h.m.ToggleAudio()
	h.m.ToggleVideo()
	h.sync(t)

	status := h.sig.ofType(signaling.MessageTypeMediaStatus)
	require.Len(t, status, n+2)
	assert.False(t, status[n].Audio)
	assert.True(t, status[n].Video)
	assert.False(t, status[n+1].Audio)
	assert.False(t, status[n+1].Video)

	snap := h.m.Snapshot()
	assert.False(t, snap.LocalAudio)
	assert.False(t, snap.LocalVideo)
}

func TestMachine_FollowTranslatesChannelEvents(t *testing.T) {
	h := newHarness(t, nil)
	events := make(chan signaling.Event, 4)
	events <- signaling.Event{Message: roomInfo(1, signaling.RoleResponder)}
	events <- signaling.Event{State: signaling.StateReconnecting, Attempt: 2, Err: errors.New("dial failed")}
	events <- signaling.Event{State: signaling.StateClosed, Err: callerr.ErrReconnectExhausted}
	close(events)

	h.m.Follow(events)
	h.sync(t)

	snap := h.m.Snapshot()
	assert.Equal(t, signaling.RoleResponder, snap.Role)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, signaling.StateClosed, snap.Channel)
	assert.ErrorIs(t, snap.LastError, callerr.ErrReconnectExhausted)
}
