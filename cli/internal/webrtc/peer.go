package webrtc

import (
	"log/slog"

	pion "github.com/pion/webrtc/v4"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/callerr"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/config"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/negotiation"
	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/utils"
)

// TrackSource is local media that can be attached to a peer connection.
type TrackSource interface {
	Tracks() []pion.TrackLocal
}

// Peer is a negotiation.Peer backed by a pion peer connection.
type Peer struct {
	pc  *pion.PeerConnection
	log *slog.Logger
}

func NewPeerConnection(cfg *config.Config) (*pion.PeerConnection, error) {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || utils.ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, callerr.New("create peer connection", err)
	}
	return pc, nil
}

// Factory returns a negotiation.PeerFactory that builds pion peers from cfg.
func Factory(cfg *config.Config, logger *slog.Logger) negotiation.PeerFactory {
	return func(media negotiation.LocalMedia, hooks negotiation.PeerHooks) (negotiation.Peer, error) {
		p, err := NewPeer(cfg, media, hooks, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// NewPeer creates a peer connection carrying the tracks of media. Kinds the
// local side does not send are still negotiated as receive-only.
func NewPeer(cfg *config.Config, media negotiation.LocalMedia, hooks negotiation.PeerHooks, logger *slog.Logger) (*Peer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc, err := NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	p := &Peer{pc: pc, log: logger}

	sending := map[pion.RTPCodecType]bool{}
	if src, ok := media.(TrackSource); ok {
		for _, track := range src.Tracks() {
			sender, err := pc.AddTrack(track)
			if err != nil {
				pc.Close()
				return nil, callerr.New("add track", err)
			}
			sending[track.Kind()] = true
			go drainRTCP(sender)
		}
	}
	for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
		if sending[kind] {
			continue
		}
		if _, err := pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
			Direction: pion.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, callerr.New("add transceiver", err)
		}
	}

	p.setupHandlers(hooks)
	return p, nil
}

func (p *Peer) setupHandlers(hooks negotiation.PeerHooks) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil || hooks.OnICECandidate == nil {
			return
		}
		ci := c.ToJSON()
		cand := negotiation.Candidate{Candidate: ci.Candidate}
		if ci.SDPMid != nil {
			cand.SDPMid = *ci.SDPMid
		}
		if ci.SDPMLineIndex != nil {
			cand.SDPMLineIndex = *ci.SDPMLineIndex
		}
		hooks.OnICECandidate(cand)
	})

	p.pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		p.log.Debug("ice connection state changed", "state", state.String())
		if hooks.OnConnectivity == nil {
			return
		}
		switch state {
		case pion.ICEConnectionStateConnected, pion.ICEConnectionStateCompleted:
			hooks.OnConnectivity(negotiation.ConnectivityConnected)
		case pion.ICEConnectionStateDisconnected:
			hooks.OnConnectivity(negotiation.ConnectivityDisconnected)
		case pion.ICEConnectionStateFailed:
			hooks.OnConnectivity(negotiation.ConnectivityFailed)
		}
	})

	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		p.log.Info("remote track started", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if hooks.OnRemoteTrack != nil {
			hooks.OnRemoteTrack(track.Kind().String())
		}
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})
}

// drainRTCP keeps the sender's interceptors running.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (p *Peer) CreateOffer(iceRestart bool) (string, error) {
	offer, err := p.pc.CreateOffer(&pion.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return "", callerr.New("create offer", err)
	}
	if err = p.pc.SetLocalDescription(offer); err != nil {
		return "", callerr.New("set local description", err)
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *Peer) Answer(offerSDP string) (string, error) {
	offer := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: offerSDP}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", callerr.New("set remote description", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", callerr.New("create answer", err)
	}
	if err = p.pc.SetLocalDescription(answer); err != nil {
		return "", callerr.New("set local description", err)
	}
	return p.pc.LocalDescription().SDP, nil
}

func (p *Peer) SetAnswer(answerSDP string) error {
	answer := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: answerSDP}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return callerr.New("set remote description", err)
	}
	return nil
}

func (p *Peer) AddICECandidate(c negotiation.Candidate) error {
	mid, index := c.SDPMid, c.SDPMLineIndex
	if err := p.pc.AddICECandidate(pion.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}); err != nil {
		return callerr.New("add ICE candidate", err)
	}
	return nil
}

func (p *Peer) Close() error {
	return p.pc.Close()
}
