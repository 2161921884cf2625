package negotiation

import "github.com/kunalsinghdadhwal/axi-vid/cli/internal/signaling"

type event interface{}

type startCall struct{}

type hangUp struct{}

type toggleAudio struct{}

type toggleVideo struct{}

type inbound struct {
	msg *signaling.Message
}

type sendChat struct {
	text  string
	reply chan<- error
}

type channelChanged struct {
	state   signaling.State
	attempt int
	err     error
}

type mediaAcquired struct {
	gen   int
	media LocalMedia
	err   error
}

type statusResult struct {
	gen   int
	seq   int // membership sequence when the query started
	count int
	err   error
}

type localCandidate struct {
	peerGen int
	c       Candidate
}

type connectivityChanged struct {
	peerGen int
	state   Connectivity
}

type remoteTrack struct {
	peerGen int
	kind    string
}

// Follow feeds signaling channel events into m until the channel closes.
func (m *Machine) Follow(events <-chan signaling.Event) {
	for ev := range events {
		if ev.Message != nil {
			m.Deliver(ev.Message)
			continue
		}
		switch ev.State {
		case signaling.StateConnected:
			m.ChannelUp()
		case signaling.StateReconnecting:
			m.ChannelDown(ev.Attempt)
		case signaling.StateClosed:
			m.ChannelClosed(ev.Err)
		}
	}
}
