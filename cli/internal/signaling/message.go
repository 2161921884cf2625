package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/kunalsinghdadhwal/axi-vid/cli/internal/callerr"
)

// Message type constants.
const (
	MessageTypeOffer       = "offer"
	MessageTypeAnswer      = "answer"
	MessageTypeICE         = "ice"
	MessageTypeChat        = "chat"
	MessageTypeMediaStatus = "media_status"
	MessageTypeLeave       = "leave"

	MessageTypeJoin     = "join"
	MessageTypeRoomInfo = "room_info"
	MessageTypeError    = "error"

	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// Roles assigned by the server in room_info.
const (
	RoleInitiator = "initiator"
	RoleResponder = "responder"
)

// Message is one signaling frame. Only the fields of its Type are meaningful;
// the others stay zero and are not sent.
type Message struct {
	Type string

	// offer, answer
	SDP string

	// ice
	Candidate     string
	SDPMid        string
	SDPMLineIndex uint16

	// chat body or error text
	Text string

	// media_status
	Audio bool
	Video bool

	// room_info
	PeerCount int
	Role      string
	Slot      int
}

type wireMessage struct {
	Type          string  `json:"type"`
	SDP           *string `json:"sdp,omitempty"`
	Candidate     *string `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	Message       *string `json:"message,omitempty"`
	Audio         *bool   `json:"audio,omitempty"`
	Video         *bool   `json:"video,omitempty"`
	PeerCount     *int    `json:"peer_count,omitempty"`
	Role          *string `json:"role,omitempty"`
	Slot          *int    `json:"slot,omitempty"`
}

// MarshalJSON writes exactly the fields of the message kind, so zero values
// such as sdpMLineIndex 0 or audio false are still on the wire.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Type: m.Type}
	switch m.Type {
	case MessageTypeOffer, MessageTypeAnswer:
		w.SDP = &m.SDP
	case MessageTypeICE:
		w.Candidate = &m.Candidate
		w.SDPMid = &m.SDPMid
		w.SDPMLineIndex = &m.SDPMLineIndex
	case MessageTypeChat, MessageTypeError:
		w.Message = &m.Text
	case MessageTypeMediaStatus:
		w.Audio = &m.Audio
		w.Video = &m.Video
	case MessageTypeRoomInfo:
		w.PeerCount = &m.PeerCount
		w.Role = &m.Role
		w.Slot = &m.Slot
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{Type: w.Type}
	if w.SDP != nil {
		m.SDP = *w.SDP
	}
	if w.Candidate != nil {
		m.Candidate = *w.Candidate
	}
	if w.SDPMid != nil {
		m.SDPMid = *w.SDPMid
	}
	if w.SDPMLineIndex != nil {
		m.SDPMLineIndex = *w.SDPMLineIndex
	}
	if w.Message != nil {
		m.Text = *w.Message
	}
	if w.Audio != nil {
		m.Audio = *w.Audio
	}
	if w.Video != nil {
		m.Video = *w.Video
	}
	if w.PeerCount != nil {
		m.PeerCount = *w.PeerCount
	}
	if w.Role != nil {
		m.Role = *w.Role
	}
	if w.Slot != nil {
		m.Slot = *w.Slot
	}
	return nil
}

// Decode parses one inbound frame.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", callerr.ErrMalformedMessage, err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("%w: missing type", callerr.ErrMalformedMessage)
	}
	return &m, nil
}

// Constructors for outbound frames.

func Offer(sdp string) *Message {
	return &Message{Type: MessageTypeOffer, SDP: sdp}
}

func Answer(sdp string) *Message {
	return &Message{Type: MessageTypeAnswer, SDP: sdp}
}

func ICE(candidate, sdpMid string, sdpMLineIndex uint16) *Message {
	return &Message{Type: MessageTypeICE, Candidate: candidate, SDPMid: sdpMid, SDPMLineIndex: sdpMLineIndex}
}

func Chat(text string) *Message {
	return &Message{Type: MessageTypeChat, Text: text}
}

func MediaStatus(audio, video bool) *Message {
	return &Message{Type: MessageTypeMediaStatus, Audio: audio, Video: video}
}

func Leave() *Message {
	return &Message{Type: MessageTypeLeave}
}
