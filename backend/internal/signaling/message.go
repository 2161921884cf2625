package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type constants.
const (
	MessageTypeOffer       = "offer"
	MessageTypeAnswer      = "answer"
	MessageTypeICE         = "ice"
	MessageTypeChat        = "chat"
	MessageTypeMediaStatus = "media_status"

	MessageTypeJoin     = "join"
	MessageTypeLeave    = "leave"
	MessageTypeRoomInfo = "room_info"
	MessageTypeError    = "error"

	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// ErrMalformedMessage is returned for frames that are not a JSON object with
// a string "type" field.
var ErrMalformedMessage = errors.New("malformed message")

// Role is the negotiation role the registry assigns to a slot.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// roleForSlot maps slot 0 to the offering side.
func roleForSlot(slot int) Role {
	if slot == 0 {
		return RoleInitiator
	}
	return RoleResponder
}

// isRelayType reports whether frames of kind t are forwarded verbatim to the
// other slot.
func isRelayType(t string) bool {
	switch t {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeICE, MessageTypeChat, MessageTypeMediaStatus:
		return true
	}
	return false
}

// Envelope is the only part of a client frame the relay looks at.
type Envelope struct {
	Type string `json:"type"`
}

// ParseEnvelope extracts the message kind from a raw frame. The rest of the
// frame is never decoded.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return env, nil
}

// RoomInfo is sent to a participant whenever the room's occupancy changes.
type RoomInfo struct {
	Type      string `json:"type"`
	PeerCount int    `json:"peer_count"`
	Role      Role   `json:"role"`
	Slot      int    `json:"slot"`
}

// ErrorMessage carries a human readable error back to a single link.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type bareMessage struct {
	Type string `json:"type"`
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only fixed server-side structs are encoded here.
		panic(fmt.Sprintf("signaling: encode %T: %v", v, err))
	}
	return b
}

func roomInfoFrame(peerCount, slot int) []byte {
	return encode(RoomInfo{
		Type:      MessageTypeRoomInfo,
		PeerCount: peerCount,
		Role:      roleForSlot(slot),
		Slot:      slot,
	})
}

func errorFrame(msg string) []byte {
	return encode(ErrorMessage{Type: MessageTypeError, Message: msg})
}

var (
	joinFrame  = encode(bareMessage{Type: MessageTypeJoin})
	leaveFrame = encode(bareMessage{Type: MessageTypeLeave})
	pongFrame  = encode(bareMessage{Type: MessageTypePong})
)
