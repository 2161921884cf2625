package callerr

import (
	"errors"
	"fmt"
)

var (
	ErrRoomFull               = errors.New("room is full")
	ErrMalformedMessage       = errors.New("malformed message")
	ErrMediaAcquisitionDenied = errors.New("camera/microphone permission denied")
	ErrMediaDeviceUnavailable = errors.New("no camera or microphone found")
	ErrMediaDeviceBusy        = errors.New("camera or microphone is in use by another application")
	ErrChannelDisconnected    = errors.New("signaling channel disconnected")
	ErrNegotiationFailed      = errors.New("negotiation failed")
	ErrReconnectExhausted     = errors.New("reconnect attempts exhausted")
	ErrSignalingError         = errors.New("signaling server error")
)

type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func Wrap(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// Reason returns the user-facing text for err: the taxonomy sentinel it
// wraps when there is one, otherwise the full message.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, sentinel := range []error{
		ErrRoomFull,
		ErrMediaAcquisitionDenied,
		ErrMediaDeviceUnavailable,
		ErrMediaDeviceBusy,
		ErrChannelDisconnected,
		ErrReconnectExhausted,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
