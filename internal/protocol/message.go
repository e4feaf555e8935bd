// Package protocol defines the JSON control messages exchanged with the
// session server. Every message is an envelope {"type": ..., "data": {...}}
// whose type is one of a closed set.
package protocol

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

var (
	ErrEmptyType   = errors.New("message has no type")
	ErrUnknownType = errors.New("unknown message type")
)

type Type string

const (
	TypeSessionStatus       Type = "session_status"
	TypeSessionMemberUpdate Type = "session_member_update"
	TypeSessionError        Type = "session_error"
	TypeSessionEnded        Type = "session_ended"
	TypeUserJoined          Type = "user_joined"
	TypeUserLeft            Type = "user_left"
	TypeChatMessage         Type = "chat_message"
	TypePlaybackControl     Type = "playback_control"
	TypeSeatUpdate          Type = "seat_update"
	TypeSeatAssignment      Type = "seat_assignment"
	TypeSeatSwapRequest     Type = "seat_swap_request"
	TypeSeatSwapAccepted    Type = "seat_swap_accepted"
	TypeSeatSwapDeclined    Type = "seat_swap_declined"
	TypeSeatsAutoAssigned   Type = "seats_auto_assigned"
	TypeSeatsCleared        Type = "seats_cleared"
	TypeCameraStarted       Type = "camera_started"
	TypeCameraStopped       Type = "camera_stopped"
	TypeUserAudioState      Type = "user_audio_state"
	TypeReaction            Type = "reaction"
	TypePlatformSelected    Type = "platform_selected"
)

var known = map[Type]struct{}{
	TypeSessionStatus: {}, TypeSessionMemberUpdate: {}, TypeSessionError: {},
	TypeSessionEnded: {}, TypeUserJoined: {}, TypeUserLeft: {},
	TypeChatMessage: {}, TypePlaybackControl: {},
	TypeSeatUpdate: {}, TypeSeatAssignment: {}, TypeSeatSwapRequest: {},
	TypeSeatSwapAccepted: {}, TypeSeatSwapDeclined: {}, TypeSeatsAutoAssigned: {},
	TypeSeatsCleared: {}, TypeCameraStarted: {}, TypeCameraStopped: {},
	TypeUserAudioState: {}, TypeReaction: {}, TypePlatformSelected: {},
}

func (t Type) Known() bool {
	_, ok := known[t]
	return ok
}

// IsSession reports whether the type is folded by the session reducer.
func (t Type) IsSession() bool {
	switch t {
	case TypeSessionStatus, TypeSessionMemberUpdate, TypeSessionError,
		TypeSessionEnded, TypeUserJoined, TypeUserLeft:
		return true
	}
	return false
}

// Message is immutable once constructed; Data is the raw payload.
type Message struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New builds a message from a payload struct.
func New(t Type, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", t, err)
	}
	return Message{Type: t, Data: b}, nil
}

// Parse decodes and validates one envelope.
func Parse(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}
	if m.Type == "" {
		return Message{}, ErrEmptyType
	}
	if !m.Type.Known() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return m, nil
}

// Decode unmarshals the payload into v. A missing payload leaves v untouched.
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
