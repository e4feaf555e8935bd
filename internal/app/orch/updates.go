package orch

import (
	"time"

	"github.com/dkeye/watchsync/internal/app/seating"
	"github.com/dkeye/watchsync/internal/domain"
	"github.com/dkeye/watchsync/internal/protocol"
)

// Update is pushed to the UI on every externally visible change.
type Update interface{ isUpdate() }

type SnapshotChanged struct {
	Snapshot domain.SessionSnapshot
}

type SeatsChanged struct {
	Seats map[domain.UserID]domain.SeatID
}

type PlaybackChanged struct {
	MediaRef    string
	SeekSeconds float64
	Playing     bool
}

type RouteChanged struct {
	Route   seating.AudioRoute
	Audible []domain.UserID
}

type ChatReceived struct {
	Message domain.ChatMessage
	// History is set for messages replayed from the chat store.
	History bool
}

type SwapRequested struct {
	RequestID   string
	RequesterID domain.UserID
}

type SwapDeclined struct {
	RequestID string
	TargetID  domain.UserID
}

// PeerEvent carries presence traffic the client only relays: camera,
// reactions, platform choice and audio state.
type PeerEvent struct {
	Type   protocol.Type
	UserID domain.UserID
	Data   []byte
}

type ConnectionChanged struct {
	State   domain.ConnState
	Attempt int
	Delay   time.Duration
}

// Terminated is sent once when the session can no longer continue.
type Terminated struct {
	Reason string
	Err    error
}

func (SnapshotChanged) isUpdate()   {}
func (SeatsChanged) isUpdate()      {}
func (PlaybackChanged) isUpdate()   {}
func (RouteChanged) isUpdate()      {}
func (ChatReceived) isUpdate()      {}
func (SwapRequested) isUpdate()     {}
func (SwapDeclined) isUpdate()      {}
func (PeerEvent) isUpdate()         {}
func (ConnectionChanged) isUpdate() {}
func (Terminated) isUpdate()        {}
