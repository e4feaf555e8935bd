package core

import (
	"context"
	"errors"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Frame is a raw payload as read from or written to the socket.
type Frame []byte

type UnitKind int

const (
	UnitText UnitKind = iota + 1
	UnitBinary
)

func (k UnitKind) String() string {
	switch k {
	case UnitText:
		return "text"
	case UnitBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Unit is one transport message: a control frame or a media chunk.
type Unit struct {
	Kind UnitKind
	Data Frame
}

func Text(b []byte) Unit   { return Unit{Kind: UnitText, Data: b} }
func Binary(b []byte) Unit { return Unit{Kind: UnitBinary, Data: b} }

// Transport abstracts one live duplex connection.
// Owned by the adapter; the link must Close() it.
type Transport interface {
	TrySend(Unit) error
	Close()
}

type EventKind int

const (
	EventOpened EventKind = iota + 1
	EventMessage
	EventClosed
	EventRetryDue
)

// Event is what transports and timers hand to the event loop.
// Gen identifies the dial attempt that produced it.
type Event struct {
	Kind      EventKind
	Gen       uint64
	Transport Transport
	Unit      Unit
	Err       error
}

// Sink receives events from transport goroutines, in the order they happened.
type Sink func(Event)

// Dialer opens a transport. On success it must emit exactly one EventOpened
// before any EventMessage, and exactly one EventClosed when the connection
// ends. A returned error means nothing was emitted.
type Dialer interface {
	Dial(ctx context.Context, url string, gen uint64, sink Sink) error
}
