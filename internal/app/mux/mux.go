// Package mux splits the inbound unit stream into control messages and
// media chunks.
package mux

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/watchsync/internal/core"
	"github.com/dkeye/watchsync/internal/protocol"
)

var ErrUnknownKind = errors.New("unknown unit kind")

type Kind int

const (
	KindText Kind = iota + 1
	KindBinary
)

type Classified struct {
	Kind    Kind
	Message protocol.Message
	Payload []byte
}

// Classify parses text units as control messages and passes binary
// units through untouched.
func Classify(u core.Unit) (Classified, error) {
	switch u.Kind {
	case core.UnitText:
		msg, err := protocol.Parse(u.Data)
		if err != nil {
			return Classified{}, err
		}
		return Classified{Kind: KindText, Message: msg}, nil
	case core.UnitBinary:
		return Classified{Kind: KindBinary, Payload: u.Data}, nil
	default:
		return Classified{}, fmt.Errorf("%w: %d", ErrUnknownKind, u.Kind)
	}
}

// Encode turns a control message into an outbound text unit.
func Encode(msg protocol.Message) (core.Unit, error) {
	b, err := msg.Encode()
	if err != nil {
		return core.Unit{}, fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	return core.Text(b), nil
}

// BinaryConsumer receives media chunks. Framing is its own business.
type BinaryConsumer interface {
	ConsumeChunk(chunk []byte)
}

type BinaryConsumerFunc func([]byte)

func (f BinaryConsumerFunc) ConsumeChunk(chunk []byte) { f(chunk) }

// Stats counts what the multiplexer did with inbound units.
type Stats struct {
	Control       int
	Binary        int
	Malformed     int
	DroppedBinary int
}

// Mux routes classified units. Binary chunks that arrive while no
// consumer is registered are dropped, never held for a later consumer.
type Mux struct {
	binary BinaryConsumer
	stats  Stats
}

func New() *Mux { return &Mux{} }

func (m *Mux) SetBinaryConsumer(c BinaryConsumer) { m.binary = c }
func (m *Mux) ClearBinaryConsumer()               { m.binary = nil }
func (m *Mux) HasBinaryConsumer() bool            { return m.binary != nil }
func (m *Mux) Stats() Stats                       { return m.stats }

// Route returns the control message carried by u, if any.
func (m *Mux) Route(u core.Unit) (protocol.Message, bool) {
	c, err := Classify(u)
	if err != nil {
		m.stats.Malformed++
		log.Warn().Str("module", "app.mux").Err(err).Int("bytes", len(u.Data)).Msg("discarding malformed unit")
		return protocol.Message{}, false
	}
	if c.Kind == KindText {
		m.stats.Control++
		return c.Message, true
	}

	if m.binary == nil {
		m.stats.DroppedBinary++
		log.Debug().Str("module", "app.mux").Int("bytes", len(c.Payload)).Msg("no binary consumer, chunk dropped")
		return protocol.Message{}, false
	}
	m.stats.Binary++
	m.binary.ConsumeChunk(c.Payload)
	return protocol.Message{}, false
}
