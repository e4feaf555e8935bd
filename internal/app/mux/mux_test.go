package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/watchsync/internal/core"
	"github.com/dkeye/watchsync/internal/protocol"
)

func TestClassify(t *testing.T) {
	c, err := Classify(core.Text([]byte(`{"type":"seats_cleared"}`)))
	require.NoError(t, err)
	assert.Equal(t, KindText, c.Kind)
	assert.Equal(t, protocol.TypeSeatsCleared, c.Message.Type)

	c, err = Classify(core.Binary([]byte{0xde, 0xad}))
	require.NoError(t, err)
	assert.Equal(t, KindBinary, c.Kind)
	assert.Equal(t, []byte{0xde, 0xad}, c.Payload)

	_, err = Classify(core.Unit{Kind: 99})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRoute_MalformedTextIsDiscarded(t *testing.T) {
	m := New()
	_, ok := m.Route(core.Text([]byte(`{"type":`)))
	assert.False(t, ok)

	msg, ok := m.Route(core.Text([]byte(`{"type":"reaction","data":{"user_id":1,"emoji":"👏"}}`)))
	require.True(t, ok)
	assert.Equal(t, protocol.TypeReaction, msg.Type)
	assert.Equal(t, Stats{Control: 1, Malformed: 1}, m.Stats())
}

func TestRoute_BinaryWithoutConsumerIsDroppedNotBuffered(t *testing.T) {
	m := New()
	_, ok := m.Route(core.Binary([]byte("stale")))
	assert.False(t, ok)

	var got [][]byte
	m.SetBinaryConsumer(BinaryConsumerFunc(func(b []byte) { got = append(got, b) }))
	m.Route(core.Binary([]byte("fresh")))

	require.Len(t, got, 1)
	assert.Equal(t, "fresh", string(got[0]))
	assert.Equal(t, 1, m.Stats().DroppedBinary)

	m.ClearBinaryConsumer()
	m.Route(core.Binary([]byte("late")))
	assert.Len(t, got, 1)
	assert.Equal(t, 2, m.Stats().DroppedBinary)
}

func TestEncode(t *testing.T) {
	msg, err := protocol.New(protocol.TypeChatMessage, protocol.ChatMessage{UserID: 2, Text: "hi"})
	require.NoError(t, err)
	u, err := Encode(msg)
	require.NoError(t, err)
	assert.Equal(t, core.UnitText, u.Kind)

	back, err := protocol.Parse(u.Data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeChatMessage, back.Type)
}
