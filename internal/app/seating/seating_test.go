package seating

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/watchsync/internal/domain"
	"github.com/dkeye/watchsync/internal/protocol"
)

func uid(v domain.UserID) *domain.UserID { return &v }

func seated(t *testing.T, pairs map[domain.UserID]domain.SeatID) *Board {
	t.Helper()
	b := New()
	for u, s := range pairs {
		_, err := b.Assign(s, u)
		require.NoError(t, err)
	}
	return b
}

func TestAssign_LastWriteWins(t *testing.T) {
	b := New()

	changed, err := b.Assign("1-1", 1)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = b.Assign("1-1", 1)
	require.NoError(t, err)
	assert.False(t, changed, "same pair is a no-op")

	_, err = b.Assign("1-1", 2)
	require.NoError(t, err)
	_, ok := b.SeatOf(1)
	assert.False(t, ok, "displaced occupant loses the seat")

	_, err = b.Assign("2-3", 2)
	require.NoError(t, err)
	assert.Equal(t, map[domain.UserID]domain.SeatID{2: "2-3"}, b.View())
}

func TestAssign_RejectsBadSeat(t *testing.T) {
	b := New()
	_, err := b.Assign("front", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidSeat)
	assert.Empty(t, b.View())
}

func TestSeatHoldsOneUser(t *testing.T) {
	b := New()
	for i := 0; i < 50; i++ {
		_, err := b.Assign(domain.NewSeatID(i%3+1, i%2+1), domain.UserID(i%7+1))
		require.NoError(t, err)

		bySeat := map[domain.SeatID]domain.UserID{}
		for u, s := range b.View() {
			prev, dup := bySeat[s]
			require.False(t, dup, "seat %s held by %d and %d", s, prev, u)
			bySeat[s] = u
		}
	}
}

func TestSwap_ExchangesSeats(t *testing.T) {
	b := seated(t, map[domain.UserID]domain.SeatID{1: "1-1", 2: "2-4"})

	require.NoError(t, b.Swap(protocol.SeatSwap{RequesterID: uid(1), TargetID: uid(2)}))
	assert.Equal(t, map[domain.UserID]domain.SeatID{1: "2-4", 2: "1-1"}, b.View())
}

func TestSwap_MissingTargetLeavesSeatsUnchanged(t *testing.T) {
	b := seated(t, map[domain.UserID]domain.SeatID{1: "1-1", 2: "2-4"})
	before := b.View()

	err := b.Swap(protocol.SeatSwap{RequesterID: uid(1)})
	assert.ErrorIs(t, err, ErrMalformedSwap)
	assert.Equal(t, before, b.View())
}

func TestSwap_UnseatedPartyIsRejected(t *testing.T) {
	b := seated(t, map[domain.UserID]domain.SeatID{1: "1-1"})

	err := b.Swap(protocol.SeatSwap{RequesterID: uid(1), TargetID: uid(9)})
	assert.ErrorIs(t, err, ErrUnseated)
	assert.Equal(t, map[domain.UserID]domain.SeatID{1: "1-1"}, b.View())
}

func TestReplaceAll(t *testing.T) {
	b := seated(t, map[domain.UserID]domain.SeatID{9: "3-3"})

	err := b.ReplaceAll([]protocol.SeatAssignment{
		{SeatID: "1-1", UserID: 1},
		{SeatID: "bogus", UserID: 2},
		{SeatID: "1-2", UserID: 3},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidSeat)
	assert.Equal(t, map[domain.UserID]domain.SeatID{1: "1-1", 3: "1-2"}, b.View())
}

func TestResolveAudioRoute_UnseatedHasNoRoute(t *testing.T) {
	b := seated(t, map[domain.UserID]domain.SeatID{1: "1-1"})
	b.SetGlobalBroadcast(5, true)

	assert.Equal(t, AudioRoute{Scope: ScopeNone}, b.ResolveAudioRoute(5))
}

func TestResolveAudioRoute(t *testing.T) {
	b := seated(t, map[domain.UserID]domain.SeatID{1: "1-1", 2: "3-2", 3: "3-5"})

	assert.Equal(t, AudioRoute{Scope: ScopeRow, Row: 3}, b.ResolveAudioRoute(2))

	b.SetGlobalBroadcast(2, true)
	assert.Equal(t, AudioRoute{Scope: ScopeGlobal}, b.ResolveAudioRoute(2))

	b.SetHost(1)
	assert.Equal(t, AudioRoute{Scope: ScopeRow, Row: 1}, b.ResolveAudioRoute(1))
	b.SetHostBroadcast(true)
	assert.Equal(t, AudioRoute{Scope: ScopeGlobal}, b.ResolveAudioRoute(1))
}

func TestAudible(t *testing.T) {
	b := seated(t, map[domain.UserID]domain.SeatID{
		1: "1-1",
		2: "2-1",
		3: "2-2",
		4: "3-1",
	})

	assert.Equal(t, []domain.UserID{3}, b.Audible(2))
	assert.Nil(t, b.Audible(7), "unseated hears nobody")

	b.SetHost(1)
	b.SetHostBroadcast(true)
	b.SetGlobalBroadcast(4, true)
	b.SetGlobalBroadcast(8, true) // unseated broadcaster is not audible
	assert.Equal(t, []domain.UserID{1, 3, 4}, b.Audible(2))
	assert.Equal(t, []domain.UserID{4}, b.Audible(1))
}

func TestReset(t *testing.T) {
	b := seated(t, map[domain.UserID]domain.SeatID{1: "1-1"})
	b.SetGlobalBroadcast(1, true)
	b.SetHostBroadcast(true)

	b.Reset()
	assert.Empty(t, b.View())
	assert.Equal(t, AudioRoute{Scope: ScopeNone}, b.ResolveAudioRoute(1))
	assert.False(t, b.SetHostBroadcast(false))
}
