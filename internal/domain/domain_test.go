package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatIDParse(t *testing.T) {
	row, col, err := NewSeatID(3, 7).Parse()
	require.NoError(t, err)
	assert.Equal(t, 3, row)
	assert.Equal(t, 7, col)

	for _, bad := range []SeatID{"", "3", "a-1", "1-b", "0-1", "1-0", "-1-2"} {
		_, _, err := bad.Parse()
		assert.ErrorIs(t, err, ErrInvalidSeat, "seat %q", bad)
	}
}

func TestUserIDRoundTrip(t *testing.T) {
	id, err := ParseUserID(UserID(42).String())
	require.NoError(t, err)
	assert.Equal(t, UserID(42), id)

	_, err = ParseUserID("x")
	assert.Error(t, err)
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("alice"))
	assert.ErrorIs(t, ValidateUsername(""), ErrUsernameEmpty)
	assert.NoError(t, ValidateUsername(strings.Repeat("a", MaxUsernameLen)))
	assert.ErrorIs(t, ValidateUsername(strings.Repeat("a", MaxUsernameLen+1)), ErrUsernameTooLong)
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	s := SessionSnapshot{Members: []Member{NewMember(1, "a", RoleHost)}}
	c := s.Clone()
	c.Members[0].Username = "b"
	assert.Equal(t, "a", s.Members[0].Username)

	m, ok := s.Member(1)
	require.True(t, ok)
	assert.True(t, m.IsHost())
	_, ok = s.Member(2)
	assert.False(t, ok)
}
