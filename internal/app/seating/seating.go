// Package seating keeps the seat map and derives audio routing from it.
package seating

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/dkeye/watchsync/internal/domain"
	"github.com/dkeye/watchsync/internal/protocol"
)

var (
	ErrMalformedSwap = errors.New("swap is missing a party")
	ErrUnseated      = errors.New("swap party has no seat")
)

type Scope int

const (
	ScopeNone Scope = iota
	ScopeGlobal
	ScopeRow
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeRow:
		return "row"
	default:
		return "none"
	}
}

// AudioRoute says where the local user's voice goes. Row is set only for ScopeRow.
type AudioRoute struct {
	Scope Scope `json:"scope"`
	Row   int   `json:"row,omitempty"`
}

func (r AudioRoute) String() string {
	if r.Scope == ScopeRow {
		return fmt.Sprintf("row %d", r.Row)
	}
	return r.Scope.String()
}

// Board owns the seat assignment. Each seat holds at most one user and
// each user sits in at most one seat.
type Board struct {
	seats         map[domain.SeatID]domain.UserID
	users         map[domain.UserID]domain.SeatID
	global        map[domain.UserID]struct{}
	host          domain.UserID
	hostBroadcast bool
}

func New() *Board {
	return &Board{
		seats:  make(map[domain.SeatID]domain.UserID),
		users:  make(map[domain.UserID]domain.SeatID),
		global: make(map[domain.UserID]struct{}),
	}
}

// Assign seats user at seat. The latest assignment wins: a previous
// occupant loses the seat and the user's old seat is freed.
func (b *Board) Assign(seat domain.SeatID, user domain.UserID) (bool, error) {
	if _, _, err := seat.Parse(); err != nil {
		return false, err
	}
	if cur, ok := b.seats[seat]; ok && cur == user {
		return false, nil
	}
	if prev, ok := b.seats[seat]; ok {
		delete(b.users, prev)
	}
	if old, ok := b.users[user]; ok {
		delete(b.seats, old)
	}
	b.seats[seat] = user
	b.users[user] = seat
	return true, nil
}

func (b *Board) Vacate(user domain.UserID) bool {
	seat, ok := b.users[user]
	if !ok {
		return false
	}
	delete(b.users, user)
	delete(b.seats, seat)
	return true
}

// ReplaceAll installs a server-computed seating. Invalid entries are skipped
// and reported; the rest still apply.
func (b *Board) ReplaceAll(assignments []protocol.SeatAssignment) error {
	b.Clear()
	var errs []error
	for _, a := range assignments {
		if _, err := b.Assign(a.SeatID, a.UserID); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", a.UserID, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Board) Clear() {
	clear(b.seats)
	clear(b.users)
}

// Reset drops seats and broadcast flags.
func (b *Board) Reset() {
	b.Clear()
	clear(b.global)
	b.host = 0
	b.hostBroadcast = false
}

// Swap exchanges the seats of both parties, or does nothing.
func (b *Board) Swap(p protocol.SeatSwap) error {
	requester, target, ok := p.Parties()
	if !ok {
		return ErrMalformedSwap
	}
	rs, ok := b.users[requester]
	if !ok {
		return fmt.Errorf("%w: requester %s", ErrUnseated, requester)
	}
	ts, ok := b.users[target]
	if !ok {
		return fmt.Errorf("%w: target %s", ErrUnseated, target)
	}
	b.seats[rs], b.seats[ts] = target, requester
	b.users[requester], b.users[target] = ts, rs
	return nil
}

func (b *Board) SetGlobalBroadcast(user domain.UserID, on bool) bool {
	_, was := b.global[user]
	if on {
		b.global[user] = struct{}{}
	} else {
		delete(b.global, user)
	}
	return was != on
}

func (b *Board) SetHost(user domain.UserID) bool {
	changed := b.host != user
	b.host = user
	return changed
}

func (b *Board) SetHostBroadcast(on bool) bool {
	changed := b.hostBroadcast != on
	b.hostBroadcast = on
	return changed
}

func (b *Board) SeatOf(user domain.UserID) (domain.SeatID, bool) {
	s, ok := b.users[user]
	return s, ok
}

// View returns a copy of the user to seat mapping.
func (b *Board) View() map[domain.UserID]domain.SeatID {
	return maps.Clone(b.users)
}

func (b *Board) broadcasting(user domain.UserID) bool {
	if _, ok := b.global[user]; ok {
		return true
	}
	return b.hostBroadcast && user == b.host && user != 0
}

// ResolveAudioRoute derives the local user's route. No seat means no route,
// even for broadcasters.
func (b *Board) ResolveAudioRoute(local domain.UserID) AudioRoute {
	seat, ok := b.users[local]
	if !ok {
		return AudioRoute{Scope: ScopeNone}
	}
	if b.broadcasting(local) {
		return AudioRoute{Scope: ScopeGlobal}
	}
	row, err := seat.Row()
	if err != nil {
		return AudioRoute{Scope: ScopeNone}
	}
	return AudioRoute{Scope: ScopeRow, Row: row}
}

// Audible lists the seated peers whose audio local should hear: its own
// row plus everyone broadcasting. Sorted by user id.
func (b *Board) Audible(local domain.UserID) []domain.UserID {
	seat, ok := b.users[local]
	if !ok {
		return nil
	}
	row, err := seat.Row()
	if err != nil {
		return nil
	}
	var out []domain.UserID
	for user, s := range b.users {
		if user == local {
			continue
		}
		if r, err := s.Row(); (err == nil && r == row) || b.broadcasting(user) {
			out = append(out, user)
		}
	}
	slices.Sort(out)
	return out
}
