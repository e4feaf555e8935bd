// Package session folds control messages into the session snapshot.
//
// The snapshot is a pure function of the messages received since the last
// full resync (session_status). Each resync opens a new epoch and resets
// the journal, so a journal can always be replayed to the same snapshot.
package session

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/dkeye/watchsync/internal/domain"
	"github.com/dkeye/watchsync/internal/protocol"
)

var (
	ErrBeforeResync = errors.New("delta before full resync")
	ErrNotSession   = errors.New("not a session message")
	ErrEnded        = errors.New("session ended")
)

// TransportErrorCode marks session_error entries journaled by Fail.
const TransportErrorCode = "transport"

type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Synchronized
	Ended
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Synchronized:
		return "synchronized"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Entry is one applied message of the current epoch.
type Entry struct {
	Seq     uint64
	Message protocol.Message
}

// Reducer owns the only SessionSnapshot of a room view.
type Reducer struct {
	phase   Phase
	snap    domain.SessionSnapshot
	epoch   int
	seq     uint64
	journal []Entry
}

func New() *Reducer {
	return &Reducer{phase: Disconnected}
}

// Replay builds a reducer from an ordered message history.
func Replay(msgs []protocol.Message) *Reducer {
	r := New()
	r.Connecting()
	for _, m := range msgs {
		_, _ = r.Apply(m)
	}
	return r
}

func (r *Reducer) Phase() Phase { return r.phase }
func (r *Reducer) Epoch() int   { return r.epoch }

// Trusted reports whether deltas may be applied against the snapshot.
func (r *Reducer) Trusted() bool { return r.phase == Synchronized }

// Snapshot returns a copy; callers never share the reducer's state.
func (r *Reducer) Snapshot() domain.SessionSnapshot { return r.snap.Clone() }

func (r *Reducer) Journal() []Entry { return slices.Clone(r.journal) }

// Connecting marks a (re)connect. Nothing is trusted until the next resync,
// and an ended session stays ended until then.
func (r *Reducer) Connecting() {
	if r.phase != Ended {
		r.phase = Connecting
	}
}

// Disconnected marks the loss of the transport. An ended session stays ended.
func (r *Reducer) Disconnected() {
	if r.phase != Ended {
		r.phase = Disconnected
	}
}

// Fail records a transport-level error so every consumer sees it. The error
// is journaled as a session_error so Replay rebuilds the same snapshot.
func (r *Reducer) Fail(err error) {
	r.Disconnected()
	next := r.snap.Clone()
	next.LastError = err.Error()
	m, _ := protocol.New(protocol.TypeSessionError, protocol.SessionError{Code: TransportErrorCode, Message: next.LastError})
	r.commit(m, next)
}

// Apply folds msg into the snapshot and reports whether it changed.
// Deltas that arrive before the first resync of a connection return ErrBeforeResync.
func (r *Reducer) Apply(msg protocol.Message) (bool, error) {
	if !msg.Type.IsSession() {
		return false, fmt.Errorf("%w: %s", ErrNotSession, msg.Type)
	}
	if r.phase == Disconnected {
		return false, fmt.Errorf("%w: %s while disconnected", ErrBeforeResync, msg.Type)
	}

	switch msg.Type {
	case protocol.TypeSessionStatus:
		return r.resync(msg)
	case protocol.TypeSessionError:
		var p protocol.SessionError
		if err := msg.Decode(&p); err != nil {
			return false, err
		}
		next := r.snap.Clone()
		next.LastError = p.Message
		if next.LastError == "" {
			next.LastError = p.Code
		}
		r.commit(msg, next)
		return true, nil
	}

	if r.phase != Synchronized {
		return false, fmt.Errorf("%w: %s in phase %s", ErrBeforeResync, msg.Type, r.phase)
	}

	switch msg.Type {
	case protocol.TypeSessionMemberUpdate:
		var p protocol.SessionMemberUpdate
		if err := msg.Decode(&p); err != nil {
			return false, err
		}
		r.commit(msg, r.merged(p.Members, p.Removed))
	case protocol.TypeUserJoined:
		var p protocol.MemberPayload
		if err := msg.Decode(&p); err != nil {
			return false, err
		}
		r.commit(msg, r.merged([]protocol.MemberPayload{p}, nil))
	case protocol.TypeUserLeft:
		var p protocol.UserLeft
		if err := msg.Decode(&p); err != nil {
			return false, err
		}
		r.commit(msg, r.merged(nil, []domain.UserID{p.UserID}))
	case protocol.TypeSessionEnded:
		next := r.snap.Clone()
		next.IsActive = false
		r.commit(msg, next)
		r.phase = Ended
	}
	return true, nil
}

func (r *Reducer) resync(msg protocol.Message) (bool, error) {
	var p protocol.SessionStatus
	if err := msg.Decode(&p); err != nil {
		return false, err
	}
	next := domain.SessionSnapshot{
		SessionID: p.SessionID,
		IsActive:  p.IsActive,
		HostID:    p.HostID,
		StartedAt: p.StartedTime(),
	}
	next.Members = mergeMembers(nil, p.Members, nil)
	if next.HostID == 0 {
		for _, m := range next.Members {
			if m.IsHost() {
				next.HostID = m.UserID
				break
			}
		}
	}

	r.epoch++
	r.journal = r.journal[:0]
	r.commit(msg, next)
	r.phase = Synchronized
	return true, nil
}

func (r *Reducer) merged(deltas []protocol.MemberPayload, removed []domain.UserID) domain.SessionSnapshot {
	next := r.snap.Clone()
	next.Members = mergeMembers(next.Members, deltas, removed)
	for _, d := range deltas {
		if d.Role != nil && *d.Role == domain.RoleHost {
			next.HostID = d.UserID
		}
	}
	// a single host: demote anyone else still flagged as host
	for i, m := range next.Members {
		if m.IsHost() && m.UserID != next.HostID {
			next.Members[i].Role = domain.RoleViewer
		}
	}
	return next
}

func (r *Reducer) commit(msg protocol.Message, next domain.SessionSnapshot) {
	r.seq++
	r.journal = append(r.journal, Entry{Seq: r.seq, Message: msg})
	r.snap = next
}

// mergeMembers applies deltas keyed by user id: unknown users are added,
// known users get only the fields the delta carries.
func mergeMembers(base []domain.Member, deltas []protocol.MemberPayload, removed []domain.UserID) []domain.Member {
	idx := make(map[domain.UserID]domain.Member, len(base)+len(deltas))
	for _, m := range base {
		idx[m.UserID] = m
	}
	for _, d := range deltas {
		m, ok := idx[d.UserID]
		if !ok {
			m = domain.NewMember(d.UserID, "", "")
		}
		if d.Username != nil {
			m.Username = *d.Username
		}
		if d.Role != nil {
			m.Role = *d.Role
		}
		idx[d.UserID] = m
	}
	for _, id := range removed {
		delete(idx, id)
	}
	out := slices.Collect(maps.Values(idx))
	slices.SortFunc(out, func(a, b domain.Member) int { return cmp.Compare(a.UserID, b.UserID) })
	return out
}
