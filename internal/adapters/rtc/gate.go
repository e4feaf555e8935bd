package rtc

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dkeye/watchsync/internal/domain"
)

const streamPrefix = "user-"

// ParseStreamID extracts the publishing user from a stream id of the form "user-<id>".
func ParseStreamID(streamID string) (domain.UserID, bool) {
	raw, ok := strings.CutPrefix(streamID, streamPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return domain.UserID(id), true
}

type GateState int32

const (
	GateOpen GateState = iota
	GateMuted
	GateClosed
)

// Gate is the per-peer switch a forwarding loop checks for every packet.
type Gate struct {
	state atomic.Int32
}

func newGate(audible bool) *Gate {
	g := &Gate{}
	if !audible {
		g.state.Store(int32(GateMuted))
	}
	return g
}

func (g *Gate) State() GateState { return GateState(g.state.Load()) }

func (g *Gate) set(s GateState) {
	// closed is final
	for {
		cur := g.state.Load()
		if GateState(cur) == GateClosed || g.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Gates tracks which peers are audible and the gates of their live tracks.
type Gates struct {
	mu      sync.RWMutex
	audible map[domain.UserID]struct{}
	gates   map[domain.UserID]*Gate
}

func NewGates() *Gates {
	return &Gates{
		audible: make(map[domain.UserID]struct{}),
		gates:   make(map[domain.UserID]*Gate),
	}
}

// SetAudible opens the gates of peers and mutes every other one.
func (g *Gates) SetAudible(peers []domain.UserID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.audible)
	for _, p := range peers {
		g.audible[p] = struct{}{}
	}
	for user, gate := range g.gates {
		if _, ok := g.audible[user]; ok {
			gate.set(GateOpen)
		} else {
			gate.set(GateMuted)
		}
	}
}

func (g *Gates) Audible(user domain.UserID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.audible[user]
	return ok
}

// Attach returns a fresh gate for user's track, closing the one it replaces.
func (g *Gates) Attach(user domain.UserID) *Gate {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.gates[user]; ok {
		old.set(GateClosed)
	}
	_, audible := g.audible[user]
	gate := newGate(audible)
	g.gates[user] = gate
	return gate
}

// Detach closes user's gate if it is still the current one.
func (g *Gates) Detach(user domain.UserID, gate *Gate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gate.set(GateClosed)
	if g.gates[user] == gate {
		delete(g.gates, user)
	}
}

func (g *Gates) CloseAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for user, gate := range g.gates {
		gate.set(GateClosed)
		delete(g.gates, user)
	}
}
