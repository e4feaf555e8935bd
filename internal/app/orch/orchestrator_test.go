package orch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/watchsync/internal/app/link"
	"github.com/dkeye/watchsync/internal/app/mux"
	"github.com/dkeye/watchsync/internal/app/outbound"
	"github.com/dkeye/watchsync/internal/app/seating"
	"github.com/dkeye/watchsync/internal/core"
	"github.com/dkeye/watchsync/internal/domain"
	"github.com/dkeye/watchsync/internal/metrics"
	"github.com/dkeye/watchsync/internal/protocol"
)

const (
	localUser domain.UserID = 5
	hostUser  domain.UserID = 1
)

const within = time.Second

// fakeConn plays the server end of one connection.
type fakeConn struct {
	gen  uint64
	sink core.Sink
	sent chan core.Unit

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) TrySend(u core.Unit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.sent <- u:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *fakeConn) Close() { go c.closeWith(core.CloseNormal) }

func (c *fakeConn) closeWith(code int) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.sink(core.Event{Kind: core.EventClosed, Gen: c.gen, Err: &core.CloseError{Code: code}})
}

func (c *fakeConn) push(t *testing.T, typ protocol.Type, payload any) {
	t.Helper()
	m, err := protocol.New(typ, payload)
	require.NoError(t, err)
	u, err := mux.Encode(m)
	require.NoError(t, err)
	c.sink(core.Event{Kind: core.EventMessage, Gen: c.gen, Unit: u})
}

func (c *fakeConn) pushRaw(u core.Unit) {
	c.sink(core.Event{Kind: core.EventMessage, Gen: c.gen, Unit: u})
}

type fakeDialer struct {
	conns chan *fakeConn
	fail  bool
}

func newFakeDialer() *fakeDialer { return &fakeDialer{conns: make(chan *fakeConn, 8)} }

func (d *fakeDialer) Dial(_ context.Context, _ string, gen uint64, sink core.Sink) error {
	if d.fail {
		return &core.CloseError{Code: core.CloseAbnormal, Reason: "refused"}
	}
	c := &fakeConn{gen: gen, sink: sink, sent: make(chan core.Unit, 64)}
	sink(core.Event{Kind: core.EventOpened, Gen: gen, Transport: c})
	d.conns <- c
	return nil
}

type fakeGate struct {
	mu   sync.Mutex
	sets [][]domain.UserID
}

func (g *fakeGate) SetAudible(peers []domain.UserID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sets = append(g.sets, peers)
}

func (g *fakeGate) last() []domain.UserID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sets) == 0 {
		return nil
	}
	return g.sets[len(g.sets)-1]
}

type fakeAPI struct {
	core.SessionAPI
	history []domain.ChatMessage
	active  *core.SessionInfo

	mu      sync.Mutex
	ended   []domain.SessionID
	created []string
}

func (a *fakeAPI) ActiveSession(_ context.Context, room string) (core.SessionInfo, error) {
	if a.active == nil {
		return core.SessionInfo{}, core.ErrNoActiveSession
	}
	return *a.active, nil
}

func (a *fakeAPI) CreateSession(_ context.Context, room string) (core.SessionInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, room)
	return core.SessionInfo{SessionID: "s-new", RoomID: room, IsActive: true}, nil
}

func (a *fakeAPI) EndSession(_ context.Context, id domain.SessionID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ended = append(a.ended, id)
	return nil
}

func (a *fakeAPI) ChatHistory(context.Context, domain.SessionID) ([]domain.ChatMessage, error) {
	return a.history, nil
}

func neverFire(time.Duration, func()) func() { return func() {} }

type harness struct {
	o       *Orchestrator
	dialer  *fakeDialer
	reg     *prometheus.Registry
	metrics *metrics.Metrics
}

func start(t *testing.T, cfg Config, deps Deps) *harness {
	t.Helper()
	if cfg.LocalUser == 0 {
		cfg.LocalUser = localUser
	}
	cfg.Target = link.Target{Endpoint: "ws://watch.test/ws", Token: "tok"}
	if cfg.Link.BaseDelay == 0 {
		cfg.Link = link.DefaultOptions()
	}
	if cfg.Outbound.Capacity == 0 {
		cfg.Outbound = outbound.DefaultOptions()
	}
	d, _ := deps.Dialer.(*fakeDialer)
	if d == nil {
		d = newFakeDialer()
		deps.Dialer = d
	}
	reg := prometheus.NewRegistry()
	deps.Metrics = metrics.New(reg)
	if deps.Scheduler == nil {
		deps.Scheduler = neverFire
	}

	o := New(cfg, deps)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-o.Done()
	})
	return &harness{o: o, dialer: d, reg: reg, metrics: deps.Metrics}
}

func (h *harness) conn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-h.dialer.conns:
		return c
	case <-time.After(within):
		t.Fatalf("timed out waiting for dial")
		return nil
	}
}

// recv waits for the next update of type T, skipping others.
func recv[T Update](t *testing.T, ch <-chan Update) T {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				t.Fatalf("updates closed")
			}
			if v, ok := u.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func recvSent(t *testing.T, c *fakeConn) protocol.Message {
	t.Helper()
	select {
	case u := <-c.sent:
		m, err := protocol.Parse(u.Data)
		require.NoError(t, err)
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for outbound unit")
		return protocol.Message{}
	}
}

func view(t *testing.T, o *Orchestrator) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()
	v, err := o.View(ctx)
	require.NoError(t, err)
	return v
}

func str(s string) *string { return &s }

func role(r domain.Role) *domain.Role { return &r }

func sessionStatus(members ...domain.UserID) protocol.SessionStatus {
	s := protocol.SessionStatus{SessionID: "s-1", IsActive: true, HostID: hostUser}
	for _, id := range members {
		r := domain.RoleViewer
		if id == hostUser {
			r = domain.RoleHost
		}
		s.Members = append(s.Members, protocol.MemberPayload{UserID: id, Username: str("u" + id.String()), Role: role(r)})
	}
	return s
}

func synced(t *testing.T, h *harness) *fakeConn {
	t.Helper()
	c := h.conn(t)
	c.push(t, protocol.TypeSessionStatus, sessionStatus(hostUser, localUser))
	snap := recv[SnapshotChanged](t, h.o.Updates())
	require.True(t, snap.Snapshot.IsActive)
	return c
}

func TestRun_StatusPublishesSnapshot(t *testing.T) {
	h := start(t, Config{}, Deps{})
	c := synced(t, h)

	c.push(t, protocol.TypeUserJoined, protocol.MemberPayload{UserID: 7, Username: str("late"), Role: role(domain.RoleViewer)})
	snap := recv[SnapshotChanged](t, h.o.Updates())
	_, ok := snap.Snapshot.Member(7)
	assert.True(t, ok)

	v := view(t, h.o)
	assert.Equal(t, "synchronized", v.Phase)
	assert.Equal(t, "open", v.Connection)
	assert.Len(t, v.Snapshot.Members, 3)
}

func TestRun_DiscardsDeltasBeforeResync(t *testing.T) {
	h := start(t, Config{}, Deps{})
	c := h.conn(t)

	c.push(t, protocol.TypeSeatUpdate, protocol.SeatUpdate{SeatID: "1-1", UserID: 9})
	c.push(t, protocol.TypeUserJoined, protocol.MemberPayload{UserID: 9})

	v := view(t, h.o)
	assert.Empty(t, v.Seats)
	assert.Empty(t, v.Snapshot.Members)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.InboundDiscarded.WithLabelValues(metrics.ReasonBeforeResync)))

	c.push(t, protocol.TypeSessionStatus, sessionStatus(hostUser))
	c.push(t, protocol.TypeSeatUpdate, protocol.SeatUpdate{SeatID: "1-1", UserID: 9})
	seats := recv[SeatsChanged](t, h.o.Updates())
	assert.Equal(t, map[domain.UserID]domain.SeatID{9: "1-1"}, seats.Seats)
}

func TestRun_SessionEndedIgnoresSeatAndPlayback(t *testing.T) {
	h := start(t, Config{}, Deps{})
	c := synced(t, h)

	c.push(t, protocol.TypeSessionEnded, protocol.SessionEnded{Reason: "host ended"})
	term := recv[Terminated](t, h.o.Updates())
	assert.Equal(t, "host ended", term.Reason)

	c.push(t, protocol.TypeSeatUpdate, protocol.SeatUpdate{SeatID: "2-2", UserID: localUser})
	c.push(t, protocol.TypePlaybackControl, protocol.PlaybackControl{
		MediaRef: "m", Command: domain.ActionPlay, SeekTime: 10, Timestamp: time.Now().UnixMilli(), UserID: hostUser,
	})

	v := view(t, h.o)
	assert.Equal(t, "ended", v.Phase)
	assert.False(t, v.Snapshot.IsActive)
	assert.Empty(t, v.Seats)
	assert.False(t, v.Playback.Known)
}

func TestRun_SessionEndedSuppressesReconnect(t *testing.T) {
	var mu sync.Mutex
	scheduled := 0
	sched := func(time.Duration, func()) func() {
		mu.Lock()
		scheduled++
		mu.Unlock()
		return func() {}
	}
	h := start(t, Config{}, Deps{Scheduler: sched})
	c := synced(t, h)

	c.push(t, protocol.TypeSessionEnded, protocol.SessionEnded{Reason: "host ended"})
	recv[Terminated](t, h.o.Updates())

	c.closeWith(core.CloseAbnormal)
	v := view(t, h.o)
	assert.Equal(t, "ended", v.Phase)
	assert.Equal(t, "closed", v.Connection)

	mu.Lock()
	assert.Zero(t, scheduled)
	mu.Unlock()
	assert.Zero(t, testutil.ToFloat64(h.metrics.ReconnectAttempts))
	assert.ErrorIs(t, h.o.SendChat(context.Background(), "still there?"), link.ErrSessionTerminated)

	select {
	case <-h.dialer.conns:
		t.Fatal("redialed an ended session")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRun_NewStatusAfterEndedResumesLink(t *testing.T) {
	h := start(t, Config{}, Deps{})
	c := synced(t, h)

	c.push(t, protocol.TypeSessionEnded, protocol.SessionEnded{})
	recv[Terminated](t, h.o.Updates())
	assert.ErrorIs(t, h.o.SendChat(context.Background(), "hello?"), link.ErrSessionTerminated)

	c.push(t, protocol.TypeSessionStatus, sessionStatus(hostUser, localUser))
	v := view(t, h.o)
	assert.Equal(t, "synchronized", v.Phase)

	require.NoError(t, h.o.SendChat(context.Background(), "round two"))
	assert.Equal(t, protocol.TypeChatMessage, recvSent(t, c).Type)
}

func TestRequestSeat_RejectedAfterSessionEnded(t *testing.T) {
	h := start(t, Config{}, Deps{})
	c := synced(t, h)

	c.push(t, protocol.TypeSessionEnded, protocol.SessionEnded{Reason: "host ended"})
	recv[Terminated](t, h.o.Updates())

	assert.ErrorIs(t, h.o.RequestSeat(context.Background(), "2-3"), ErrNotSynchronized)
	v := view(t, h.o)
	assert.Equal(t, "ended", v.Phase)
	assert.Empty(t, v.Seats)
	assert.Equal(t, seating.ScopeNone, v.Route.Scope)
}

func TestRun_PlaybackCompensatesLatency(t *testing.T) {
	now := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	h := start(t, Config{}, Deps{Clock: func() time.Time { return now }})
	c := synced(t, h)

	c.push(t, protocol.TypePlaybackControl, protocol.PlaybackControl{
		MediaRef:  "movie",
		Command:   domain.ActionPlay,
		SeekTime:  100,
		Timestamp: now.Add(-2 * time.Second).UnixMilli(),
		UserID:    hostUser,
	})
	pb := recv[PlaybackChanged](t, h.o.Updates())
	assert.InDelta(t, 102.0, pb.SeekSeconds, 0.001)
	assert.True(t, pb.Playing)
}

func TestSendChat_ReachesTransport(t *testing.T) {
	h := start(t, Config{Username: "eve"}, Deps{})
	c := h.conn(t)

	require.NoError(t, h.o.SendChat(context.Background(), "  hi all "))
	m := recvSent(t, c)
	require.Equal(t, protocol.TypeChatMessage, m.Type)
	var p protocol.ChatMessage
	require.NoError(t, m.Decode(&p))
	assert.Equal(t, "hi all", p.Text)
	assert.Equal(t, localUser, p.UserID)
	assert.NotEmpty(t, p.ClientID)

	assert.ErrorIs(t, h.o.SendChat(context.Background(), "   "), ErrEmptyChat)
}

func TestSendChat_QueueFullWhileDisconnected(t *testing.T) {
	d := newFakeDialer()
	d.fail = true
	opts := outbound.DefaultOptions()
	opts.Capacity = 2
	h := start(t, Config{Outbound: opts}, Deps{Dialer: d})
	ctx := context.Background()

	require.NoError(t, h.o.SendChat(ctx, "one"))
	require.NoError(t, h.o.SendChat(ctx, "two"))
	assert.ErrorIs(t, h.o.SendChat(ctx, "three"), outbound.ErrQueueFull)

	v := view(t, h.o)
	assert.Equal(t, 2, v.QueueDepth)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OutboundRejected.WithLabelValues(metrics.ReasonQueueFull)))
}

func TestSendBinary_Oversized(t *testing.T) {
	opts := outbound.DefaultOptions()
	opts.MaxBinaryBytes = 4
	h := start(t, Config{Outbound: opts}, Deps{})
	h.conn(t)

	assert.ErrorIs(t, h.o.SendBinary(context.Background(), []byte("too big")), outbound.ErrOversized)
}

func TestRequestSeat_OptimisticAndRouted(t *testing.T) {
	gate := &fakeGate{}
	h := start(t, Config{}, Deps{Media: gate})
	c := synced(t, h)

	c.push(t, protocol.TypeSeatAssignment, protocol.SeatAssignment{SeatID: "2-1", UserID: 7})
	recv[SeatsChanged](t, h.o.Updates())

	require.NoError(t, h.o.RequestSeat(context.Background(), "2-4"))
	m := recvSent(t, c)
	assert.Equal(t, protocol.TypeSeatUpdate, m.Type)

	route := recv[RouteChanged](t, h.o.Updates())
	assert.Equal(t, seating.AudioRoute{Scope: seating.ScopeRow, Row: 2}, route.Route)
	assert.Equal(t, []domain.UserID{7}, route.Audible)
	assert.Equal(t, []domain.UserID{7}, gate.last())

	assert.ErrorIs(t, h.o.RequestSeat(context.Background(), "nope"), domain.ErrInvalidSeat)
}

func TestAudioState_PartialUpdateKeepsBroadcast(t *testing.T) {
	h := start(t, Config{}, Deps{})
	c := synced(t, h)

	c.push(t, protocol.TypeSeatsAutoAssigned, protocol.SeatsAutoAssigned{Assignments: []protocol.SeatAssignment{
		{SeatID: "1-1", UserID: localUser},
		{SeatID: "3-3", UserID: 7},
	}})
	recv[SeatsChanged](t, h.o.Updates())

	on := true
	c.push(t, protocol.TypeUserAudioState, protocol.UserAudioState{UserID: 7, GlobalBroadcast: &on})
	v := view(t, h.o)
	require.Equal(t, []domain.UserID{7}, v.Audible)

	c.push(t, protocol.TypeUserAudioState, protocol.UserAudioState{UserID: 7, Muted: true})
	v = view(t, h.o)
	assert.Equal(t, []domain.UserID{7}, v.Audible)
}

func TestSwap_MalformedAcceptLeavesSeats(t *testing.T) {
	h := start(t, Config{}, Deps{})
	c := synced(t, h)

	c.push(t, protocol.TypeSeatsAutoAssigned, protocol.SeatsAutoAssigned{Assignments: []protocol.SeatAssignment{
		{SeatID: "1-1", UserID: hostUser},
		{SeatID: "3-3", UserID: localUser},
	}})
	recv[SeatsChanged](t, h.o.Updates())

	requester := hostUser
	c.push(t, protocol.TypeSeatSwapAccepted, protocol.SeatSwap{RequesterID: &requester})

	v := view(t, h.o)
	assert.Equal(t, map[domain.UserID]domain.SeatID{hostUser: "1-1", localUser: "3-3"}, v.Seats)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.InboundDiscarded.WithLabelValues(metrics.ReasonProtocol)))

	target := localUser
	c.push(t, protocol.TypeSeatSwapAccepted, protocol.SeatSwap{RequesterID: &requester, TargetID: &target})
	seats := recv[SeatsChanged](t, h.o.Updates())
	assert.Equal(t, map[domain.UserID]domain.SeatID{hostUser: "3-3", localUser: "1-1"}, seats.Seats)
}

func TestSwap_RequestAndRespond(t *testing.T) {
	h := start(t, Config{}, Deps{})
	c := synced(t, h)

	requester := hostUser
	target := localUser
	c.push(t, protocol.TypeSeatSwapRequest, protocol.SeatSwap{RequestID: "r-1", RequesterID: &requester, TargetID: &target})
	req := recv[SwapRequested](t, h.o.Updates())
	assert.Equal(t, "r-1", req.RequestID)

	require.NoError(t, h.o.RespondSwap(context.Background(), hostUser, false))
	m := recvSent(t, c)
	assert.Equal(t, protocol.TypeSeatSwapDeclined, m.Type)

	assert.ErrorIs(t, h.o.RespondSwap(context.Background(), hostUser, true), ErrNoSwapRequest)
}

func TestSendPlayback_HostOnly(t *testing.T) {
	h := start(t, Config{}, Deps{})
	synced(t, h)
	assert.ErrorIs(t, h.o.SendPlayback(context.Background(), "m", true, 0), ErrNotHost)

	hh := start(t, Config{LocalUser: hostUser}, Deps{})
	c := synced(t, hh)
	require.NoError(t, hh.o.SendPlayback(context.Background(), "m", true, 12.5))
	m := recvSent(t, c)
	var p protocol.PlaybackControl
	require.NoError(t, m.Decode(&p))
	assert.Equal(t, domain.ActionPlay, p.Command)
	assert.Equal(t, 12.5, p.SeekTime)
}

func TestRun_BinaryWithoutConsumerIsDropped(t *testing.T) {
	h := start(t, Config{}, Deps{})
	c := h.conn(t)

	c.pushRaw(core.Binary([]byte{1, 2, 3}))
	view(t, h.o)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.InboundDiscarded.WithLabelValues(metrics.ReasonNoConsumer)))

	got := make(chan []byte, 1)
	require.NoError(t, h.o.SetBinaryConsumer(context.Background(), mux.BinaryConsumerFunc(func(b []byte) { got <- b })))
	c.pushRaw(core.Binary([]byte{4}))
	select {
	case b := <-got:
		assert.Equal(t, []byte{4}, b)
	case <-time.After(within):
		t.Fatal("chunk not delivered")
	}
}

func TestRun_TerminalCloseSurfacesOnce(t *testing.T) {
	h := start(t, Config{}, Deps{})
	c := synced(t, h)

	c.closeWith(core.CloseSessionEnded)
	term := recv[Terminated](t, h.o.Updates())
	assert.True(t, errors.Is(term.Err, link.ErrSessionTerminated))

	v := view(t, h.o)
	assert.Equal(t, "closed", v.Connection)
	assert.Contains(t, v.Snapshot.LastError, "4010")

	assert.ErrorIs(t, h.o.SendChat(context.Background(), "anyone?"), link.ErrSessionTerminated)
}

func TestRun_ReconnectRequiresFreshResync(t *testing.T) {
	var mu sync.Mutex
	var fires []func()
	sched := func(_ time.Duration, fire func()) func() {
		mu.Lock()
		fires = append(fires, fire)
		mu.Unlock()
		return func() {}
	}
	h := start(t, Config{}, Deps{Scheduler: sched})
	c := synced(t, h)

	c.closeWith(core.CloseAbnormal)
	cc := recv[ConnectionChanged](t, h.o.Updates())
	assert.Equal(t, domain.ConnConnecting, cc.State)
	assert.Equal(t, time.Second, cc.Delay)

	mu.Lock()
	require.Len(t, fires, 1)
	fire := fires[0]
	mu.Unlock()
	fire()

	c2 := h.conn(t)
	c2.push(t, protocol.TypeUserJoined, protocol.MemberPayload{UserID: 8})
	v := view(t, h.o)
	assert.Equal(t, "connecting", v.Phase)
	_, ok := v.Snapshot.Member(8)
	assert.False(t, ok)
}

func TestRun_ChatHistoryAfterFirstStatus(t *testing.T) {
	api := &fakeAPI{history: []domain.ChatMessage{
		{ID: "a", UserID: hostUser, Text: "welcome"},
		{ID: "b", UserID: 7, Text: "hey"},
	}}
	h := start(t, Config{}, Deps{API: api})
	synced(t, h)

	first := recv[ChatReceived](t, h.o.Updates())
	second := recv[ChatReceived](t, h.o.Updates())
	assert.Equal(t, "a", first.Message.ID)
	assert.Equal(t, "b", second.Message.ID)
	assert.True(t, first.History)
}

func TestClose_StopsLoop(t *testing.T) {
	h := start(t, Config{}, Deps{})
	h.conn(t)
	h.o.Close()

	select {
	case <-h.o.Done():
	case <-time.After(within):
		t.Fatal("loop did not stop")
	}
	_, err := h.o.View(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEndSession_HostOnly(t *testing.T) {
	api := &fakeAPI{}
	h := start(t, Config{}, Deps{API: api})
	synced(t, h)
	assert.ErrorIs(t, h.o.EndSession(context.Background()), ErrNotHost)

	hh := start(t, Config{LocalUser: hostUser}, Deps{API: api})
	synced(t, hh)
	require.NoError(t, hh.o.EndSession(context.Background()))

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []domain.SessionID{"s-1"}, api.ended)
}

func TestEndSession_RequiresAPI(t *testing.T) {
	h := start(t, Config{LocalUser: hostUser}, Deps{})
	synced(t, h)
	assert.ErrorIs(t, h.o.EndSession(context.Background()), ErrNoSessionAPI)
}

func TestResolveSession(t *testing.T) {
	ctx := context.Background()

	active := &fakeAPI{active: &core.SessionInfo{SessionID: "s-live", RoomID: "lounge"}}
	info, err := ResolveSession(ctx, active, "lounge", true)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s-live"), info.SessionID)
	assert.Empty(t, active.created)

	idle := &fakeAPI{}
	_, err = ResolveSession(ctx, idle, "lounge", false)
	assert.ErrorIs(t, err, core.ErrNoActiveSession)

	info, err = ResolveSession(ctx, idle, "lounge", true)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("s-new"), info.SessionID)
	assert.Equal(t, []string{"lounge"}, idle.created)

	_, err = ResolveSession(ctx, nil, "lounge", true)
	assert.ErrorIs(t, err, ErrNoSessionAPI)
}
