package orch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/watchsync/internal/app/mux"
	"github.com/dkeye/watchsync/internal/app/outbound"
	"github.com/dkeye/watchsync/internal/app/playback"
	"github.com/dkeye/watchsync/internal/app/seating"
	"github.com/dkeye/watchsync/internal/core"
	"github.com/dkeye/watchsync/internal/domain"
	"github.com/dkeye/watchsync/internal/metrics"
	"github.com/dkeye/watchsync/internal/protocol"
)

var (
	ErrEmptyChat       = errors.New("chat text is empty")
	ErrNotHost         = errors.New("local user is not the host")
	ErrNoSwapRequest   = errors.New("no pending swap request from user")
	ErrEmptyReaction   = errors.New("reaction is empty")
	ErrNotSynchronized = errors.New("session not synchronized")
	ErrNoSessionAPI    = errors.New("session api not configured")
)

// msg is the sealed set of inbox messages processed by the loop.
type msg interface{ isOrchMsg() }

type sendChat struct {
	text  string
	reply chan error
}

type requestSeat struct {
	seat  domain.SeatID
	reply chan error
}

type requestSwap struct {
	target domain.UserID
	reply  chan swapReply
}

type swapReply struct {
	requestID string
	err       error
}

type respondSwap struct {
	requester domain.UserID
	accept    bool
	reply     chan error
}

type sendPlayback struct {
	mediaRef string
	play     bool
	seek     float64
	reply    chan error
}

type sendReaction struct {
	emoji string
	reply chan error
}

type sendBinary struct {
	chunk []byte
	reply chan error
}

type setConsumer struct {
	consumer mux.BinaryConsumer
	reply    chan struct{}
}

type getView struct {
	reply chan View
}

type checkEnd struct {
	reply chan endReply
}

type endReply struct {
	session domain.SessionID
	err     error
}

type historyLoaded struct {
	session domain.SessionID
	msgs    []domain.ChatMessage
	err     error
}

func (sendChat) isOrchMsg()      {}
func (requestSeat) isOrchMsg()   {}
func (requestSwap) isOrchMsg()   {}
func (respondSwap) isOrchMsg()   {}
func (sendPlayback) isOrchMsg()  {}
func (sendReaction) isOrchMsg()  {}
func (sendBinary) isOrchMsg()    {}
func (setConsumer) isOrchMsg()   {}
func (getView) isOrchMsg()       {}
func (checkEnd) isOrchMsg()      {}
func (historyLoaded) isOrchMsg() {}

// View is a point-in-time copy of everything the loop owns.
type View struct {
	LocalUser  domain.UserID                   `json:"local_user"`
	Phase      string                          `json:"phase"`
	Connection string                          `json:"connection"`
	Attempt    int                             `json:"attempt"`
	Snapshot   domain.SessionSnapshot          `json:"snapshot"`
	Seats      map[domain.UserID]domain.SeatID `json:"seats"`
	Route      seating.AudioRoute              `json:"route"`
	Audible    []domain.UserID                 `json:"audible"`
	Playback   playback.State                  `json:"playback"`
	QueueDepth int                             `json:"queue_depth"`
	QueueCap   int                             `json:"queue_cap"`
	Mux        mux.Stats                       `json:"mux"`
}

func (o *Orchestrator) submit(ctx context.Context, m msg) error {
	select {
	case o.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrStopped
	}
}

func await[T any](ctx context.Context, o *Orchestrator, ch <-chan T) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-o.done:
		return zero, ErrStopped
	}
}

func (o *Orchestrator) call(ctx context.Context, m msg, reply chan error) error {
	if err := o.submit(ctx, m); err != nil {
		return err
	}
	err, waitErr := await(ctx, o, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// SendChat queues a chat message. It fails fast when the queue is full.
func (o *Orchestrator) SendChat(ctx context.Context, text string) error {
	reply := make(chan error, 1)
	return o.call(ctx, sendChat{text: text, reply: reply}, reply)
}

// RequestSeat seats the local user optimistically and asks the server to confirm.
func (o *Orchestrator) RequestSeat(ctx context.Context, seat domain.SeatID) error {
	reply := make(chan error, 1)
	return o.call(ctx, requestSeat{seat: seat, reply: reply}, reply)
}

// RequestSwap asks target to trade seats and returns the request id.
func (o *Orchestrator) RequestSwap(ctx context.Context, target domain.UserID) (string, error) {
	reply := make(chan swapReply, 1)
	if err := o.submit(ctx, requestSwap{target: target, reply: reply}); err != nil {
		return "", err
	}
	r, err := await(ctx, o, reply)
	if err != nil {
		return "", err
	}
	return r.requestID, r.err
}

func (o *Orchestrator) RespondSwap(ctx context.Context, requester domain.UserID, accept bool) error {
	reply := make(chan error, 1)
	return o.call(ctx, respondSwap{requester: requester, accept: accept, reply: reply}, reply)
}

// SendPlayback broadcasts a host playback command.
func (o *Orchestrator) SendPlayback(ctx context.Context, mediaRef string, play bool, seekSeconds float64) error {
	reply := make(chan error, 1)
	return o.call(ctx, sendPlayback{mediaRef: mediaRef, play: play, seek: seekSeconds, reply: reply}, reply)
}

func (o *Orchestrator) SendReaction(ctx context.Context, emoji string) error {
	reply := make(chan error, 1)
	return o.call(ctx, sendReaction{emoji: emoji, reply: reply}, reply)
}

// SendBinary queues an opaque media chunk.
func (o *Orchestrator) SendBinary(ctx context.Context, chunk []byte) error {
	reply := make(chan error, 1)
	return o.call(ctx, sendBinary{chunk: chunk, reply: reply}, reply)
}

// SetBinaryConsumer registers the media chunk consumer; nil unregisters it.
func (o *Orchestrator) SetBinaryConsumer(ctx context.Context, c mux.BinaryConsumer) error {
	reply := make(chan struct{}, 1)
	if err := o.submit(ctx, setConsumer{consumer: c, reply: reply}); err != nil {
		return err
	}
	_, err := await(ctx, o, reply)
	return err
}

// EndSession asks the session store to end the current session. Only the
// host may; the server then broadcasts session_ended.
func (o *Orchestrator) EndSession(ctx context.Context) error {
	if o.deps.API == nil {
		return ErrNoSessionAPI
	}
	reply := make(chan endReply, 1)
	if err := o.submit(ctx, checkEnd{reply: reply}); err != nil {
		return err
	}
	r, err := await(ctx, o, reply)
	if err != nil {
		return err
	}
	if r.err != nil {
		return r.err
	}
	return o.deps.API.EndSession(ctx, r.session)
}

func (o *Orchestrator) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := o.submit(ctx, getView{reply: reply}); err != nil {
		return View{}, err
	}
	return await(ctx, o, reply)
}

func (o *Orchestrator) handle(m msg) {
	switch m := m.(type) {
	case sendChat:
		m.reply <- o.doSendChat(m.text)
	case requestSeat:
		m.reply <- o.doRequestSeat(m.seat)
	case requestSwap:
		id, err := o.doRequestSwap(m.target)
		m.reply <- swapReply{requestID: id, err: err}
	case respondSwap:
		m.reply <- o.doRespondSwap(m.requester, m.accept)
	case sendPlayback:
		m.reply <- o.doSendPlayback(m.mediaRef, m.play, m.seek)
	case sendReaction:
		m.reply <- o.doSendReaction(m.emoji)
	case sendBinary:
		m.reply <- o.enqueue(core.Binary(m.chunk))
	case setConsumer:
		if m.consumer == nil {
			o.mux.ClearBinaryConsumer()
		} else {
			o.mux.SetBinaryConsumer(m.consumer)
		}
		m.reply <- struct{}{}
	case getView:
		m.reply <- o.view()
	case checkEnd:
		m.reply <- o.doCheckEnd()
	case historyLoaded:
		o.onHistory(m)
	}
}

func (o *Orchestrator) view() View {
	return View{
		LocalUser:  o.cfg.LocalUser,
		Phase:      o.reducer.Phase().String(),
		Connection: o.link.State().String(),
		Attempt:    o.link.Attempt(),
		Snapshot:   o.reducer.Snapshot(),
		Seats:      o.board.View(),
		Route:      o.board.ResolveAudioRoute(o.cfg.LocalUser),
		Audible:    o.board.Audible(o.cfg.LocalUser),
		Playback:   o.playback.State(),
		QueueDepth: o.queue.Len(),
		QueueCap:   o.queue.Cap(),
		Mux:        o.mux.Stats(),
	}
}

// enqueue admits u to the outbound queue and drains right away when open.
func (o *Orchestrator) enqueue(u core.Unit) error {
	if err := o.link.Err(); err != nil {
		o.m.OutboundRejected.WithLabelValues(metrics.ReasonNotConnected).Inc()
		return err
	}
	if err := o.queue.Enqueue(u, o.now()); err != nil {
		reason := metrics.ReasonQueueFull
		if errors.Is(err, outbound.ErrOversized) {
			reason = metrics.ReasonOversized
		}
		o.m.OutboundRejected.WithLabelValues(reason).Inc()
		log.Warn().Str("module", "app.orch").Err(err).Int("queued", o.queue.Len()).Msg("outbound rejected")
		return err
	}
	o.drain()
	return nil
}

func (o *Orchestrator) send(t protocol.Type, payload any) error {
	m, err := protocol.New(t, payload)
	if err != nil {
		return err
	}
	u, err := mux.Encode(m)
	if err != nil {
		return err
	}
	return o.enqueue(u)
}

func (o *Orchestrator) doSendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyChat
	}
	return o.send(protocol.TypeChatMessage, protocol.ChatMessage{
		ClientID: uuid.NewString(),
		UserID:   o.cfg.LocalUser,
		Username: o.cfg.Username,
		Text:     text,
		SentAt:   o.now().UnixMilli(),
	})
}

func (o *Orchestrator) doRequestSeat(seat domain.SeatID) error {
	if !o.reducer.Trusted() {
		return ErrNotSynchronized
	}
	if _, _, err := seat.Parse(); err != nil {
		return err
	}
	if err := o.send(protocol.TypeSeatUpdate, protocol.SeatUpdate{SeatID: seat, UserID: o.cfg.LocalUser}); err != nil {
		return err
	}
	if changed, _ := o.board.Assign(seat, o.cfg.LocalUser); changed {
		o.seatsChanged()
	}
	return nil
}

func (o *Orchestrator) doRequestSwap(target domain.UserID) (string, error) {
	if !o.reducer.Trusted() {
		return "", ErrNotSynchronized
	}
	if _, ok := o.board.SeatOf(o.cfg.LocalUser); !ok {
		return "", fmt.Errorf("%w: requester %s", seating.ErrUnseated, o.cfg.LocalUser)
	}
	seat, ok := o.board.SeatOf(target)
	if !ok {
		return "", fmt.Errorf("%w: target %s", seating.ErrUnseated, target)
	}
	requester := o.cfg.LocalUser
	id := uuid.NewString()
	err := o.send(protocol.TypeSeatSwapRequest, protocol.SeatSwap{
		RequestID:   id,
		RequesterID: &requester,
		TargetID:    &target,
		SeatID:      seat,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (o *Orchestrator) doRespondSwap(requester domain.UserID, accept bool) error {
	id, ok := o.swaps[requester]
	if !ok {
		return fmt.Errorf("%w %s", ErrNoSwapRequest, requester)
	}
	t := protocol.TypeSeatSwapDeclined
	if accept {
		t = protocol.TypeSeatSwapAccepted
	}
	target := o.cfg.LocalUser
	// seats move only when the server broadcasts the accepted swap
	if err := o.send(t, protocol.SeatSwap{RequestID: id, RequesterID: &requester, TargetID: &target}); err != nil {
		return err
	}
	delete(o.swaps, requester)
	return nil
}

func (o *Orchestrator) doSendPlayback(mediaRef string, play bool, seek float64) error {
	if !o.reducer.Trusted() {
		return ErrNotSynchronized
	}
	if o.reducer.Snapshot().HostID != o.cfg.LocalUser {
		return ErrNotHost
	}
	action := domain.ActionPause
	if play {
		action = domain.ActionPlay
	}
	return o.send(protocol.TypePlaybackControl, protocol.PlaybackControl{
		MediaRef:  mediaRef,
		Command:   action,
		SeekTime:  seek,
		Timestamp: o.now().UnixMilli(),
		UserID:    o.cfg.LocalUser,
	})
}

func (o *Orchestrator) doCheckEnd() endReply {
	if !o.reducer.Trusted() {
		return endReply{err: ErrNotSynchronized}
	}
	snap := o.reducer.Snapshot()
	if snap.HostID != o.cfg.LocalUser {
		return endReply{err: ErrNotHost}
	}
	return endReply{session: snap.SessionID}
}

func (o *Orchestrator) doSendReaction(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return ErrEmptyReaction
	}
	return o.send(protocol.TypeReaction, protocol.Reaction{UserID: o.cfg.LocalUser, Emoji: emoji})
}

// loadHistory fetches the chat store once per session, off the loop.
func (o *Orchestrator) loadHistory(id domain.SessionID) {
	if o.deps.API == nil || id == "" || o.history[id] {
		return
	}
	o.history[id] = true
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		msgs, err := o.deps.API.ChatHistory(ctx, id)
		_ = o.submit(context.Background(), historyLoaded{session: id, msgs: msgs, err: err})
	}()
}

func (o *Orchestrator) onHistory(h historyLoaded) {
	if h.err != nil {
		log.Warn().Str("module", "app.orch").Str("session_id", string(h.session)).Err(h.err).Msg("chat history unavailable")
		return
	}
	if o.reducer.Snapshot().SessionID != h.session {
		return
	}
	for _, c := range h.msgs {
		o.emit(ChatReceived{Message: c, History: true})
	}
}
