package orch

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/watchsync/internal/app/seating"
	"github.com/dkeye/watchsync/internal/app/session"
	"github.com/dkeye/watchsync/internal/core"
	"github.com/dkeye/watchsync/internal/domain"
	"github.com/dkeye/watchsync/internal/metrics"
	"github.com/dkeye/watchsync/internal/protocol"
)

func (o *Orchestrator) inbound(u core.Unit) {
	kind := metrics.KindText
	if u.Kind == core.UnitBinary {
		kind = metrics.KindBinary
	}
	o.m.Inbound.WithLabelValues(kind).Inc()

	before := o.mux.Stats()
	msg, ok := o.mux.Route(u)
	if !ok {
		after := o.mux.Stats()
		switch {
		case after.Malformed > before.Malformed:
			o.m.InboundDiscarded.WithLabelValues(metrics.ReasonMalformed).Inc()
		case after.DroppedBinary > before.DroppedBinary:
			o.m.InboundDiscarded.WithLabelValues(metrics.ReasonNoConsumer).Inc()
		}
		return
	}

	if msg.Type.IsSession() {
		o.onSession(msg)
		return
	}
	if !o.reducer.Trusted() {
		o.discard(msg, metrics.ReasonBeforeResync, session.ErrBeforeResync)
		return
	}
	if err := o.dispatch(msg); err != nil {
		o.discard(msg, metrics.ReasonProtocol, err)
	}
}

func (o *Orchestrator) discard(msg protocol.Message, reason string, err error) {
	o.m.InboundDiscarded.WithLabelValues(reason).Inc()
	log.Debug().Str("module", "app.orch").Str("type", string(msg.Type)).Str("reason", reason).Err(err).Msg("message discarded")
}

func (o *Orchestrator) onSession(msg protocol.Message) {
	wasEnded := o.reducer.Phase() == session.Ended
	changed, err := o.reducer.Apply(msg)
	if errors.Is(err, session.ErrBeforeResync) {
		o.discard(msg, metrics.ReasonBeforeResync, err)
		return
	}
	if err != nil {
		o.discard(msg, metrics.ReasonMalformed, err)
		return
	}
	if !changed {
		return
	}

	snap := o.reducer.Snapshot()
	o.emit(SnapshotChanged{Snapshot: snap})

	switch msg.Type {
	case protocol.TypeSessionStatus:
		o.terminated = false
		if wasEnded {
			o.link.Resume()
			o.playback.Reset()
			o.board.Reset()
			o.seatsChanged()
		}
		if o.board.SetHost(snap.HostID) {
			o.refreshRoute()
		}
		o.loadHistory(snap.SessionID)
	case protocol.TypeSessionMemberUpdate, protocol.TypeUserJoined, protocol.TypeUserLeft:
		if o.board.SetHost(snap.HostID) {
			o.refreshRoute()
		}
		if msg.Type == protocol.TypeUserLeft {
			var p protocol.UserLeft
			if msg.Decode(&p) == nil && o.board.Vacate(p.UserID) {
				o.seatsChanged()
			}
		}
	case protocol.TypeSessionEnded:
		var p protocol.SessionEnded
		_ = msg.Decode(&p)
		cause := session.ErrEnded
		if p.Reason != "" {
			cause = fmt.Errorf("%w: %s", session.ErrEnded, p.Reason)
		}
		// no redial for an ended session, whatever close code follows
		o.link.Terminate(cause)
		o.playback.Reset()
		o.board.Reset()
		clear(o.swaps)
		o.seatsChanged()
		o.emit(PlaybackChanged{})
		o.terminate(p.Reason, nil)
	}
}

// dispatch applies a non-session message to a synchronized session.
func (o *Orchestrator) dispatch(msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeChatMessage:
		var p protocol.ChatMessage
		if err := msg.Decode(&p); err != nil {
			return err
		}
		o.emit(ChatReceived{Message: p.Domain()})

	case protocol.TypePlaybackControl:
		var p protocol.PlaybackControl
		if err := msg.Decode(&p); err != nil {
			return err
		}
		res, ok := o.playback.ApplyCommand(p.PlaybackCommand(), o.now())
		switch {
		case !ok:
			o.m.PlaybackApplied.WithLabelValues(metrics.ResultIgnored).Inc()
			return nil
		case res.Clamped:
			o.m.PlaybackApplied.WithLabelValues(metrics.ResultClamped).Inc()
		default:
			o.m.PlaybackApplied.WithLabelValues(metrics.ResultApplied).Inc()
		}
		o.emit(PlaybackChanged{MediaRef: res.MediaRef, SeekSeconds: res.SeekSeconds, Playing: res.Playing})

	case protocol.TypeSeatUpdate:
		var p protocol.SeatUpdate
		if err := msg.Decode(&p); err != nil {
			return err
		}
		var changed bool
		if p.Vacated || p.SeatID == "" {
			changed = o.board.Vacate(p.UserID)
		} else {
			var err error
			if changed, err = o.board.Assign(p.SeatID, p.UserID); err != nil {
				return err
			}
		}
		if changed {
			o.seatsChanged()
		}

	case protocol.TypeSeatAssignment:
		var p protocol.SeatAssignment
		if err := msg.Decode(&p); err != nil {
			return err
		}
		changed, err := o.board.Assign(p.SeatID, p.UserID)
		if err != nil {
			return err
		}
		if changed {
			o.seatsChanged()
		}

	case protocol.TypeSeatsAutoAssigned:
		var p protocol.SeatsAutoAssigned
		if err := msg.Decode(&p); err != nil {
			return err
		}
		err := o.board.ReplaceAll(p.Assignments)
		o.seatsChanged()
		return err

	case protocol.TypeSeatsCleared:
		o.board.Clear()
		o.seatsChanged()

	case protocol.TypeSeatSwapRequest:
		var p protocol.SeatSwap
		if err := msg.Decode(&p); err != nil {
			return err
		}
		requester, target, ok := p.Parties()
		if !ok {
			return seating.ErrMalformedSwap
		}
		if target == o.cfg.LocalUser {
			o.swaps[requester] = p.RequestID
			o.emit(SwapRequested{RequestID: p.RequestID, RequesterID: requester})
		}

	case protocol.TypeSeatSwapAccepted:
		var p protocol.SeatSwap
		if err := msg.Decode(&p); err != nil {
			return err
		}
		if err := o.board.Swap(p); err != nil {
			return err
		}
		o.seatsChanged()

	case protocol.TypeSeatSwapDeclined:
		var p protocol.SeatSwap
		if err := msg.Decode(&p); err != nil {
			return err
		}
		requester, target, ok := p.Parties()
		if !ok {
			return seating.ErrMalformedSwap
		}
		if requester == o.cfg.LocalUser {
			o.emit(SwapDeclined{RequestID: p.RequestID, TargetID: target})
		}

	case protocol.TypeUserAudioState:
		var p protocol.UserAudioState
		if err := msg.Decode(&p); err != nil {
			return err
		}
		var changed bool
		if p.GlobalBroadcast != nil && o.board.SetGlobalBroadcast(p.UserID, *p.GlobalBroadcast) {
			changed = true
		}
		if p.HostBroadcast != nil && o.board.SetHostBroadcast(*p.HostBroadcast) {
			changed = true
		}
		if changed {
			o.refreshRoute()
		}
		o.emit(PeerEvent{Type: msg.Type, UserID: p.UserID, Data: []byte(msg.Data)})

	case protocol.TypeCameraStarted, protocol.TypeCameraStopped, protocol.TypeReaction, protocol.TypePlatformSelected:
		var p struct {
			UserID domain.UserID `json:"user_id"`
		}
		if err := msg.Decode(&p); err != nil {
			return err
		}
		o.emit(PeerEvent{Type: msg.Type, UserID: p.UserID, Data: []byte(msg.Data)})
	}
	return nil
}
