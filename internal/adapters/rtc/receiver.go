// Package rtc receives peers' voice tracks over WebRTC and forwards only
// the ones the local audio route makes audible.
package rtc

import (
	"context"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/watchsync/internal/domain"
)

// PacketSink is where audible RTP ends up, e.g. a decoder or a mixer.
type PacketSink interface {
	WriteRTP(from domain.UserID, pkt *rtp.Packet) error
}

type PacketSinkFunc func(domain.UserID, *rtp.Packet) error

func (f PacketSinkFunc) WriteRTP(from domain.UserID, pkt *rtp.Packet) error { return f(from, pkt) }

func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Receiver answers the media server's offer and gates remote audio tracks.
type Receiver struct {
	pc    *webrtc.PeerConnection
	gates *Gates
	sink  PacketSink

	mu     sync.Mutex
	onICE  func(webrtc.ICECandidateInit)
	cancel context.CancelFunc
}

func NewReceiver(cfg webrtc.Configuration, sink PacketSink) (*Receiver, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Receiver{pc: pc, gates: NewGates(), sink: sink}, nil
}

// SetAudible implements core.MediaGate.
func (r *Receiver) SetAudible(peers []domain.UserID) {
	r.gates.SetAudible(peers)
	log.Debug().Str("module", "adapters.rtc").Int("audible", len(peers)).Msg("audio gates updated")
}

func (r *Receiver) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "adapters.rtc").Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	r.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		r.mu.Lock()
		fn := r.onICE
		r.mu.Unlock()
		if cand != nil && fn != nil {
			fn(cand.ToJSON())
		}
	})

	r.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger := log.With().
			Str("module", "adapters.rtc").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Logger()
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			logger.Debug().Msg("ignoring non-audio track")
			return
		}
		user, ok := ParseStreamID(track.StreamID())
		if !ok {
			logger.Warn().Msg("track without user stream id")
			return
		}
		gate := r.gates.Attach(user)
		logger.Info().Str("user_id", user.String()).Msg("remote audio track")
		go r.forward(ctx, user, gate, track, &logger)
	})
	return nil
}

// forward reads RTP from track and hands it to the sink while the gate is open.
func (r *Receiver) forward(ctx context.Context, user domain.UserID, gate *Gate, track *webrtc.TrackRemote, logger *zerolog.Logger) {
	defer r.gates.Detach(user, gate)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("track ended")
			return
		}
		switch gate.State() {
		case GateClosed:
			return
		case GateMuted:
		case GateOpen:
			if r.sink == nil {
				continue
			}
			if err := r.sink.WriteRTP(user, pkt); err != nil {
				logger.Error().Err(err).Msg("sink write failed, stopping track")
				return
			}
		}
	}
}

func (r *Receiver) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := r.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := r.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(r.pc)
	if err := r.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return r.pc.LocalDescription(), nil
}

func (r *Receiver) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return r.pc.AddICECandidate(ci)
}

func (r *Receiver) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onICE = fn
}

func (r *Receiver) Close() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	r.gates.CloseAll()
	if err := r.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "adapters.rtc").Msg("close error")
		return
	}
	log.Info().Str("module", "adapters.rtc").Msg("closed")
}
