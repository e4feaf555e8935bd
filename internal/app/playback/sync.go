// Package playback turns host playback commands into a local seek target.
package playback

import (
	"math"
	"time"

	"github.com/dkeye/watchsync/internal/domain"
)

const (
	DefaultMaxClockSkew = 5 * time.Second
	DefaultMaxLatency   = time.Minute
)

type Options struct {
	// MaxClockSkew bounds how far in the future a command timestamp may lie
	// before it is treated as invalid.
	MaxClockSkew time.Duration
	// MaxLatency bounds how old a play command may be. Older or missing
	// timestamps clamp the position instead of compensating.
	MaxLatency time.Duration
}

// State is what the local player was last told to do.
type State struct {
	MediaRef    string
	Playing     bool
	SeekSeconds float64
	Known       bool
}

type Result struct {
	MediaRef    string
	SeekSeconds float64
	Playing     bool
	// Clamped is set when the computed position was invalid and replaced by 0.
	Clamped bool
}

type Sync struct {
	local domain.UserID
	opts  Options
	state State
}

func New(local domain.UserID, opts Options) *Sync {
	if opts.MaxClockSkew <= 0 {
		opts.MaxClockSkew = DefaultMaxClockSkew
	}
	if opts.MaxLatency <= 0 {
		opts.MaxLatency = DefaultMaxLatency
	}
	return &Sync{local: local, opts: opts}
}

func (s *Sync) State() State { return s.state }

// Reset forgets the local player state, e.g. when the session ends.
func (s *Sync) Reset() { s.state = State{} }

// ApplyCommand returns the position the local player should seek to.
// It reports false for our own echoes and for commands that would not
// change the media or the play/pause state.
func (s *Sync) ApplyCommand(cmd domain.PlaybackCommand, now time.Time) (Result, bool) {
	if cmd.IssuerID == s.local {
		return Result{}, false
	}
	if s.state.Known && s.state.MediaRef == cmd.MediaRef && s.state.Playing == cmd.Playing() {
		return Result{}, false
	}

	seek, clamped := s.localSeek(cmd, now)
	s.state = State{
		MediaRef:    cmd.MediaRef,
		Playing:     cmd.Playing(),
		SeekSeconds: seek,
		Known:       true,
	}
	return Result{
		MediaRef:    cmd.MediaRef,
		SeekSeconds: seek,
		Playing:     cmd.Playing(),
		Clamped:     clamped,
	}, true
}

func (s *Sync) localSeek(cmd domain.PlaybackCommand, now time.Time) (float64, bool) {
	seek := cmd.SeekTimeSeconds
	if cmd.Playing() {
		if cmd.IssuedAtEpochMs <= 0 {
			return 0, true
		}
		issued := time.UnixMilli(cmd.IssuedAtEpochMs)
		if issued.Sub(now) > s.opts.MaxClockSkew || now.Sub(issued) > s.opts.MaxLatency {
			return 0, true
		}
		seek += float64(now.UnixMilli()-cmd.IssuedAtEpochMs) / 1000
	}
	if math.IsNaN(seek) || math.IsInf(seek, 0) || seek < 0 {
		return 0, true
	}
	return seek, false
}
