package protocol

import (
	"time"

	"github.com/dkeye/watchsync/internal/domain"
)

// MemberPayload is a member as sent on the wire. Nil fields in a delta
// leave the stored value unchanged.
type MemberPayload struct {
	UserID   domain.UserID `json:"user_id"`
	Username *string       `json:"username,omitempty"`
	Role     *domain.Role  `json:"role,omitempty"`
}

type SessionStatus struct {
	SessionID domain.SessionID `json:"session_id"`
	IsActive  bool             `json:"is_active"`
	HostID    domain.UserID    `json:"host_id"`
	Members   []MemberPayload  `json:"members"`
	StartedAt int64            `json:"started_at"`
}

func (s SessionStatus) StartedTime() time.Time {
	if s.StartedAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.StartedAt).UTC()
}

type SessionMemberUpdate struct {
	Members []MemberPayload `json:"members"`
	Removed []domain.UserID `json:"removed,omitempty"`
}

type UserLeft struct {
	UserID domain.UserID `json:"user_id"`
}

type SessionError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type SessionEnded struct {
	Reason string `json:"reason,omitempty"`
}

type ChatMessage struct {
	ID       string        `json:"id,omitempty"`
	ClientID string        `json:"client_id,omitempty"`
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username,omitempty"`
	Text     string        `json:"text"`
	SentAt   int64         `json:"sent_at,omitempty"`
}

func (c ChatMessage) Domain() domain.ChatMessage {
	out := domain.ChatMessage{
		ID:       c.ID,
		UserID:   c.UserID,
		Username: c.Username,
		Text:     c.Text,
	}
	if out.ID == "" {
		out.ID = c.ClientID
	}
	if c.SentAt != 0 {
		out.SentAt = time.UnixMilli(c.SentAt).UTC()
	}
	return out
}

type PlaybackControl struct {
	MediaRef  string                `json:"media_id"`
	Command   domain.PlaybackAction `json:"command"`
	SeekTime  float64               `json:"seek_time"`
	Timestamp int64                 `json:"timestamp"`
	UserID    domain.UserID         `json:"user_id"`
}

func (p PlaybackControl) PlaybackCommand() domain.PlaybackCommand {
	return domain.PlaybackCommand{
		MediaRef:        p.MediaRef,
		Action:          p.Command,
		SeekTimeSeconds: p.SeekTime,
		IssuedAtEpochMs: p.Timestamp,
		IssuerID:        p.UserID,
	}
}

// SeatUpdate is a single seat change; Vacated frees the user's seat.
type SeatUpdate struct {
	SeatID  domain.SeatID `json:"seat_id,omitempty"`
	UserID  domain.UserID `json:"user_id"`
	Vacated bool          `json:"vacated,omitempty"`
}

type SeatAssignment struct {
	SeatID domain.SeatID `json:"seat_id"`
	UserID domain.UserID `json:"user_id"`
}

type SeatsAutoAssigned struct {
	Assignments []SeatAssignment `json:"assignments"`
}

// SeatSwap is shared by the request, accept and decline messages. Ids are
// pointers so a missing field is distinguishable from user 0.
type SeatSwap struct {
	RequestID   string         `json:"request_id,omitempty"`
	RequesterID *domain.UserID `json:"requester_id"`
	TargetID    *domain.UserID `json:"target_id"`
	SeatID      domain.SeatID  `json:"seat_id,omitempty"`
}

func (s SeatSwap) Parties() (requester, target domain.UserID, ok bool) {
	if s.RequesterID == nil || s.TargetID == nil {
		return 0, 0, false
	}
	return *s.RequesterID, *s.TargetID, true
}

type UserAudioState struct {
	UserID          domain.UserID `json:"user_id"`
	Muted           bool          `json:"muted"`
	GlobalBroadcast *bool         `json:"global_broadcast,omitempty"`
	HostBroadcast   *bool         `json:"host_broadcast,omitempty"`
}

type CameraState struct {
	UserID domain.UserID `json:"user_id"`
	Source string        `json:"source,omitempty"`
}

type Reaction struct {
	UserID domain.UserID `json:"user_id"`
	Emoji  string        `json:"emoji"`
}

type PlatformSelected struct {
	UserID   domain.UserID `json:"user_id"`
	Platform string        `json:"platform"`
	MediaRef string        `json:"media_id,omitempty"`
}
