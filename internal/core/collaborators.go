package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/watchsync/internal/domain"
)

// MediaGate is the narrow surface of the external media engine:
// it renders audio only from the given peers.
type MediaGate interface {
	SetAudible(peers []domain.UserID)
}

var ErrNoActiveSession = errors.New("room has no active session")

type SessionInfo struct {
	SessionID domain.SessionID `json:"session_id"`
	RoomID    string           `json:"room_id"`
	HostID    domain.UserID    `json:"host_id"`
	IsActive  bool             `json:"is_active"`
	StartedAt time.Time        `json:"started_at"`
}

// SessionAPI is the REST collaborator for session CRUD and chat history.
// ActiveSession returns ErrNoActiveSession when the room is idle.
type SessionAPI interface {
	CreateSession(ctx context.Context, roomID string) (SessionInfo, error)
	ActiveSession(ctx context.Context, roomID string) (SessionInfo, error)
	EndSession(ctx context.Context, id domain.SessionID) error
	ChatHistory(ctx context.Context, id domain.SessionID) ([]domain.ChatMessage, error)
}
