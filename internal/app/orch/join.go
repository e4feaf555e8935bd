package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/watchsync/internal/core"
)

// ResolveSession finds the session to join in roomID. With create set, an
// idle room gets a new session instead of an error.
func ResolveSession(ctx context.Context, api core.SessionAPI, roomID string, create bool) (core.SessionInfo, error) {
	if api == nil {
		return core.SessionInfo{}, ErrNoSessionAPI
	}
	info, err := api.ActiveSession(ctx, roomID)
	switch {
	case err == nil:
		log.Info().Str("module", "app.orch").Str("room_id", roomID).Str("session_id", string(info.SessionID)).Msg("joining active session")
		return info, nil
	case !errors.Is(err, core.ErrNoActiveSession) || !create:
		return core.SessionInfo{}, fmt.Errorf("resolve session in room %s: %w", roomID, err)
	}

	info, err = api.CreateSession(ctx, roomID)
	if err != nil {
		return core.SessionInfo{}, fmt.Errorf("create session in room %s: %w", roomID, err)
	}
	log.Info().Str("module", "app.orch").Str("room_id", roomID).Str("session_id", string(info.SessionID)).Msg("session created")
	return info, nil
}
