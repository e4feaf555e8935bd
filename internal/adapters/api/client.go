// Package api talks to the REST collaborator that stores sessions and chat.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dkeye/watchsync/internal/core"
	"github.com/dkeye/watchsync/internal/domain"
	"github.com/dkeye/watchsync/internal/protocol"
)

var (
	ErrNoActiveSession = core.ErrNoActiveSession
	ErrUnauthorized    = errors.New("api token rejected")
)

// StatusError is a non-2xx answer the client has no sentinel for.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api returned status %d: %s", e.Status, e.Body)
}

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

var _ core.SessionAPI = (*Client)(nil)

func New(base, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("api base: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base: unsupported scheme %q", u.Scheme)
	}
	return &Client{
		base:  u,
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type sessionBody struct {
	SessionID domain.SessionID `json:"session_id"`
	RoomID    string           `json:"room_id"`
	HostID    domain.UserID    `json:"host_id"`
	IsActive  bool             `json:"is_active"`
	StartedAt int64            `json:"started_at"`
}

func (b sessionBody) info() core.SessionInfo {
	info := core.SessionInfo{
		SessionID: b.SessionID,
		RoomID:    b.RoomID,
		HostID:    b.HostID,
		IsActive:  b.IsActive,
	}
	if b.StartedAt != 0 {
		info.StartedAt = time.UnixMilli(b.StartedAt).UTC()
	}
	return info
}

func (c *Client) CreateSession(ctx context.Context, roomID string) (core.SessionInfo, error) {
	var out sessionBody
	err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/sessions", struct{}{}, &out)
	return out.info(), err
}

func (c *Client) ActiveSession(ctx context.Context, roomID string) (core.SessionInfo, error) {
	var out sessionBody
	err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID)+"/sessions/active", nil, &out)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return core.SessionInfo{}, fmt.Errorf("%w: %s", ErrNoActiveSession, roomID)
	}
	return out.info(), err
}

func (c *Client) EndSession(ctx context.Context, id domain.SessionID) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(string(id))+"/end", struct{}{}, nil)
}

// ChatHistory returns the stored chat of a session, oldest first.
func (c *Client) ChatHistory(ctx context.Context, id domain.SessionID) ([]domain.ChatMessage, error) {
	var raw []protocol.ChatMessage
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(string(id))+"/chat", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.ChatMessage, 0, len(raw))
	for _, m := range raw {
		out = append(out, m.Domain())
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
