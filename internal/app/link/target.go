package link

import (
	"fmt"
	"net/url"

	"github.com/dkeye/watchsync/internal/domain"
)

// Target is where a room view connects.
type Target struct {
	Endpoint  string
	Token     string
	SessionID domain.SessionID
}

// URL appends the auth token and the optional session id to the endpoint.
func (t Target) URL() (string, error) {
	u, err := url.Parse(t.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("endpoint scheme %q: want ws or wss", u.Scheme)
	}
	q := u.Query()
	if t.Token != "" {
		q.Set("token", t.Token)
	}
	if t.SessionID != "" {
		q.Set("session_id", string(t.SessionID))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
