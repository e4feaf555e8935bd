package domain

import (
	"slices"
	"time"
)

type SessionID string

// SessionSnapshot is the client's single view of session identity,
// membership and host. It is a value: holders get their own copy.
type SessionSnapshot struct {
	SessionID SessionID `json:"session_id"`
	IsActive  bool      `json:"is_active"`
	HostID    UserID    `json:"host_id"`
	Members   []Member  `json:"members"`
	StartedAt time.Time `json:"started_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Clone returns a deep copy so the reducer's snapshot never escapes by reference.
func (s SessionSnapshot) Clone() SessionSnapshot {
	s.Members = slices.Clone(s.Members)
	return s
}

func (s SessionSnapshot) Member(id UserID) (Member, bool) {
	for _, m := range s.Members {
		if m.UserID == id {
			return m, true
		}
	}
	return Member{}, false
}
