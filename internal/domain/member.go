package domain

type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// Member represents user's participation meta for a session.
// Members are keyed by UserID; there is never more than one per user.
type Member struct {
	UserID   UserID `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id UserID, username string, role Role) Member {
	if role == "" {
		role = RoleViewer
	}
	return Member{UserID: id, Username: username, Role: role}
}

func (m Member) IsHost() bool { return m.Role == RoleHost }
