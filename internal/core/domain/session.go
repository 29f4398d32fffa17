package domain

import "time"

// Session is the server-side record behind a dashboard login.
type Session struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"userId"`
	Role      Role      `json:"role"`
	LockID    string    `json:"lockId,omitempty"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issuedAt"`
	LastSeen  time.Time `json:"lastSeen"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Identity projects the session onto the caller identity.
func (s Session) Identity() Identity {
	return Identity{
		SubjectID: s.SubjectID,
		Role:      s.Role,
		LockID:    s.LockID,
		IssuedAt:  s.IssuedAt,
	}
}
