package domain

import (
	"strings"
	"time"
)

// Role enumerates the access levels recognised by the dashboard.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleSystem Role = "system"
)

// ParseRole maps a stored role string onto a known Role.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleUser:
		return RoleUser, true
	case RoleSystem:
		return RoleSystem, true
	default:
		return "", false
	}
}

// AdminSubjectID is the fixed subject identifier of the bootstrap administrator.
const AdminSubjectID = "admin"

// SystemSubjectPrefix prefixes identities synthesised for API-key callers.
const SystemSubjectPrefix = "system_bot_"

// Identity describes an authenticated caller. A user identity is bound to exactly one lock.
type Identity struct {
	SubjectID string    `json:"userId"`
	Role      Role      `json:"role"`
	LockID    string    `json:"lockId,omitempty"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccessLock reports whether the identity may operate on the given lock.
// Admin and system identities pass; users only for the lock they are bound to.
func (i Identity) CanAccessLock(lockID string) bool {
	switch i.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleUser:
		return lockID != "" && i.LockID == lockID
	default:
		return false
	}
}

// SystemIdentity synthesises the identity used for x-api-key callers.
func SystemIdentity(lockID string, at time.Time) Identity {
	return Identity{
		SubjectID: SystemSubjectPrefix + lockID,
		Role:      RoleSystem,
		LockID:    lockID,
		IssuedAt:  at,
	}
}
