package domain

import "time"

// AuditEventType categorises audit entries.
type AuditEventType string

const (
	AuditLoginBlocked      AuditEventType = "LOGIN_BLOCKED"
	AuditBruteForceBlocked AuditEventType = "BRUTE_FORCE_BLOCKED"
	AuditAuthFailed        AuditEventType = "AUTH_FAILED"
	AuditAdminRequired     AuditEventType = "ADMIN_REQUIRED"
	AuditLockAccessDenied  AuditEventType = "LOCK_ACCESS_DENIED"
	AuditRateLimited       AuditEventType = "RATE_LIMITED"
	AuditLoginSuccess      AuditEventType = "LOGIN_SUCCESS"
	AuditLoginFailed       AuditEventType = "LOGIN_FAILED"
	AuditLogout            AuditEventType = "LOGOUT"
	AuditTempCodeCreated   AuditEventType = "TEMP_CODE_CREATED"
	AuditTempCodeRevoked   AuditEventType = "TEMP_CODE_REVOKED"
	AuditLockCreated       AuditEventType = "LOCK_CREATED"
	AuditLockDeleted       AuditEventType = "LOCK_DELETED"
	AuditServiceToggled    AuditEventType = "SERVICE_TOGGLED"
)

// AuditEntry is a single security relevant event.
type AuditEntry struct {
	ID        string         `json:"id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"eventType"`
	Message   string         `json:"message"`
	UserID    string         `json:"userId"`
	UserRole  string         `json:"userRole"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"userAgent"`
	URL       string         `json:"url"`
	Method    string         `json:"method"`
	LockID    string         `json:"lockId,omitempty"`
}

// AuditMode selects where audit entries go.
type AuditMode string

const (
	AuditModeOff      AuditMode = "off"
	AuditModeConsole  AuditMode = "console"
	AuditModeFirebase AuditMode = "firebase"
	AuditModeStore    AuditMode = "store"
)

// Persistent reports whether entries are appended to the document store.
func (m AuditMode) Persistent() bool {
	return m == AuditModeFirebase || m == AuditModeStore
}

// ParseAuditMode falls back to console for unknown values.
func ParseAuditMode(value string) AuditMode {
	switch AuditMode(value) {
	case AuditModeOff, AuditModeConsole, AuditModeFirebase, AuditModeStore:
		return AuditMode(value)
	default:
		return AuditModeConsole
	}
}
