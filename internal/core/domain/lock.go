package domain

import "time"

// LockStatus reports the device side state of a lock.
type LockStatus string

const (
	LockStatusPending LockStatus = "pending"
	LockStatusOnline  LockStatus = "online"
	LockStatusOffline LockStatus = "offline"
)

// Lock is a registered lock entry under locks_registry/{lockId}.
type Lock struct {
	ID           string     `json:"lockId"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"passwordHash,omitempty"`
	IPAddress    string     `json:"ipAddress,omitempty"`
	Status       LockStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	CreatedBy    string     `json:"createdBy"`
	LastSeen     *time.Time `json:"lastSeen,omitempty"`
}

// Sanitized strips credential material before the lock leaves the service.
func (l Lock) Sanitized() Lock {
	l.PasswordHash = ""
	return l
}

// HasPassword reports whether lock users can sign in to this lock.
func (l Lock) HasPassword() bool {
	return l.PasswordHash != ""
}

// ActivityEntry is an item of locks/{lockId}/activity_log.
type ActivityEntry struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Code      string    `json:"code,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Activity types written by the service.
const (
	ActivityTempCodeSuccess = "TEMP_CODE_SUCCESS"
	ActivityDeviceHeartbeat = "DEVICE_HEARTBEAT"
)

// PendingUser is a face enrolment request waiting for approval.
type PendingUser struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	LockID      string    `json:"lockId"`
	RequestedAt time.Time `json:"requestedAt"`
	RequestedBy string    `json:"requestedBy"`
}
