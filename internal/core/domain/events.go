package domain

import "time"

// Lock event types published to the message bus.
const (
	EventTempCodeCreated  = "lock.temp_code.created"
	EventTempCodeVerified = "lock.temp_code.verified"
	EventTempCodeRevoked  = "lock.temp_code.revoked"
	EventLockRegistered   = "lock.registered"
	EventLockDeleted      = "lock.deleted"
)

// LockEvent notifies lock controllers and dashboards of state changes.
type LockEvent struct {
	EventID    string
	Type       string
	LockID     string
	ActorID    string
	OccurredAt time.Time
	Attributes map[string]any
}
