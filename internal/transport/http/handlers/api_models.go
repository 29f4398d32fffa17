package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Success: false,
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is returned by the liveness probe.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the state of each dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// LoginRequest is accepted as JSON by the API and as a form by the dashboard.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// IdentitySummary is the caller view returned after login.
type IdentitySummary struct {
	UserID string      `json:"userId"`
	Role   domain.Role `json:"role"`
	LockID string      `json:"lockId,omitempty"`
}

func summarize(identity domain.Identity) IdentitySummary {
	return IdentitySummary{UserID: identity.SubjectID, Role: identity.Role, LockID: identity.LockID}
}

// LoginResponse is returned by the API login.
type LoginResponse struct {
	Success   bool            `json:"success"`
	Token     string          `json:"token"`
	ExpiresIn int             `json:"expiresIn"`
	User      IdentitySummary `json:"user"`
}

// FlashResponse carries the pending flash message of the login page.
type FlashResponse struct {
	Flash string `json:"flash,omitempty"`
}

// CreateTempCodeRequest asks for a new temporary code.
type CreateTempCodeRequest struct {
	LockID      string `json:"lockId" form:"lockId"`
	Duration    string `json:"duration" form:"duration"`
	Description string `json:"description" form:"description"`
}

// CreateTempCodeResponse wraps the issued code.
type CreateTempCodeResponse struct {
	Success bool `json:"success"`
	usecase.TempCodeCreated
}

// VerifyTempCodeRequest is sent by lock controllers.
type VerifyTempCodeRequest struct {
	LockID string `json:"lockId"`
	Code   string `json:"code"`
}

// VerifyTempCodeResponse reports a verification outcome.
type VerifyTempCodeResponse struct {
	Success bool `json:"success"`
	usecase.VerifyResult
}

// RevokeTempCodeRequest identifies the code to revoke.
type RevokeTempCodeRequest struct {
	LockID string `json:"lockId"`
	Code   string `json:"code"`
}

// ActiveTempCodesResponse lists usable codes.
type ActiveTempCodesResponse struct {
	Success bool                     `json:"success"`
	Codes   []usecase.ActiveTempCode `json:"codes"`
}

// CreateLockRequest registers a lock from the dashboard.
type CreateLockRequest struct {
	LockID    string `json:"lockId"`
	Name      string `json:"name"`
	Password  string `json:"password"`
	IPAddress string `json:"ipAddress"`
}

// LockResponse wraps one lock.
type LockResponse struct {
	Success bool        `json:"success"`
	Lock    domain.Lock `json:"lock"`
}

// LocksResponse wraps the registry listing.
type LocksResponse struct {
	Success bool          `json:"success"`
	Locks   []domain.Lock `json:"locks"`
}

// DeleteLockResponse reports a cascade delete.
type DeleteLockResponse struct {
	Success bool                 `json:"success"`
	Deleted usecase.LockDeletion `json:"deleted"`
}

// RegisterDeviceRequest is sent by a lock controller on boot.
type RegisterDeviceRequest struct {
	LockID    string `json:"lockId"`
	Name      string `json:"name"`
	IPAddress string `json:"ipAddress"`
}

// HeartbeatRequest refreshes a lock's last-seen time.
type HeartbeatRequest struct {
	LockID    string `json:"lockId"`
	IPAddress string `json:"ipAddress"`
}

// RegisterDeviceResponse reports whether the lock was newly created.
type RegisterDeviceResponse struct {
	Success bool        `json:"success"`
	Created bool        `json:"created"`
	Lock    domain.Lock `json:"lock"`
}

// ActivityResponse lists activity entries.
type ActivityResponse struct {
	Success bool                   `json:"success"`
	Entries []domain.ActivityEntry `json:"entries"`
}

// PendingUserRequest queues an enrolment.
type PendingUserRequest struct {
	Name string `json:"name"`
}

// PendingUserResponse wraps one enrolment request.
type PendingUserResponse struct {
	Success bool               `json:"success"`
	User    domain.PendingUser `json:"user"`
}

// PendingUsersResponse lists enrolment requests.
type PendingUsersResponse struct {
	Success bool                 `json:"success"`
	Users   []domain.PendingUser `json:"users"`
}

// JobStatusResponse wraps a supervised job snapshot.
type JobStatusResponse struct {
	Success bool             `json:"success"`
	Job     domain.JobStatus `json:"job"`
}

// AuditResponse lists persisted audit entries.
type AuditResponse struct {
	Success bool                `json:"success"`
	Mode    domain.AuditMode    `json:"mode"`
	Entries []domain.AuditEntry `json:"entries"`
}

// CleanupResponse wraps a cleanup report.
type CleanupResponse struct {
	Success bool                  `json:"success"`
	Report  usecase.CleanupReport `json:"report"`
}
