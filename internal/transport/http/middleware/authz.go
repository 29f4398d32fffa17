package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

const (
	msgAuthRequired  = "Authentication required"
	msgAdminRequired = "Forbidden: Admin access required"
	msgAccessDenied  = "Forbidden: Access Denied"
)

// DenyResponse is the JSON body of authorization and rate limit denials.
type DenyResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// Deny aborts the request: browsers are redirected to the login page with a
// flash message, API clients receive status with a JSON body.
func Deny(c *gin.Context, status int, message string) {
	if ClientKindOf(c) == domain.ClientBrowser {
		RedirectWithFlash(c, loginPath, message)
		return
	}
	c.AbortWithStatusJSON(status, DenyResponse{Success: false, Error: message, TraceID: GetTraceID(c)})
}

// LockResolver extracts the lock a request targets.
type LockResolver func(*gin.Context) string

// AuthorizationPolicy guards routes and audits every denial.
type AuthorizationPolicy struct {
	audit  *usecase.AuditService
	logger *zap.Logger
}

// NewAuthorizationPolicy constructs an AuthorizationPolicy.
func NewAuthorizationPolicy(audit *usecase.AuditService, logger *zap.Logger) *AuthorizationPolicy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthorizationPolicy{audit: audit, logger: logger}
}

func (p *AuthorizationPolicy) record(c *gin.Context, eventType domain.AuditEventType, message string, identity *domain.Identity, lockID string) {
	p.audit.Record(c.Request.Context(), RequestMeta(c).Entry(eventType, message, identity, lockID))
}

// RequireAuthenticated rejects anonymous requests.
func (p *AuthorizationPolicy) RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentIdentity(c); ok {
			c.Next()
			return
		}
		p.record(c, domain.AuditAuthFailed, fmt.Sprintf("unauthenticated request to %s", c.Request.URL.Path), nil, "")
		Deny(c, http.StatusUnauthorized, msgAuthRequired)
	}
}

// RequireRole admits only callers with role.
func (p *AuthorizationPolicy) RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			p.record(c, domain.AuditAuthFailed, fmt.Sprintf("unauthenticated request to %s", c.Request.URL.Path), nil, "")
			Deny(c, http.StatusUnauthorized, msgAuthRequired)
			return
		}
		if identity.Role != role {
			if role == domain.RoleAdmin {
				p.record(c, domain.AuditAdminRequired, fmt.Sprintf("%s attempted admin route %s", identity.SubjectID, c.Request.URL.Path), identity, "")
				Deny(c, http.StatusForbidden, msgAdminRequired)
				return
			}
			p.record(c, domain.AuditLockAccessDenied, fmt.Sprintf("%s lacks role %s", identity.SubjectID, role), identity, "")
			Deny(c, http.StatusForbidden, msgAccessDenied)
			return
		}
		c.Next()
	}
}

// RequireLockOwnership admits admins, system callers and the user bound to the
// requested lock.
func (p *AuthorizationPolicy) RequireLockOwnership(resolve LockResolver) gin.HandlerFunc {
	if resolve == nil {
		resolve = RequestLockID
	}
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			p.record(c, domain.AuditAuthFailed, fmt.Sprintf("unauthenticated request to %s", c.Request.URL.Path), nil, "")
			Deny(c, http.StatusUnauthorized, msgAuthRequired)
			return
		}

		lockID := resolve(c)
		if identity.Role == domain.RoleUser && lockID == "" {
			// Routes without a lock in the request are scoped to the caller's own lock.
			lockID = identity.LockID
		}
		denied, allowed := firstInaccessibleLock(*identity, append([]string{lockID}, RequestLockIDs(c)...))
		if allowed {
			c.Next()
			return
		}

		p.logger.Warn("lock access denied",
			zap.String("user_id", identity.SubjectID),
			zap.String("lock_id", denied),
			zap.String("path", c.Request.URL.Path),
		)
		p.record(c, domain.AuditLockAccessDenied,
			fmt.Sprintf("%s denied access to lock %s", identity.SubjectID, denied), identity, denied)
		Deny(c, http.StatusForbidden, msgAccessDenied)
	}
}

// firstInaccessibleLock reports the first lock id the identity may not touch.
// A request naming several locks is only admitted when all of them pass.
func firstInaccessibleLock(identity domain.Identity, lockIDs []string) (string, bool) {
	for _, id := range lockIDs {
		if !identity.CanAccessLock(id) {
			return id, false
		}
	}
	return "", true
}

// RateLimitRejected is the limiter reject hook: login rejections are audited
// as LOGIN_BLOCKED, the rest as RATE_LIMITED.
func (p *AuthorizationPolicy) RateLimitRejected(c *gin.Context, rule RateLimitRule) {
	identity, _ := CurrentIdentity(c)
	if rule.Name == LoginPolicy {
		p.record(c, domain.AuditLoginBlocked, "login rate limit exceeded", identity, "")
		return
	}
	p.record(c, domain.AuditRateLimited, fmt.Sprintf("%s rate limit exceeded", rule.Name), identity, "")
}
