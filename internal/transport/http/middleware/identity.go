package middleware

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/usecase"
)

const (
	requestLockIDsKey = "request_lock_ids"
	maxPeekBodyBytes  = 1 << 20
)

// IdentityResolver resolves session cookies and bearer tokens.
type IdentityResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*domain.Identity, error)
	VerifyToken(token string) (*domain.Identity, bool)
}

// IdentifyOptions configures Identify.
type IdentifyOptions struct {
	APIKey     string
	CookieName string
	Resolver   IdentityResolver
	Logger     *zap.Logger
	Now        func() time.Time
}

// Identify resolves the caller from, in order, the API key, the session cookie
// and the bearer token. Invalid credentials leave the request anonymous.
func Identify(opts IdentifyOptions) gin.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	apiKey := []byte(opts.APIKey)

	return func(c *gin.Context) {
		if key := c.GetHeader(APIKeyHeader); key != "" && len(apiKey) > 0 {
			if subtle.ConstantTimeCompare([]byte(key), apiKey) == 1 {
				SetIdentity(c, domain.SystemIdentity(RequestLockID(c), now().UTC()))
				c.Next()
				return
			}
			log.Debug("api key rejected", zap.String("path", c.Request.URL.Path))
		}

		if opts.Resolver == nil {
			c.Next()
			return
		}

		if opts.CookieName != "" {
			if sessionID, err := c.Cookie(opts.CookieName); err == nil && sessionID != "" {
				identity, err := opts.Resolver.ResolveSession(c.Request.Context(), sessionID)
				switch {
				case err == nil:
					SetIdentity(c, *identity)
					c.Set(sessionIDKey, sessionID)
					c.Next()
					return
				case !errors.Is(err, usecase.ErrSessionNotFound):
					log.Warn("session lookup failed", zap.Error(err))
				}
			}
		}

		if token := bearerToken(c.GetHeader("Authorization")); token != "" {
			if identity, ok := opts.Resolver.VerifyToken(token); ok {
				SetIdentity(c, *identity)
			}
		}

		c.Next()
	}
}

const sessionIDKey = "session_id"

// SessionID returns the session cookie value accepted by Identify.
func SessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}

func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequestLockIDs returns every distinct lock id the request carries, in the
// order route param, query string, JSON body. The body is restored for later binding.
func RequestLockIDs(c *gin.Context) []string {
	if cached, ok := c.Get(requestLockIDsKey); ok {
		ids, _ := cached.([]string)
		return ids
	}

	var ids []string
	for _, candidate := range []string{c.Param("lockId"), c.Query("lockId"), lockIDFromBody(c)} {
		candidate = strings.TrimSpace(candidate)
		if candidate != "" && !slices.Contains(ids, candidate) {
			ids = append(ids, candidate)
		}
	}
	c.Set(requestLockIDsKey, ids)
	return ids
}

// RequestLockID is the lock addressed by the request: the first of RequestLockIDs.
// Handlers behind RequireLockOwnership use it so they act on the checked lock.
func RequestLockID(c *gin.Context) string {
	if ids := RequestLockIDs(c); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func lockIDFromBody(c *gin.Context) string {
	if c.Request.Body == nil || !strings.Contains(c.ContentType(), "json") {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPeekBodyBytes))
	_ = c.Request.Body.Close()
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return ""
	}

	var payload struct {
		LockID string `json:"lockId"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.LockID
}
