package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/security"
)

const defaultTokenTTL = 24 * time.Hour

// tokenClaims is the payload of dashboard and API tokens.
type tokenClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	LockID string `json:"lockId,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed identity tokens.
type TokenService struct {
	signer *security.HMACSigner
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService constructs a TokenService signing with secret.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	signer, err := security.NewHMACSigner(secret)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenService{
		signer: signer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// TTL returns the token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for the subject valid for the configured lifetime.
func (s *TokenService) Issue(subjectID string, role domain.Role, lockID string) (string, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", errors.New("subject id is required")
	}
	if _, ok := domain.ParseRole(string(role)); !ok {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := s.now()
	claims := tokenClaims{
		UserID: subjectID,
		Role:   string(role),
		LockID: lockID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return s.signer.Sign(claims)
}

// Verify returns the identity carried by a valid token. Malformed, tampered,
// expired or foreign-algorithm tokens all yield (nil, false).
func (s *TokenService) Verify(raw string) (*domain.Identity, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	var claims tokenClaims
	if err := s.signer.Parse(raw, &claims, jwt.WithTimeFunc(s.now)); err != nil {
		return nil, false
	}

	role, ok := domain.ParseRole(claims.Role)
	if !ok || claims.UserID == "" {
		return nil, false
	}
	if role == domain.RoleUser && claims.LockID == "" {
		return nil, false
	}

	identity := &domain.Identity{
		SubjectID: claims.UserID,
		Role:      role,
		LockID:    claims.LockID,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	return identity, true
}
