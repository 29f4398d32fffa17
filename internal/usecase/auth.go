package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/config"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/security"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

const (
	defaultSessionTTL = 24 * time.Hour
	sessionIDBytes    = 32
)

var (
	// ErrInvalidCredentials indicates the username or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrMissingCredentials indicates the username or password was empty.
	ErrMissingCredentials = errors.New("username and password are required")
	// ErrSessionNotFound indicates the session expired or never existed.
	ErrSessionNotFound = errors.New("session not found")
)

// PasswordHasher hashes and verifies secrets.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// LoginInput carries a login attempt.
type LoginInput struct {
	Username string
	Password string
	Meta     RequestMeta
}

// LoginResult is returned after a successful login.
type LoginResult struct {
	Session  domain.Session
	Token    string
	Identity domain.Identity
}

// AuthService authenticates the administrator and lock users.
type AuthService struct {
	adminUsername string
	adminHash     string
	sessionTTL    time.Duration
	hasher        PasswordHasher
	locks         port.LockRepository
	sessions      port.SessionStore
	tokens        *TokenService
	guard         *BruteForceGuard
	audit         *AuditService
	logger        *zap.Logger
	now           func() time.Time
}

// NewAuthService hashes the bootstrap admin password and wires the collaborators.
func NewAuthService(
	cfg config.AuthSettings,
	hasher PasswordHasher,
	locks port.LockRepository,
	sessions port.SessionStore,
	tokens *TokenService,
	guard *BruteForceGuard,
	audit *AuditService,
	logger *zap.Logger,
) (*AuthService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil || sessions == nil || tokens == nil {
		return nil, errors.New("auth service requires a hasher, session store and token service")
	}
	if cfg.AdminPassword == "" {
		return nil, errors.New("admin password is required")
	}

	adminHash, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}

	username := strings.TrimSpace(cfg.AdminUsername)
	if username == "" {
		username = domain.AdminSubjectID
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if guard == nil {
		guard = NewBruteForceGuard(0, 0)
	}

	return &AuthService{
		adminUsername: username,
		adminHash:     adminHash,
		sessionTTL:    ttl,
		hasher:        hasher,
		locks:         locks,
		sessions:      sessions,
		tokens:        tokens,
		guard:         guard,
		audit:         audit,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// SessionTTL returns the sliding session lifetime.
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessionTTL
}

// Login checks the brute-force guard, verifies credentials, and opens a session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	username := strings.TrimSpace(in.Username)

	identifier := username
	if identifier == "" {
		identifier = in.Meta.IP
	}
	if err := s.guard.Attempt(identifier); err != nil {
		s.audit.Record(ctx, in.Meta.Entry(domain.AuditBruteForceBlocked,
			fmt.Sprintf("identifier %s blocked after repeated login failures", identifier), nil, ""))
		return nil, err
	}

	if username == "" || in.Password == "" {
		return nil, ErrMissingCredentials
	}

	identity, err := s.authenticate(ctx, username, in.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.audit.Record(ctx, in.Meta.Entry(domain.AuditLoginFailed,
				fmt.Sprintf("failed login for %s", username), nil, ""))
		}
		return nil, err
	}

	token, err := s.tokens.Issue(identity.SubjectID, identity.Role, identity.LockID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	sessionID, err := security.GenerateSecureToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	now := s.now()
	identity.IssuedAt = now
	session := domain.Session{
		ID:        sessionID,
		SubjectID: identity.SubjectID,
		Role:      identity.Role,
		LockID:    identity.LockID,
		Token:     token,
		IssuedAt:  now,
		LastSeen:  now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Save(ctx, session, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.guard.Reset(identifier)
	s.audit.Record(ctx, in.Meta.Entry(domain.AuditLoginSuccess,
		fmt.Sprintf("%s signed in as %s", identity.SubjectID, identity.Role), &identity, ""))

	return &LoginResult{Session: session, Token: token, Identity: identity}, nil
}

func (s *AuthService) authenticate(ctx context.Context, username, password string) (domain.Identity, error) {
	if username == s.adminUsername {
		ok, err := s.hasher.Verify(password, s.adminHash)
		if err != nil {
			return domain.Identity{}, fmt.Errorf("verify admin password: %w", err)
		}
		if !ok {
			return domain.Identity{}, ErrInvalidCredentials
		}
		return domain.Identity{SubjectID: domain.AdminSubjectID, Role: domain.RoleAdmin}, nil
	}

	if s.locks == nil {
		return domain.Identity{}, ErrInvalidCredentials
	}

	lock, err := s.locks.Get(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidPath) {
			return domain.Identity{}, ErrInvalidCredentials
		}
		return domain.Identity{}, fmt.Errorf("lookup lock: %w", err)
	}
	if !lock.HasPassword() {
		return domain.Identity{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, lock.PasswordHash)
	if err != nil {
		s.logger.Warn("lock password hash unreadable", zap.String("lock_id", lock.ID), zap.Error(err))
		return domain.Identity{}, ErrInvalidCredentials
	}
	if !ok {
		return domain.Identity{}, ErrInvalidCredentials
	}
	return domain.Identity{SubjectID: lock.ID, Role: domain.RoleUser, LockID: lock.ID}, nil
}

// ResolveSession returns the identity behind sessionID and slides its expiry.
func (s *AuthService) ResolveSession(ctx context.Context, sessionID string) (*domain.Identity, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessions.Touch(ctx, sessionID, s.sessionTTL)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	identity := session.Identity()
	return &identity, nil
}

// VerifyToken resolves a bearer token. Invalid tokens yield (nil, false).
func (s *AuthService) VerifyToken(token string) (*domain.Identity, bool) {
	return s.tokens.Verify(token)
}

// Logout deletes the session. identity may be nil when the session already lapsed.
func (s *AuthService) Logout(ctx context.Context, sessionID string, identity *domain.Identity, meta RequestMeta) error {
	if strings.TrimSpace(sessionID) != "" {
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	if identity != nil {
		s.audit.Record(ctx, meta.Entry(domain.AuditLogout, fmt.Sprintf("%s signed out", identity.SubjectID), identity, ""))
	}
	return nil
}
