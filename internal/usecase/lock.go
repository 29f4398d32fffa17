package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

const (
	maxLockNameLength   = 100
	defaultActivityPage = 50
)

var (
	// ErrValidation marks caller input errors.
	ErrValidation = errors.New("validation failed")
	// ErrLockNotFound indicates the lock is not registered.
	ErrLockNotFound = errors.New("lock not found")
	// ErrLockExists indicates a lock with the same id is already registered.
	ErrLockExists = errors.New("lock already exists")
	// ErrInvalidLockID indicates the lock id contains unsupported characters.
	ErrInvalidLockID = errors.New("lock id may only contain letters, digits, '-' and '_'")
	// ErrInvalidLockName indicates the lock name is empty or too long.
	ErrInvalidLockName = errors.New("lock name is required and must be at most 100 characters")
	// ErrPendingUserNotFound indicates the enrolment request does not exist.
	ErrPendingUserNotFound = errors.New("pending user not found")
)

var lockIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// PasswordPolicy validates lock passwords. userInputs feed the strength estimator.
type PasswordPolicy interface {
	Validate(password string, userInputs ...string) error
}

// CreateLockInput describes a new lock registered from the dashboard.
type CreateLockInput struct {
	ID        string
	Name      string
	Password  string
	IPAddress string
	Actor     domain.Identity
	Meta      RequestMeta
}

// RegisterDeviceInput is sent by a lock controller announcing itself.
type RegisterDeviceInput struct {
	LockID    string
	Name      string
	IPAddress string
}

// PendingUserInput requests enrolment of a face for a lock.
type PendingUserInput struct {
	LockID string
	Name   string
	Actor  domain.Identity
}

// LockDeletion reports what a cascade delete removed.
type LockDeletion struct {
	LockID       string `json:"lockId"`
	DataNodes    int    `json:"dataNodes"`
	FaceImages   int    `json:"faceImages"`
	ImagesFailed bool   `json:"imagesFailed,omitempty"`
}

// LockService manages the lock registry and per-lock data.
type LockService struct {
	locks    port.LockRepository
	activity port.ActivityLogRepository
	pending  port.PendingUserRepository
	images   port.FaceImageStore
	events   port.EventPublisher
	hasher   PasswordHasher
	policy   PasswordPolicy
	audit    *AuditService
	logger   *zap.Logger
	now      func() time.Time
}

// NewLockService constructs a LockService. images and events may be nil.
func NewLockService(
	locks port.LockRepository,
	activity port.ActivityLogRepository,
	pending port.PendingUserRepository,
	hasher PasswordHasher,
	policy PasswordPolicy,
	audit *AuditService,
	logger *zap.Logger,
) *LockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockService{
		locks:    locks,
		activity: activity,
		pending:  pending,
		hasher:   hasher,
		policy:   policy,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *LockService) WithClock(clock func() time.Time) *LockService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithFaceImages attaches the enrolment image store cleaned on delete.
func (s *LockService) WithFaceImages(images port.FaceImageStore) *LockService {
	s.images = images
	return s
}

// WithEvents attaches the lock event publisher.
func (s *LockService) WithEvents(events port.EventPublisher) *LockService {
	s.events = events
	return s
}

// ValidateLockID checks the characters allowed in a lock id.
func ValidateLockID(lockID string) error {
	if !lockIDPattern.MatchString(lockID) {
		return ErrInvalidLockID
	}
	return nil
}

// CreateLock registers a lock. A missing id is generated.
func (s *LockService) CreateLock(ctx context.Context, in CreateLockInput) (*domain.Lock, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || len([]rune(name)) > maxLockNameLength {
		return nil, ErrInvalidLockName
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = "lock_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if err := ValidateLockID(id); err != nil {
		return nil, err
	}

	lock := domain.Lock{
		ID:        id,
		Name:      name,
		IPAddress: strings.TrimSpace(in.IPAddress),
		Status:    domain.LockStatusPending,
		CreatedAt: s.now(),
		CreatedBy: in.Actor.SubjectID,
	}

	if in.Password != "" {
		if s.policy != nil {
			if err := s.policy.Validate(in.Password, id, name); err != nil {
				return nil, err
			}
		}
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash lock password: %w", err)
		}
		lock.PasswordHash = hash
	}

	if err := s.locks.Create(ctx, lock); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrLockExists
		}
		return nil, fmt.Errorf("create lock: %w", err)
	}

	s.audit.Record(ctx, in.Meta.Entry(domain.AuditLockCreated, fmt.Sprintf("lock %s (%s) created", id, name), &in.Actor, id))
	publishLockEvent(ctx, s.events, s.logger, domain.LockEvent{
		Type:       domain.EventLockRegistered,
		LockID:     id,
		ActorID:    in.Actor.SubjectID,
		OccurredAt: lock.CreatedAt,
		Attributes: map[string]any{"name": name, "source": "dashboard"},
	})

	sanitized := lock.Sanitized()
	return &sanitized, nil
}

// ListLocks returns every registered lock without credentials.
func (s *LockService) ListLocks(ctx context.Context) ([]domain.Lock, error) {
	locks, err := s.locks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	for i := range locks {
		locks[i] = locks[i].Sanitized()
	}
	return locks, nil
}

// GetLock returns a lock without credentials.
func (s *LockService) GetLock(ctx context.Context, lockID string) (*domain.Lock, error) {
	lock, err := s.locks.Get(ctx, lockID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidPath) {
			return nil, ErrLockNotFound
		}
		return nil, fmt.Errorf("get lock: %w", err)
	}
	sanitized := lock.Sanitized()
	return &sanitized, nil
}

// DeleteLock removes the registry entry, the locks/{id} subtree and the
// enrolment images. Image failures are logged and reported, not fatal.
func (s *LockService) DeleteLock(ctx context.Context, lockID string, actor domain.Identity, meta RequestMeta) (*LockDeletion, error) {
	if _, err := s.locks.Get(ctx, lockID); err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidPath) {
			return nil, ErrLockNotFound
		}
		return nil, fmt.Errorf("get lock: %w", err)
	}

	removed, err := s.locks.DeleteData(ctx, lockID)
	if err != nil {
		return nil, fmt.Errorf("delete lock data: %w", err)
	}
	if err := s.locks.Delete(ctx, lockID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("delete lock: %w", err)
	}

	result := &LockDeletion{LockID: lockID, DataNodes: removed}
	if s.images != nil {
		images, err := s.images.DeleteLockImages(ctx, lockID)
		if err != nil {
			s.logger.Error("delete face images failed", zap.String("lock_id", lockID), zap.Error(err))
			result.ImagesFailed = true
		}
		result.FaceImages = images
	}

	s.audit.Record(ctx, meta.Entry(domain.AuditLockDeleted, fmt.Sprintf("lock %s deleted", lockID), &actor, lockID))
	publishLockEvent(ctx, s.events, s.logger, domain.LockEvent{
		Type:    domain.EventLockDeleted,
		LockID:  lockID,
		ActorID: actor.SubjectID,
		Attributes: map[string]any{
			"dataNodes":  removed,
			"faceImages": result.FaceImages,
		},
	})
	return result, nil
}

// RegisterDevice records a controller announcing itself. Unknown locks are
// created in the pending state; known ones are marked online.
func (s *LockService) RegisterDevice(ctx context.Context, in RegisterDeviceInput) (*domain.Lock, bool, error) {
	lockID := strings.TrimSpace(in.LockID)
	if err := ValidateLockID(lockID); err != nil {
		return nil, false, err
	}
	now := s.now()

	existing, err := s.locks.Get(ctx, lockID)
	switch {
	case err == nil:
		existing.Status = domain.LockStatusOnline
		existing.LastSeen = &now
		if ip := strings.TrimSpace(in.IPAddress); ip != "" {
			existing.IPAddress = ip
		}
		if err := s.locks.Save(ctx, *existing); err != nil {
			return nil, false, fmt.Errorf("save lock: %w", err)
		}
		sanitized := existing.Sanitized()
		return &sanitized, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("get lock: %w", err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = lockID
	}
	lock := domain.Lock{
		ID:        lockID,
		Name:      name,
		IPAddress: strings.TrimSpace(in.IPAddress),
		Status:    domain.LockStatusPending,
		CreatedAt: now,
		CreatedBy: domain.SystemSubjectPrefix + lockID,
		LastSeen:  &now,
	}
	if err := s.locks.Create(ctx, lock); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			lock, err := s.Heartbeat(ctx, lockID, in.IPAddress)
			return lock, false, err
		}
		return nil, false, fmt.Errorf("create lock: %w", err)
	}

	publishLockEvent(ctx, s.events, s.logger, domain.LockEvent{
		Type:       domain.EventLockRegistered,
		LockID:     lockID,
		ActorID:    lock.CreatedBy,
		OccurredAt: now,
		Attributes: map[string]any{"name": name, "source": "device", "ipAddress": lock.IPAddress},
	})
	return &lock, true, nil
}

// Heartbeat marks a registered lock online and refreshes its address.
func (s *LockService) Heartbeat(ctx context.Context, lockID, ipAddress string) (*domain.Lock, error) {
	lock, err := s.locks.Get(ctx, lockID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidPath) {
			return nil, ErrLockNotFound
		}
		return nil, fmt.Errorf("get lock: %w", err)
	}

	now := s.now()
	lock.LastSeen = &now
	lock.Status = domain.LockStatusOnline
	if ip := strings.TrimSpace(ipAddress); ip != "" {
		lock.IPAddress = ip
	}
	if err := s.locks.Save(ctx, *lock); err != nil {
		return nil, fmt.Errorf("save lock: %w", err)
	}

	sanitized := lock.Sanitized()
	return &sanitized, nil
}

// ListActivity returns up to limit activity entries, newest first.
func (s *LockService) ListActivity(ctx context.Context, lockID string, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 {
		limit = defaultActivityPage
	}
	entries, err := s.activity.List(ctx, lockID)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidPath) {
			return nil, ErrLockNotFound
		}
		return nil, fmt.Errorf("list activity: %w", err)
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// AddPendingUser queues a face enrolment request for the lock.
func (s *LockService) AddPendingUser(ctx context.Context, in PendingUserInput) (*domain.PendingUser, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || len([]rune(name)) > maxLockNameLength {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if _, err := s.GetLock(ctx, in.LockID); err != nil {
		return nil, err
	}

	user := domain.PendingUser{
		ID:          uuid.NewString(),
		Name:        name,
		LockID:      in.LockID,
		RequestedAt: s.now(),
		RequestedBy: in.Actor.SubjectID,
	}
	if err := s.pending.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("save pending user: %w", err)
	}
	return &user, nil
}

// ListPendingUsers returns the enrolment queue of the lock.
func (s *LockService) ListPendingUsers(ctx context.Context, lockID string) ([]domain.PendingUser, error) {
	users, err := s.pending.List(ctx, lockID)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidPath) {
			return nil, ErrLockNotFound
		}
		return nil, fmt.Errorf("list pending users: %w", err)
	}
	return users, nil
}

// RemovePendingUser deletes an enrolment request.
func (s *LockService) RemovePendingUser(ctx context.Context, lockID, userID string) error {
	if err := s.pending.Delete(ctx, lockID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidPath) {
			return ErrPendingUserNotFound
		}
		return fmt.Errorf("delete pending user: %w", err)
	}
	return nil
}
