package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/config"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/logger"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/security"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/telemetry"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

const (
	codeMin                   = 100000
	codeMax                   = 999999
	maxCodeDuration           = 365 * 24 * time.Hour
	defaultCodeDescription    = "Temporary code"
	defaultDisplayTimezone    = "Asia/Ho_Chi_Minh"
	defaultGenerationAttempts = 10
	displayTimeLayout         = "15:04 02/01/2006"
)

var (
	// ErrInvalidDuration indicates the duration is not "<positive int>h" or "<positive int>d".
	ErrInvalidDuration = errors.New("invalid duration format; use <number>h or <number>d")
	// ErrCodeWriteUnconfirmed indicates the stored code could not be read back as written.
	ErrCodeWriteUnconfirmed = errors.New("temporary code write could not be confirmed")
	// ErrCodeSpaceExhausted indicates every generated candidate collided with an existing code.
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique temporary code")
	// ErrTempCodeNotFound indicates the code does not exist for the lock.
	ErrTempCodeNotFound = errors.New("code not found")
)

var durationPattern = regexp.MustCompile(`^(\d+)([hHdD])$`)

// ParseCodeDuration parses "<n>h" or "<n>d" with n > 0.
func ParseCodeDuration(spec string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return 0, ErrInvalidDuration
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidDuration
	}

	unit := time.Hour
	if strings.EqualFold(m[2], "d") {
		unit = 24 * time.Hour
	}
	if n > int64(maxCodeDuration/unit) {
		return 0, ErrInvalidDuration
	}
	return time.Duration(n) * unit, nil
}

// FormatRemaining renders the time left on a code.
func FormatRemaining(d time.Duration) string {
	minutes := int(math.Round(d.Minutes()))
	if minutes < 0 {
		minutes = 0
	}
	hours := minutes / 60
	switch {
	case hours > 24:
		return fmt.Sprintf("%d days", hours/24)
	case minutes > 60:
		return fmt.Sprintf("%d hours %d minutes", hours, minutes%60)
	default:
		return fmt.Sprintf("%d minutes", minutes)
	}
}

// CreateTempCodeInput describes a code request.
type CreateTempCodeInput struct {
	LockID      string
	Duration    string
	Description string
	Creator     *domain.Identity
	Channel     string
	Meta        RequestMeta
}

// TempCodeCreated is returned to the issuer.
type TempCodeCreated struct {
	Code               string    `json:"code"`
	LockID             string    `json:"lockId"`
	Description        string    `json:"description"`
	ExpiresAt          time.Time `json:"expiresAt"`
	ExpiresAtFormatted string    `json:"expireAtFormatted"`
	MaxUses            int       `json:"maxUses"`
}

// VerifyResult is the outcome of a verification.
type VerifyResult struct {
	Valid         bool                `json:"valid"`
	Reason        domain.VerifyReason `json:"reason"`
	Message       string              `json:"message"`
	RemainingUses *int                `json:"remainingUses,omitempty"`
}

// RevokeTempCodeInput identifies the code to revoke.
type RevokeTempCodeInput struct {
	LockID string
	Code   string
	Actor  *domain.Identity
	Meta   RequestMeta
}

// ActiveTempCode summarises a usable code.
type ActiveTempCode struct {
	Code             string    `json:"code"`
	Description      string    `json:"description"`
	ExpiresAt        time.Time `json:"expiresAt"`
	ExpireAt         string    `json:"expireAt"`
	RemainingMinutes int       `json:"remainingMinutes"`
	TimeRemaining    string    `json:"timeRemaining"`
	UsedCount        int       `json:"usedCount"`
	MaxUses          int       `json:"maxUses"`
	CreatedBy        string    `json:"createdBy"`
	CreatedFrom      string    `json:"createdFrom"`
}

var verifyMessages = map[domain.VerifyReason]string{
	domain.VerifyOK:       "Code verified",
	domain.VerifyNotFound: "Code not found",
	domain.VerifyExpired:  "Code expired",
	domain.VerifyUsedUp:   "Code used up",
	domain.VerifyRevoked:  "Code revoked",
}

// TempCodeService issues, verifies, revokes and lists temporary codes.
type TempCodeService struct {
	codes       port.TempCodeRepository
	activity    port.ActivityLogRepository
	events      port.EventPublisher
	audit       *AuditService
	metrics     *telemetry.Metrics
	logger      *zap.Logger
	location    *time.Location
	description string
	maxUses     int
	attempts    int
	generate    func() (string, error)
	now         func() time.Time
}

// NewTempCodeService constructs a TempCodeService from settings.
func NewTempCodeService(
	cfg config.TempCodeSettings,
	codes port.TempCodeRepository,
	activity port.ActivityLogRepository,
	audit *AuditService,
	metrics *telemetry.Metrics,
	log *zap.Logger,
) (*TempCodeService, error) {
	if log == nil {
		log = zap.NewNop()
	}

	tz := cfg.DisplayTimezone
	if tz == "" {
		tz = defaultDisplayTimezone
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load display timezone %q: %w", tz, err)
	}

	description := strings.TrimSpace(cfg.DefaultDescription)
	if description == "" {
		description = defaultCodeDescription
	}
	maxUses := cfg.MaxUses
	if maxUses <= 0 {
		maxUses = 1
	}
	attempts := cfg.GenerationAttempts
	if attempts <= 0 {
		attempts = defaultGenerationAttempts
	}

	return &TempCodeService{
		codes:       codes,
		activity:    activity,
		audit:       audit,
		metrics:     metrics,
		logger:      log,
		location:    location,
		description: description,
		maxUses:     maxUses,
		attempts:    attempts,
		generate:    generateCode,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func generateCode() (string, error) {
	n, err := security.RandomIntInRange(codeMin, codeMax)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n, 10), nil
}

// WithClock overrides the internal clock for deterministic tests.
func (s *TempCodeService) WithClock(clock func() time.Time) *TempCodeService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithGenerator overrides the code generator.
func (s *TempCodeService) WithGenerator(gen func() (string, error)) *TempCodeService {
	if gen != nil {
		s.generate = gen
	}
	return s
}

// WithEvents attaches the lock event publisher.
func (s *TempCodeService) WithEvents(events port.EventPublisher) *TempCodeService {
	s.events = events
	return s
}

// FormatLocal renders t in the display timezone.
func (s *TempCodeService) FormatLocal(t time.Time) string {
	return t.In(s.location).Format(displayTimeLayout)
}

// Create issues a code, retrying on collisions, and confirms the write by reading it back.
func (s *TempCodeService) Create(ctx context.Context, in CreateTempCodeInput) (*TempCodeCreated, error) {
	lockID := strings.TrimSpace(in.LockID)
	if lockID == "" {
		return nil, fmt.Errorf("%w: lockId is required", ErrValidation)
	}
	if strings.TrimSpace(in.Duration) == "" {
		return nil, fmt.Errorf("%w: duration is required", ErrValidation)
	}
	ttl, err := ParseCodeDuration(in.Duration)
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = s.description
	}

	createdBy := "system"
	if in.Creator != nil && in.Creator.SubjectID != "" {
		createdBy = in.Creator.SubjectID
	}
	channel := in.Channel
	if channel == "" {
		channel = domain.CreatedFromDashboard
	}

	now := s.now()
	record := domain.TempCode{
		LockID:      lockID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		CreatedBy:   createdBy,
		CreatedFrom: channel,
		Description: description,
		MaxUses:     s.maxUses,
		UsedCount:   0,
		Status:      domain.TempCodeActive,
	}

	stored := false
	for attempt := 0; attempt < s.attempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		record.Code = code

		err = s.codes.Create(ctx, record)
		if err == nil {
			stored = true
			break
		}
		if errors.Is(err, repository.ErrAlreadyExists) {
			s.logger.Debug("temporary code collision", zap.String("lock_id", lockID), zap.Int("attempt", attempt+1))
			continue
		}
		if errors.Is(err, repository.ErrInvalidPath) {
			return nil, ErrInvalidLockID
		}
		return nil, fmt.Errorf("store temp code: %w", err)
	}
	if !stored {
		return nil, ErrCodeSpaceExhausted
	}

	if err := s.confirmWrite(ctx, record); err != nil {
		s.logger.Error("temporary code write not confirmed",
			zap.String("lock_id", lockID),
			zap.String("code", logger.MaskCode(record.Code)),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.TempCodeCreated()
	s.audit.Record(ctx, in.Meta.Entry(domain.AuditTempCodeCreated,
		fmt.Sprintf("temporary code created for lock %s, valid %s", lockID, in.Duration), in.Creator, lockID))
	publishLockEvent(ctx, s.events, s.logger, domain.LockEvent{
		Type:       domain.EventTempCodeCreated,
		LockID:     lockID,
		ActorID:    createdBy,
		OccurredAt: now,
		Attributes: map[string]any{
			"expiresAt":   record.ExpiresAt.Format(time.RFC3339),
			"createdFrom": channel,
			"maxUses":     record.MaxUses,
		},
	})

	return &TempCodeCreated{
		Code:               record.Code,
		LockID:             lockID,
		Description:        description,
		ExpiresAt:          record.ExpiresAt,
		ExpiresAtFormatted: s.FormatLocal(record.ExpiresAt),
		MaxUses:            record.MaxUses,
	}, nil
}

func (s *TempCodeService) confirmWrite(ctx context.Context, want domain.TempCode) error {
	got, err := s.codes.Get(ctx, want.LockID, want.Code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: code missing after write", ErrCodeWriteUnconfirmed)
		}
		return fmt.Errorf("%w: %w", ErrCodeWriteUnconfirmed, err)
	}

	if got.Code != want.Code ||
		got.LockID != want.LockID ||
		!got.ExpiresAt.Equal(want.ExpiresAt) ||
		got.Status != want.Status ||
		got.MaxUses != want.MaxUses ||
		got.UsedCount != want.UsedCount {
		return fmt.Errorf("%w: stored record differs from written record", ErrCodeWriteUnconfirmed)
	}
	return nil
}

// Verify checks and consumes a code. The evaluation order is not found,
// expired, used up, revoked, then an atomic increment. Expired or used up
// codes that are still marked active get their status corrected.
func (s *TempCodeService) Verify(ctx context.Context, lockID, code string) (*VerifyResult, error) {
	lockID = strings.TrimSpace(lockID)
	code = strings.TrimSpace(code)
	if lockID == "" || code == "" {
		return nil, fmt.Errorf("%w: code and lockId are required", ErrValidation)
	}

	var (
		reason   domain.VerifyReason
		verified time.Time
	)
	updated, err := s.codes.Update(ctx, lockID, code, func(tc *domain.TempCode) (bool, error) {
		now := s.now()
		switch {
		case tc.IsExpired(now):
			reason = domain.VerifyExpired
			if tc.Status == domain.TempCodeActive {
				tc.Status = domain.TempCodeExpired
				return true, nil
			}
			return false, nil
		case tc.IsUsedUp():
			reason = domain.VerifyUsedUp
			if tc.Status == domain.TempCodeActive {
				tc.Status = domain.TempCodeUsedUp
				return true, nil
			}
			return false, nil
		case tc.Status == domain.TempCodeRevoked:
			reason = domain.VerifyRevoked
			return false, nil
		case tc.Status == domain.TempCodeExpired:
			reason = domain.VerifyExpired
			return false, nil
		case tc.Status == domain.TempCodeUsedUp:
			reason = domain.VerifyUsedUp
			return false, nil
		}

		reason = domain.VerifyOK
		verified = now
		tc.UsedCount++
		tc.LastUsedAt = &verified
		if tc.UsedCount >= tc.MaxUses {
			tc.Status = domain.TempCodeUsedUp
		} else {
			tc.Status = domain.TempCodeActive
		}
		return true, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidPath) {
			s.metrics.TempCodeVerified(string(domain.VerifyNotFound))
			return &VerifyResult{Valid: false, Reason: domain.VerifyNotFound, Message: verifyMessages[domain.VerifyNotFound]}, nil
		}
		return nil, fmt.Errorf("verify temp code: %w", err)
	}

	s.metrics.TempCodeVerified(string(reason))
	result := &VerifyResult{Valid: reason == domain.VerifyOK, Reason: reason, Message: verifyMessages[reason]}
	if !result.Valid {
		return result, nil
	}

	remaining := updated.RemainingUses()
	result.RemainingUses = &remaining

	if s.activity != nil {
		entry := domain.ActivityEntry{
			Name:      "Temp Code: " + code,
			Type:      domain.ActivityTempCodeSuccess,
			Timestamp: verified,
			Code:      code,
		}
		if _, err := s.activity.Append(context.WithoutCancel(ctx), lockID, entry); err != nil {
			s.logger.Error("append temp code activity failed", zap.String("lock_id", lockID), zap.Error(err))
		}
	}

	publishLockEvent(ctx, s.events, s.logger, domain.LockEvent{
		Type:       domain.EventTempCodeVerified,
		LockID:     lockID,
		ActorID:    domain.SystemSubjectPrefix + lockID,
		OccurredAt: verified,
		Attributes: map[string]any{
			"remainingUses": remaining,
			"code":          logger.MaskCode(code),
		},
	})
	return result, nil
}

// Revoke marks a code revoked. Revoking an already revoked code succeeds
// without rewriting it.
func (s *TempCodeService) Revoke(ctx context.Context, in RevokeTempCodeInput) (*domain.TempCode, error) {
	lockID := strings.TrimSpace(in.LockID)
	code := strings.TrimSpace(in.Code)
	if lockID == "" || code == "" {
		return nil, fmt.Errorf("%w: lockId and code are required", ErrValidation)
	}

	revokedBy := "system"
	if in.Actor != nil && in.Actor.SubjectID != "" {
		revokedBy = in.Actor.SubjectID
	}

	var revokedAt time.Time
	updated, err := s.codes.Update(ctx, lockID, code, func(tc *domain.TempCode) (bool, error) {
		if tc.Status == domain.TempCodeRevoked {
			revokedAt = time.Time{}
			return false, nil
		}
		now := s.now()
		tc.Status = domain.TempCodeRevoked
		tc.RevokedAt = &now
		tc.RevokedBy = revokedBy
		revokedAt = now
		return true, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidPath) {
			return nil, ErrTempCodeNotFound
		}
		return nil, fmt.Errorf("revoke temp code: %w", err)
	}

	if !revokedAt.IsZero() {
		s.audit.Record(ctx, in.Meta.Entry(domain.AuditTempCodeRevoked,
			fmt.Sprintf("temporary code %s revoked", logger.MaskCode(code)), in.Actor, lockID))
		publishLockEvent(ctx, s.events, s.logger, domain.LockEvent{
			Type:       domain.EventTempCodeRevoked,
			LockID:     lockID,
			ActorID:    revokedBy,
			OccurredAt: revokedAt,
			Attributes: map[string]any{
				"code": logger.MaskCode(code),
			},
		})
	}
	return updated, nil
}

// ListActive returns the usable codes of a lock ordered by expiry.
func (s *TempCodeService) ListActive(ctx context.Context, lockID string) ([]ActiveTempCode, error) {
	lockID = strings.TrimSpace(lockID)
	if lockID == "" {
		return nil, fmt.Errorf("%w: lockId is required", ErrValidation)
	}

	codes, err := s.codes.List(ctx, lockID)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidPath) {
			return nil, ErrInvalidLockID
		}
		return nil, fmt.Errorf("list temp codes: %w", err)
	}

	now := s.now()
	active := make([]ActiveTempCode, 0, len(codes))
	for _, tc := range codes {
		if !tc.IsUsable(now) {
			continue
		}
		remaining := tc.ExpiresAt.Sub(now)
		active = append(active, ActiveTempCode{
			Code:             tc.Code,
			Description:      tc.Description,
			ExpiresAt:        tc.ExpiresAt,
			ExpireAt:         s.FormatLocal(tc.ExpiresAt),
			RemainingMinutes: int(math.Round(remaining.Minutes())),
			TimeRemaining:    FormatRemaining(remaining),
			UsedCount:        tc.UsedCount,
			MaxUses:          tc.MaxUses,
			CreatedBy:        tc.CreatedBy,
			CreatedFrom:      tc.CreatedFrom,
		})
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].ExpiresAt.Before(active[j].ExpiresAt)
	})
	return active, nil
}
