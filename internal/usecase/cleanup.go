package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/config"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/telemetry"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/repository"
)

const (
	defaultActivityRetention = 30 * 24 * time.Hour
	defaultActivityCap       = 200
	defaultAuditRetention    = 30 * 24 * time.Hour
	defaultAuditCap          = 1000
	defaultCleanupHour       = 2
	defaultCleanupInterval   = 24 * time.Hour
)

// CleanupPolicy holds the retention limits of one sweep.
type CleanupPolicy struct {
	ActivityRetention  time.Duration
	ActivityMaxPerLock int
	AuditRetention     time.Duration
	AuditMaxEntries    int
}

// CleanupPolicyFromConfig applies defaults to the configured limits.
func CleanupPolicyFromConfig(cfg config.CleanupSettings) CleanupPolicy {
	p := CleanupPolicy{
		ActivityRetention:  cfg.ActivityRetention,
		ActivityMaxPerLock: cfg.ActivityMaxPerLock,
		AuditRetention:     cfg.AuditRetention,
		AuditMaxEntries:    cfg.AuditMaxEntries,
	}
	if p.ActivityRetention <= 0 {
		p.ActivityRetention = defaultActivityRetention
	}
	if p.ActivityMaxPerLock <= 0 {
		p.ActivityMaxPerLock = defaultActivityCap
	}
	if p.AuditRetention <= 0 {
		p.AuditRetention = defaultAuditRetention
	}
	if p.AuditMaxEntries <= 0 {
		p.AuditMaxEntries = defaultAuditCap
	}
	return p
}

// LockCleanupError records a lock whose sweep failed.
type LockCleanupError struct {
	LockID string `json:"lockId"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// CleanupReport summarises one sweep.
type CleanupReport struct {
	StartedAt        time.Time          `json:"startedAt"`
	FinishedAt       time.Time          `json:"finishedAt"`
	LocksScanned     int                `json:"locksScanned"`
	TempCodesDeleted int                `json:"tempCodesDeleted"`
	ActivityExpired  int                `json:"activityExpired"`
	ActivityCapped   int                `json:"activityCapped"`
	AuditExpired     int                `json:"auditExpired"`
	AuditCapped      int                `json:"auditCapped"`
	AuditSkipped     bool               `json:"auditSkipped"`
	Failures         []LockCleanupError `json:"failures,omitempty"`
}

// CleanupService sweeps expired codes and prunes logs.
type CleanupService struct {
	locks    port.LockRepository
	codes    port.TempCodeRepository
	activity port.ActivityLogRepository
	audit    port.AuditLogRepository
	persist  bool
	policy   CleanupPolicy
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
}

// NewCleanupService constructs a CleanupService. Audit pruning runs only when
// auditPersistent is true and audit is non-nil.
func NewCleanupService(
	locks port.LockRepository,
	codes port.TempCodeRepository,
	activity port.ActivityLogRepository,
	audit port.AuditLogRepository,
	auditPersistent bool,
	policy CleanupPolicy,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *CleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupService{
		locks:    locks,
		codes:    codes,
		activity: activity,
		audit:    audit,
		persist:  auditPersistent && audit != nil,
		policy:   policy,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *CleanupService) WithClock(clock func() time.Time) *CleanupService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// RunOnce performs a full sweep. Only failing to enumerate locks aborts it;
// per-lock failures are collected in the report. Concurrent calls are serialised.
func (s *CleanupService) RunOnce(ctx context.Context) (*CleanupReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	report := &CleanupReport{StartedAt: now}

	lockIDs, err := s.locks.KnownLockIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate locks: %w", err)
	}
	report.LocksScanned = len(lockIDs)

	for _, lockID := range lockIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.sweepLock(ctx, lockID, now, report)
	}

	if s.persist {
		s.pruneAudit(ctx, now, report)
	} else {
		report.AuditSkipped = true
	}

	report.FinishedAt = s.now()
	s.metrics.CleanupDeleted("temp_code", report.TempCodesDeleted)
	s.metrics.CleanupDeleted("activity", report.ActivityExpired+report.ActivityCapped)
	s.metrics.CleanupDeleted("audit", report.AuditExpired+report.AuditCapped)

	s.logger.Info("cleanup sweep finished",
		zap.Int("locks", report.LocksScanned),
		zap.Int("temp_codes_deleted", report.TempCodesDeleted),
		zap.Int("activity_expired", report.ActivityExpired),
		zap.Int("activity_capped", report.ActivityCapped),
		zap.Int("audit_expired", report.AuditExpired),
		zap.Int("audit_capped", report.AuditCapped),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (s *CleanupService) sweepLock(ctx context.Context, lockID string, now time.Time, report *CleanupReport) {
	fail := func(stage string, err error) {
		s.logger.Warn("cleanup failed for lock", zap.String("lock_id", lockID), zap.String("stage", stage), zap.Error(err))
		report.Failures = append(report.Failures, LockCleanupError{LockID: lockID, Stage: stage, Error: err.Error()})
	}

	codes, err := s.codes.List(ctx, lockID)
	if err != nil {
		fail("temp_codes", err)
	} else {
		for _, tc := range codes {
			if !tc.IsPurgeable(now) {
				continue
			}
			if err := s.codes.Delete(ctx, lockID, tc.Code); err != nil && !errors.Is(err, repository.ErrNotFound) {
				fail("temp_codes", err)
				continue
			}
			report.TempCodesDeleted++
		}
	}

	entries, err := s.activity.List(ctx, lockID)
	if err != nil {
		fail("activity", err)
		return
	}

	cutoff := now.Add(-s.policy.ActivityRetention)
	kept := make([]domain.ActivityEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Timestamp.Before(cutoff) {
			if err := s.activity.Delete(ctx, lockID, entry.ID); err != nil {
				fail("activity", err)
				continue
			}
			report.ActivityExpired++
			continue
		}
		kept = append(kept, entry)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.After(kept[j].Timestamp)
	})
	for _, entry := range overflow(kept, s.policy.ActivityMaxPerLock) {
		if err := s.activity.Delete(ctx, lockID, entry.ID); err != nil {
			fail("activity", err)
			continue
		}
		report.ActivityCapped++
	}
}

func (s *CleanupService) pruneAudit(ctx context.Context, now time.Time, report *CleanupReport) {
	entries, err := s.audit.List(ctx)
	if err != nil {
		s.logger.Warn("audit cleanup failed", zap.Error(err))
		report.Failures = append(report.Failures, LockCleanupError{Stage: "audit", Error: err.Error()})
		return
	}

	cutoff := now.Add(-s.policy.AuditRetention)
	kept := make([]domain.AuditEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Timestamp.Before(cutoff) {
			if err := s.audit.Delete(ctx, entry.ID); err != nil {
				s.logger.Warn("delete audit entry failed", zap.String("entry_id", entry.ID), zap.Error(err))
				continue
			}
			report.AuditExpired++
			continue
		}
		kept = append(kept, entry)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.After(kept[j].Timestamp)
	})
	for _, entry := range overflow(kept, s.policy.AuditMaxEntries) {
		if err := s.audit.Delete(ctx, entry.ID); err != nil {
			s.logger.Warn("delete audit entry failed", zap.String("entry_id", entry.ID), zap.Error(err))
			continue
		}
		report.AuditCapped++
	}
}

// overflow returns the items past limit in a newest-first slice.
func overflow[T any](items []T, limit int) []T {
	if limit <= 0 || len(items) <= limit {
		return nil
	}
	return items[limit:]
}

// NextRun returns the next occurrence of hour:00 in loc strictly after now.
func NextRun(now time.Time, hour int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}

// CleanupScheduler runs the cleanup sweep at a fixed wall-clock hour and then
// at a fixed interval.
type CleanupScheduler struct {
	service  *CleanupService
	hour     int
	interval time.Duration
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCleanupScheduler constructs a scheduler for service.
func NewCleanupScheduler(service *CleanupService, hour int, interval time.Duration, loc *time.Location, logger *zap.Logger) *CleanupScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hour < 0 || hour > 23 {
		hour = defaultCleanupHour
	}
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	if loc == nil {
		loc = time.Local
	}
	return &CleanupScheduler{
		service:  service,
		hour:     hour,
		interval: interval,
		location: loc,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
	}
}

// WithClock overrides the clock and timer source for deterministic tests.
func (s *CleanupScheduler) WithClock(now func() time.Time, after func(time.Duration) <-chan time.Time) *CleanupScheduler {
	if now != nil {
		s.now = now
	}
	if after != nil {
		s.after = after
	}
	return s
}

// Start launches the scheduling loop in the background. Calling Start on a
// running scheduler is a no-op.
func (s *CleanupScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		s.Run(runCtx)
	}(s.done)
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("cleanup scheduler stopped")
}

// Run blocks until ctx is cancelled, sweeping at the scheduled times.
func (s *CleanupScheduler) Run(ctx context.Context) {
	next := NextRun(s.now(), s.hour, s.location)
	s.logger.Info("cleanup scheduled", zap.Time("next_run", next))

	wait := next.Sub(s.now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
		}

		s.runSafely(ctx)
		wait = s.interval
	}
}

func (s *CleanupScheduler) runSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cleanup sweep panicked", zap.Any("panic", r))
		}
	}()

	if _, err := s.service.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("cleanup sweep failed", zap.Error(err))
	}
}
