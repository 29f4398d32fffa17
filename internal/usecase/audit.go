package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/domain"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/telemetry"
)

const auditWriteTimeout = 5 * time.Second

// RequestMeta carries the HTTP attributes copied into audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
	URL       string
	Method    string
}

// Entry builds an audit entry for the request. identity may be nil.
func (m RequestMeta) Entry(eventType domain.AuditEventType, message string, identity *domain.Identity, lockID string) domain.AuditEntry {
	entry := domain.AuditEntry{
		EventType: eventType,
		Message:   message,
		IP:        m.IP,
		UserAgent: m.UserAgent,
		URL:       m.URL,
		Method:    m.Method,
		LockID:    lockID,
	}
	if identity != nil {
		entry.UserID = identity.SubjectID
		entry.UserRole = string(identity.Role)
		if entry.LockID == "" {
			entry.LockID = identity.LockID
		}
	}
	return entry
}

// ConsoleAuditSink writes audit entries to the structured log.
type ConsoleAuditSink struct {
	logger *zap.Logger
}

// NewConsoleAuditSink constructs a ConsoleAuditSink.
func NewConsoleAuditSink(log *zap.Logger) *ConsoleAuditSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConsoleAuditSink{logger: log}
}

// WriteAudit implements port.AuditSink.
func (s *ConsoleAuditSink) WriteAudit(_ context.Context, entry domain.AuditEntry) error {
	s.logger.Info("[AUDIT] "+string(entry.EventType),
		zap.String("event_type", string(entry.EventType)),
		zap.String("message", entry.Message),
		zap.String("user_id", entry.UserID),
		zap.String("user_role", entry.UserRole),
		zap.String("ip", entry.IP),
		zap.String("user_agent", entry.UserAgent),
		zap.String("method", entry.Method),
		zap.String("url", entry.URL),
		zap.String("lock_id", entry.LockID),
		zap.Time("timestamp", entry.Timestamp),
	)
	return nil
}

// StoreAuditSink appends audit entries to audit_logs.
type StoreAuditSink struct {
	repo port.AuditLogRepository
}

// NewStoreAuditSink constructs a StoreAuditSink.
func NewStoreAuditSink(repo port.AuditLogRepository) *StoreAuditSink {
	return &StoreAuditSink{repo: repo}
}

// WriteAudit implements port.AuditSink.
func (s *StoreAuditSink) WriteAudit(ctx context.Context, entry domain.AuditEntry) error {
	if _, err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("persist audit entry: %w", err)
	}
	return nil
}

// AuditService fans audit entries out to the sinks selected by the audit mode.
// Recording never fails the caller; sink errors are logged.
type AuditService struct {
	mode    domain.AuditMode
	sinks   []port.AuditSink
	repo    port.AuditLogRepository
	logger  *zap.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewAuditService wires sinks for mode. repo is required only for persistent modes.
func NewAuditService(mode domain.AuditMode, repo port.AuditLogRepository, log *zap.Logger, metrics *telemetry.Metrics) *AuditService {
	if log == nil {
		log = zap.NewNop()
	}

	service := &AuditService{
		mode:    mode,
		repo:    repo,
		logger:  log,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}

	switch {
	case mode == domain.AuditModeOff:
	case mode.Persistent() && repo != nil:
		service.sinks = []port.AuditSink{NewConsoleAuditSink(log), NewStoreAuditSink(repo)}
	default:
		if mode.Persistent() {
			log.Warn("audit persistence requested without a repository; falling back to console", zap.String("mode", string(mode)))
		}
		service.sinks = []port.AuditSink{NewConsoleAuditSink(log)}
	}
	return service
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuditService) WithClock(clock func() time.Time) *AuditService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithSinks replaces the configured sinks.
func (s *AuditService) WithSinks(sinks ...port.AuditSink) *AuditService {
	s.sinks = sinks
	return s
}

// Mode returns the configured audit mode.
func (s *AuditService) Mode() domain.AuditMode {
	if s == nil {
		return domain.AuditModeOff
	}
	return s.mode
}

// Persistent reports whether entries reach the document store.
func (s *AuditService) Persistent() bool {
	return s != nil && s.mode.Persistent() && s.repo != nil
}

// Record stamps and dispatches entry. A cancelled request context does not
// drop the entry.
func (s *AuditService) Record(ctx context.Context, entry domain.AuditEntry) {
	if s == nil || len(s.sinks) == 0 {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	s.metrics.AuditRecorded(string(entry.EventType))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	for _, sink := range s.sinks {
		if err := sink.WriteAudit(writeCtx, entry); err != nil {
			s.logger.Warn("audit sink failed",
				zap.String("event_type", string(entry.EventType)),
				zap.Error(err),
			)
		}
	}
}

// List returns up to limit persisted entries, newest first.
func (s *AuditService) List(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if !s.Persistent() {
		return []domain.AuditEntry{}, nil
	}
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
