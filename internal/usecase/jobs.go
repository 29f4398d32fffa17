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
	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/telemetry"
)

const defaultJobStopTimeout = 10 * time.Second

var (
	// ErrUnknownJob indicates the job name is not configured.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobNotConfigured indicates the job has no command.
	ErrJobNotConfigured = errors.New("job command not configured")
)

type jobEntry struct {
	spec   port.JobSpec
	status domain.JobStatus
	proc   port.Process
	done   chan struct{}
}

// JobHandle controls one supervised job.
type JobHandle struct {
	supervisor *JobSupervisor
	name       string
}

// Name returns the job name.
func (h *JobHandle) Name() string {
	return h.name
}

// Stop stops the job and waits for it to exit.
func (h *JobHandle) Stop(ctx context.Context) (domain.JobStatus, error) {
	return h.supervisor.Stop(ctx, h.name)
}

// Status returns the current snapshot.
func (h *JobHandle) Status() domain.JobStatus {
	status, _ := h.supervisor.Status(h.name)
	return status
}

// JobSupervisor starts and stops the recognizer and trainer processes and
// tracks their state machine.
type JobSupervisor struct {
	mu          sync.Mutex
	jobs        map[string]*jobEntry
	launcher    port.ProcessLauncher
	stopTimeout time.Duration
	audit       *AuditService
	metrics     *telemetry.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewJobSupervisor registers specs. Specs without a command are kept so their
// status can be reported, but cannot be started.
func NewJobSupervisor(specs []port.JobSpec, launcher port.ProcessLauncher, stopTimeout time.Duration, audit *AuditService, metrics *telemetry.Metrics, logger *zap.Logger) *JobSupervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stopTimeout <= 0 {
		stopTimeout = defaultJobStopTimeout
	}

	jobs := make(map[string]*jobEntry, len(specs))
	for _, spec := range specs {
		jobs[spec.Name] = &jobEntry{
			spec:   spec,
			status: domain.JobStatus{Name: spec.Name, State: domain.JobIdle},
		}
	}

	return &JobSupervisor{
		jobs:        jobs,
		launcher:    launcher,
		stopTimeout: stopTimeout,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *JobSupervisor) WithClock(clock func() time.Time) *JobSupervisor {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Names lists the configured jobs.
func (s *JobSupervisor) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *JobSupervisor) transitionLocked(entry *jobEntry, to domain.JobState) error {
	from := entry.status.State
	if !from.CanTransition(to) {
		return &domain.InvalidTransitionError{Job: entry.spec.Name, From: from, To: to}
	}
	entry.status.State = to
	s.metrics.JobTransitioned(entry.spec.Name, string(to))
	s.logger.Info("job state changed",
		zap.String("job", entry.spec.Name),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

// Start launches the job. The process outlives ctx; ctx only bounds the launch.
func (s *JobSupervisor) Start(ctx context.Context, name string, actor *domain.Identity, meta RequestMeta) (*JobHandle, error) {
	s.mu.Lock()
	entry, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownJob
	}
	if entry.spec.Command == "" || s.launcher == nil {
		s.mu.Unlock()
		return nil, ErrJobNotConfigured
	}
	if err := s.transitionLocked(entry, domain.JobStarting); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	entry.status.LastError = ""
	entry.status.PID = 0
	spec := entry.spec
	s.mu.Unlock()

	proc, err := s.launcher.Launch(ctx, spec)

	s.mu.Lock()
	if err != nil {
		_ = s.transitionLocked(entry, domain.JobFailed)
		entry.status.LastError = err.Error()
		now := s.now()
		entry.status.StoppedAt = &now
		s.mu.Unlock()
		return nil, fmt.Errorf("launch %s: %w", name, err)
	}

	now := s.now()
	entry.proc = proc
	entry.done = make(chan struct{})
	entry.status.PID = proc.PID()
	entry.status.StartedAt = &now
	entry.status.StoppedAt = nil
	_ = s.transitionLocked(entry, domain.JobRunning)
	done := entry.done
	s.mu.Unlock()

	go s.watch(entry, proc, done)

	s.audit.Record(ctx, meta.Entry(domain.AuditServiceToggled, fmt.Sprintf("job %s started", name), actor, ""))
	return &JobHandle{supervisor: s, name: name}, nil
}

func (s *JobSupervisor) watch(entry *jobEntry, proc port.Process, done chan struct{}) {
	err := proc.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(done)

	if entry.proc != proc {
		return
	}
	now := s.now()
	entry.status.StoppedAt = &now
	entry.proc = nil

	switch {
	case entry.status.State == domain.JobStopping:
		_ = s.transitionLocked(entry, domain.JobStopped)
	case err != nil:
		entry.status.LastError = err.Error()
		_ = s.transitionLocked(entry, domain.JobFailed)
		s.logger.Warn("job exited with error", zap.String("job", entry.spec.Name), zap.Error(err))
	default:
		_ = s.transitionLocked(entry, domain.JobStopped)
	}
}

// Stop asks the job to exit and waits up to the stop timeout.
func (s *JobSupervisor) Stop(ctx context.Context, name string) (domain.JobStatus, error) {
	return s.stop(ctx, name, nil, RequestMeta{})
}

// StopAs is Stop recorded in the audit log under actor.
func (s *JobSupervisor) StopAs(ctx context.Context, name string, actor *domain.Identity, meta RequestMeta) (domain.JobStatus, error) {
	return s.stop(ctx, name, actor, meta)
}

func (s *JobSupervisor) stop(ctx context.Context, name string, actor *domain.Identity, meta RequestMeta) (domain.JobStatus, error) {
	s.mu.Lock()
	entry, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return domain.JobStatus{}, ErrUnknownJob
	}
	if err := s.transitionLocked(entry, domain.JobStopping); err != nil {
		status := entry.status
		s.mu.Unlock()
		return status, err
	}
	proc, done := entry.proc, entry.done
	s.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.stopTimeout)
	defer cancel()

	if err := proc.Stop(stopCtx); err != nil {
		s.logger.Warn("stop job failed", zap.String("job", name), zap.Error(err))
	}

	select {
	case <-done:
	case <-stopCtx.Done():
		s.mu.Lock()
		if entry.proc == proc {
			entry.status.LastError = "process did not exit before the stop timeout"
			_ = s.transitionLocked(entry, domain.JobFailed)
			entry.proc = nil
		}
		s.mu.Unlock()
	}

	if actor != nil {
		s.audit.Record(ctx, meta.Entry(domain.AuditServiceToggled, fmt.Sprintf("job %s stopped", name), actor, ""))
	}

	status, _ := s.Status(name)
	return status, nil
}

// Status returns a snapshot of the job.
func (s *JobSupervisor) Status(name string) (domain.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.jobs[name]
	if !ok {
		return domain.JobStatus{}, ErrUnknownJob
	}
	return entry.status, nil
}

// Shutdown stops every running job.
func (s *JobSupervisor) Shutdown(ctx context.Context) {
	for _, name := range s.Names() {
		status, err := s.Status(name)
		if err != nil || status.State != domain.JobRunning {
			continue
		}
		if _, err := s.Stop(ctx, name); err != nil {
			s.logger.Warn("shutdown job failed", zap.String("job", name), zap.Error(err))
		}
	}
}
