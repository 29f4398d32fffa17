package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
)

// ExecLauncher starts jobs as child processes and forwards their output to the log.
type ExecLauncher struct {
	logger    *zap.Logger
	env       []string
	waitDelay time.Duration
}

const defaultWaitDelay = 2 * time.Second

// NewExecLauncher constructs an ExecLauncher. env entries are appended to the
// parent environment.
func NewExecLauncher(logger *zap.Logger, env ...string) *ExecLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecLauncher{logger: logger, env: env, waitDelay: defaultWaitDelay}
}

// Launch starts spec. The child is not bound to ctx.
func (l *ExecLauncher) Launch(ctx context.Context, spec port.JobSpec) (port.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Command == "" {
		return nil, errors.New("command is required")
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.WorkDir
	cmd.Env = append(os.Environ(), l.env...)
	cmd.WaitDelay = l.waitDelay
	configureProcessGroup(cmd)

	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdoutW.Close()
		_ = stderrW.Close()
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	proc := &execProcess{cmd: cmd, exited: make(chan struct{})}
	jobLogger := l.logger.With(zap.String("job", spec.Name), zap.Int("pid", cmd.Process.Pid))

	var streams sync.WaitGroup
	streams.Add(2)
	go pipeLines(&streams, stdout, func(line string) { jobLogger.Info(line, zap.String("stream", "stdout")) })
	go pipeLines(&streams, stderr, func(line string) { jobLogger.Warn(line, zap.String("stream", "stderr")) })

	go func() {
		// WaitDelay bounds how long output held open by orphaned grandchildren
		// can keep Wait from returning.
		err := cmd.Wait()
		_ = stdoutW.Close()
		_ = stderrW.Close()
		streams.Wait()
		if errors.Is(err, exec.ErrWaitDelay) {
			jobLogger.Warn("job output still open after exit")
			err = nil
		}
		proc.err = err
		close(proc.exited)
	}()

	return proc, nil
}

func pipeLines(wg *sync.WaitGroup, r io.Reader, emit func(string)) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		emit(scanner.Text())
	}
	// Keep draining after an oversized line so the writer never blocks.
	_, _ = io.Copy(io.Discard, r)
}

type execProcess struct {
	cmd    *exec.Cmd
	exited chan struct{}
	err    error
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	<-p.exited
	return p.err
}

// Stop sends SIGTERM to the job's process group and escalates to SIGKILL when
// ctx ends first.
func (p *execProcess) Stop(ctx context.Context) error {
	select {
	case <-p.exited:
		return nil
	default:
	}

	if err := signalGroup(p.cmd.Process, syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal process group: %w", err)
	}

	select {
	case <-p.exited:
		return nil
	case <-ctx.Done():
		if err := signalGroup(p.cmd.Process, syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill process group: %w", err)
		}
		return ctx.Err()
	}
}

var _ port.ProcessLauncher = (*ExecLauncher)(nil)
