package process

import (
	"context"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/core/port"
)

func requireShell(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return path
}

func TestExecLauncherRunsToCompletion(t *testing.T) {
	sh := requireShell(t)
	launcher := NewExecLauncher(zaptest.NewLogger(t))

	proc, err := launcher.Launch(context.Background(), port.JobSpec{Name: "echo", Command: sh, Args: []string{"-c", "echo ready"}})
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	if proc.PID() <= 0 {
		t.Fatalf("expected a pid, got %d", proc.PID())
	}
	if err := proc.Wait(); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
}

func TestExecLauncherStopTerminatesLongRunningProcess(t *testing.T) {
	sh := requireShell(t)
	launcher := NewExecLauncher(zaptest.NewLogger(t))

	proc, err := launcher.Launch(context.Background(), port.JobSpec{Name: "sleep", Command: sh, Args: []string{"-c", "sleep 30"}})
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := proc.Stop(ctx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = proc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Stop")
	}
}

func TestExecLauncherStopReachesGrandchildren(t *testing.T) {
	sh := requireShell(t)
	launcher := NewExecLauncher(zaptest.NewLogger(t))

	// The backgrounded sleep inherits the output pipes of the shell.
	proc, err := launcher.Launch(context.Background(), port.JobSpec{Name: "worker", Command: sh, Args: []string{"-c", "sleep 30 & wait"}})
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	started := time.Now()
	if err := proc.Stop(ctx); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 3*time.Second {
		t.Fatalf("Stop took %v, expected the whole group to exit on SIGTERM", elapsed)
	}
}

func TestExecLauncherWaitIgnoresOrphanedOutput(t *testing.T) {
	sh := requireShell(t)
	launcher := NewExecLauncher(zaptest.NewLogger(t))
	launcher.waitDelay = 100 * time.Millisecond

	proc, err := launcher.Launch(context.Background(), port.JobSpec{Name: "detached", Command: sh, Args: []string{"-c", "sleep 30 & echo started"}})
	if err != nil {
		t.Fatalf("Launch returned error: %v", err)
	}
	t.Cleanup(func() {
		_ = signalGroup(proc.(*execProcess).cmd.Process, syscall.SIGKILL)
	})

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait blocked on output held by a grandchild")
	}
}

func TestExecLauncherRejectsMissingCommand(t *testing.T) {
	launcher := NewExecLauncher(nil)
	if _, err := launcher.Launch(context.Background(), port.JobSpec{Name: "none"}); err == nil {
		t.Fatal("expected error for empty command")
	}
}
