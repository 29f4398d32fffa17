package port

import "context"

// JobSpec describes an external process the supervisor may launch.
type JobSpec struct {
	Name    string
	Command string
	Args    []string
	WorkDir string
}

// Process is a launched external job.
type Process interface {
	PID() int
	// Wait blocks until the process exits and returns its exit error.
	Wait() error
	// Stop asks the process to exit and kills it once ctx is done.
	Stop(ctx context.Context) error
}

// ProcessLauncher starts external jobs.
type ProcessLauncher interface {
	Launch(ctx context.Context, spec JobSpec) (Process, error)
}
