package domain

import (
	"fmt"
	"time"
)

// JobState is the lifecycle state of a supervised external job.
type JobState string

const (
	JobIdle     JobState = "idle"
	JobStarting JobState = "starting"
	JobRunning  JobState = "running"
	JobStopping JobState = "stopping"
	JobStopped  JobState = "stopped"
	JobFailed   JobState = "failed"
)

var jobTransitions = map[JobState][]JobState{
	JobIdle:     {JobStarting},
	JobStarting: {JobRunning, JobFailed},
	JobRunning:  {JobStopping, JobStopped, JobFailed},
	JobStopping: {JobStopped, JobFailed},
	JobStopped:  {JobStarting},
	JobFailed:   {JobStarting},
}

// CanTransition reports whether moving from s to next is legal.
func (s JobState) CanTransition(next JobState) bool {
	for _, candidate := range jobTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Active reports whether the job occupies its slot.
func (s JobState) Active() bool {
	return s == JobStarting || s == JobRunning || s == JobStopping
}

// InvalidTransitionError describes a rejected state change.
type InvalidTransitionError struct {
	Job  string
	From JobState
	To   JobState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("job %s: cannot move from %s to %s", e.Job, e.From, e.To)
}

// JobStatus is a snapshot of a supervised job.
type JobStatus struct {
	Name      string     `json:"name"`
	State     JobState   `json:"state"`
	PID       int        `json:"pid,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}
