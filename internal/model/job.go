package model

import "time"

// JobStatus is the overall lifecycle state of a clone job.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// IsTerminal reports whether no further mutation may occur.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// StepStatus is the state of a single progress step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepActive  StepStatus = "active"
	StepDone    StepStatus = "done"
	StepError   StepStatus = "error"
)

// Step indices, in execution order.
const (
	StepPreparing = iota
	StepUploadingReference
	StepWaitingForServer
	StepLoadingModel
	StepGeneratingAudio
	StepFinalizing

	StepCount
)

// Step is one of the six fixed progress checkpoints shown to the client.
type Step struct {
	Label  string     `json:"label"`
	Sub    string     `json:"sub"`
	Status StepStatus `json:"status"`
}

// Job is a voice-clone run tracked by the registry. It is created by the
// submission handler, mutated only by its runner, and read by status polls.
type Job struct {
	ID       string    `json:"id"`
	Status   JobStatus `json:"status"`
	Steps    []Step    `json:"steps"`
	Error    *string   `json:"error"`
	AudioURL *string   `json:"audio_url"`
	Created  time.Time `json:"-"`
}

// stepTemplate is the initial state of every job's step list.
var stepTemplate = [StepCount]Step{
	{Label: "Preparing", Sub: "Validating inputs", Status: StepPending},
	{Label: "Uploading reference", Sub: "Saving audio", Status: StepPending},
	{Label: "Waiting for server", Sub: "Queued", Status: StepPending},
	{Label: "Loading model", Sub: "First run may be slow", Status: StepPending},
	{Label: "Generating audio", Sub: "Synthesizing speech", Status: StepPending},
	{Label: "Finalizing", Sub: "Preparing playback", Status: StepPending},
}

// NewSteps returns a fresh step list for a new job.
func NewSteps() []Step {
	steps := make([]Step, StepCount)
	copy(steps, stepTemplate[:])
	return steps
}
