// Package registry keeps the in-memory table of clone jobs. It is the only
// shared mutable state between the HTTP handlers and the background runners.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicemirror/api/internal/model"
)

const (
	DefaultTTL     = time.Hour
	DefaultMaxJobs = 500
)

// Registry is a concurrency-safe job table with TTL and size-bounded
// eviction. Jobs do not survive a process restart.
type Registry struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	ttl     time.Duration
	maxJobs int
	now     func() time.Time
}

func New(ttl time.Duration, maxJobs int) *Registry {
	return NewWithClock(ttl, maxJobs, time.Now)
}

// NewWithClock is New with an injected time source, so eviction behavior
// can be driven without real waiting.
func NewWithClock(ttl time.Duration, maxJobs int, now func() time.Time) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	return &Registry{
		jobs:    make(map[string]*model.Job),
		ttl:     ttl,
		maxJobs: maxJobs,
		now:     now,
	}
}

// Create registers a new pending job and returns its id.
func (r *Registry) Create() string {
	job := &model.Job{
		ID:      uuid.New().String(),
		Status:  model.JobStatusPending,
		Steps:   model.NewSteps(),
		Created: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return job.ID
}

// Get returns a snapshot of the job, or nil if the id is unknown. The
// snapshot is a deep copy so callers never observe a mid-mutation state.
func (r *Registry) Get(id string) *model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil
	}
	return snapshot(job)
}

// UpdateStep sets the status of one step. An empty sub keeps the existing
// detail text. Unknown ids are ignored: the job may have been evicted while
// its runner was still executing.
func (r *Registry) UpdateStep(id string, index int, status model.StepStatus, sub string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || index < 0 || index >= len(job.Steps) {
		return
	}
	job.Steps[index].Status = status
	if sub != "" {
		job.Steps[index].Sub = sub
	}
}

// SetStatus updates the overall job status.
func (r *Registry) SetStatus(id string, status model.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[id]; ok {
		job.Status = status
	}
}

// SetError moves the job to its terminal error state with a message.
func (r *Registry) SetError(id string, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[id]; ok {
		job.Status = model.JobStatusError
		job.Error = &msg
	}
}

// SetAudioURL records the produced artifact's locator.
func (r *Registry) SetAudioURL(id string, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[id]; ok {
		job.AudioURL = &url
	}
}

// Evict removes jobs past their TTL regardless of status, then trims the
// oldest terminal jobs when the table exceeds its cap. Running jobs are
// never evicted for size pressure. Called opportunistically from the
// submission and status paths, not from a timer.
func (r *Registry) Evict() {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, job := range r.jobs {
		if now.Sub(job.Created) > r.ttl {
			delete(r.jobs, id)
		}
	}

	overflow := len(r.jobs) - r.maxJobs
	if overflow <= 0 {
		return
	}

	terminal := make([]*model.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if job.Status.IsTerminal() {
			terminal = append(terminal, job)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].Created.Before(terminal[j].Created)
	})
	if overflow > len(terminal) {
		overflow = len(terminal)
	}
	for _, job := range terminal[:overflow] {
		delete(r.jobs, job.ID)
	}
}

// Len reports the current number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func snapshot(job *model.Job) *model.Job {
	cp := *job
	cp.Steps = make([]model.Step, len(job.Steps))
	copy(cp.Steps, job.Steps)
	if job.Error != nil {
		msg := *job.Error
		cp.Error = &msg
	}
	if job.AudioURL != nil {
		url := *job.AudioURL
		cp.AudioURL = &url
	}
	return &cp
}
