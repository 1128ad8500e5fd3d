package worker

import (
	"context"
	"log"
	"sync"

	"github.com/voicemirror/api/internal/model"
)

// Dispatcher bounds how many clone jobs run at once. Accepted jobs wait in
// a buffered queue; a fixed pool of goroutines drains it. This replaces
// spawning one unbounded goroutine per submission.
type Dispatcher struct {
	worker      *CloneWorker
	queue       chan CloneJob
	concurrency int
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given pool and queue sizes.
func NewDispatcher(worker *CloneWorker, concurrency, queueSize int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		worker:      worker,
		queue:       make(chan CloneJob, queueSize),
		concurrency: concurrency,
		done:        make(chan struct{}),
	}
}

// Start launches the worker pool. ctx cancellation stops workers after
// their in-flight job; there is no in-band cancellation of a running job.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-d.done:
					return
				case job := <-d.queue:
					d.worker.Process(ctx, job)
				}
			}
		}()
	}
	log.Printf("Dispatcher started with %d workers (queue %d)", d.concurrency, cap(d.queue))
}

// Dispatch hands a job to the pool without ever blocking the caller. When
// the queue is full the handoff completes from a shed goroutine, so the
// submission path stays fast while the job waits its turn. A shed handoff
// abandoned by Stop fails the job instead of parking forever.
func (d *Dispatcher) Dispatch(job CloneJob) {
	select {
	case d.queue <- job:
		return
	default:
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case d.queue <- job:
		case <-d.done:
			d.abandon(job)
		}
	}()
}

// Stop signals workers and pending handoffs to finish, waits for them, and
// fails whatever is still queued. The queue channel is never closed: shed
// goroutines may be mid-send when Stop runs.
func (d *Dispatcher) Stop() {
	close(d.done)
	d.wg.Wait()

	for {
		select {
		case job := <-d.queue:
			d.abandon(job)
		default:
			return
		}
	}
}

// abandon moves a never-started job to its terminal error state so polling
// clients are not left watching a pending job until eviction.
func (d *Dispatcher) abandon(job CloneJob) {
	log.Printf("Dropping clone job %s: dispatcher stopped", job.JobID)
	d.worker.registry.UpdateStep(job.JobID, model.StepPreparing, model.StepError, "")
	d.worker.registry.SetError(job.JobID, "server shut down before the job started")
}
