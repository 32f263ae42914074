package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rifflux/rifflux/internal/errs"
)

// retryDelays is the fixed backoff schedule for Transient failures: 1s,
// 2s, 4s (at most 3 retries).
var retryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// MaxRetries is the retry ceiling; the schedule above has one entry per
// retry attempt.
var MaxRetries = len(retryDelays)

// Func is the unit of work a Queue runs. It receives a context that is
// cancelled if Shutdown's timeout elapses while the job is running.
type Func func(ctx context.Context) (any, error)

// Queue is a single-worker FIFO job queue with classified retry. Jobs run
// strictly in submission order; only one job executes at a time.
type Queue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	jobs        map[string]*Job
	order       []string
	pending     []pendingJob
	shutdown    bool
	workerDone  chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
}

type pendingJob struct {
	id string
	fn Func
}

// New starts a Queue and its single background worker goroutine.
func New() *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		jobs:       map[string]*Job{},
		workerDone: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Submit enqueues fn and returns its job id. It returns an error if the
// queue has begun shutting down.
func (q *Queue) Submit(fn Func) (string, error) {
	return q.SubmitWithKey("", fn)
}

// SubmitWithKey enqueues fn tagged with pathKey, the normalized set of
// source paths the job covers. Callers use pathKey to find a matching
// queued or running job (see Queue.HasMatchingKey) before submitting a
// duplicate. An empty pathKey never matches another job.
func (q *Queue) SubmitWithKey(pathKey string, fn Func) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shutdown {
		return "", errs.New(errs.Internal, "queue is shutting down")
	}

	id := uuid.NewString()
	now := time.Now()
	q.jobs[id] = &Job{ID: id, PathKey: pathKey, Status: StatusQueued, CreatedAt: now, UpdatedAt: now}
	q.order = append(q.order, id)
	q.pending = append(q.pending, pendingJob{id: id, fn: fn})
	q.cond.Signal()
	return id, nil
}

// HasMatchingKey reports whether a queued, running, or retry-waiting job
// carries the given non-empty pathKey.
func (q *Queue) HasMatchingKey(pathKey string) bool {
	if pathKey == "" {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		j := q.jobs[id]
		if j.PathKey != pathKey {
			continue
		}
		switch j.Status {
		case StatusQueued, StatusRunning, StatusRetryWait:
			return true
		}
	}
	return false
}

// Status returns a snapshot of job id's current state, or NotFound.
func (q *Queue) Status(id string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return Job{}, errs.New(errs.NotFound, "job not found: "+id)
	}
	return j.snapshot(), nil
}

// List returns every known job, oldest submission first.
func (q *Queue) List() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.jobs[id].snapshot())
	}
	return out
}

// Shutdown stops accepting new submissions, fails every still-queued job,
// and waits up to timeout for the in-flight job (if any) to finish
// naturally before cancelling its context.
func (q *Queue) Shutdown(timeout time.Duration) error {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()
		return nil
	}
	q.shutdown = true

	for _, p := range q.pending {
		j := q.jobs[p.id]
		j.Status = StatusFailed
		// There's no dedicated Kind for shutdown cancellation; Internal
		// is the closest of the six, and the message carries the real
		// reason for anything inspecting Err.
		j.LastErr = errs.Internal
		j.Err = errs.New(errs.Internal, "job cancelled by shutdown")
		j.UpdatedAt = time.Now()
	}
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.workerDone:
	case <-timer.C:
		q.cancel()
		<-q.workerDone
	}
	return nil
}

// run is the single worker loop: pop the oldest pending job, execute it
// with retry, repeat until shutdown with nothing left pending.
func (q *Queue) run() {
	defer close(q.workerDone)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.shutdown {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		p := q.pending[0]
		q.pending = q.pending[1:]
		j := q.jobs[p.id]
		j.Status = StatusRunning
		j.UpdatedAt = time.Now()
		q.mu.Unlock()

		q.execute(j, p.fn)
	}
}

// execute runs fn against job j, retrying on Transient failures per the
// fixed backoff schedule, and records the terminal state.
func (q *Queue) execute(j *Job, fn Func) {
	for attempt := 0; ; attempt++ {
		result, err := fn(q.ctx)
		if err == nil {
			q.mu.Lock()
			j.Status = StatusCompleted
			j.Result = result
			j.UpdatedAt = time.Now()
			q.mu.Unlock()
			return
		}

		kind := errs.Of(err)
		q.mu.Lock()
		j.LastErr = kind
		j.Err = err
		q.mu.Unlock()

		if kind != errs.Transient || attempt >= MaxRetries {
			q.mu.Lock()
			j.Status = StatusFailed
			j.UpdatedAt = time.Now()
			q.mu.Unlock()
			return
		}

		q.mu.Lock()
		j.Status = StatusRetryWait
		j.Retries++
		j.UpdatedAt = time.Now()
		q.mu.Unlock()

		select {
		case <-time.After(retryDelays[attempt]):
		case <-q.ctx.Done():
			q.mu.Lock()
			j.Status = StatusFailed
			j.Err = q.ctx.Err()
			j.UpdatedAt = time.Now()
			q.mu.Unlock()
			return
		}

		q.mu.Lock()
		j.Status = StatusRunning
		j.UpdatedAt = time.Now()
		q.mu.Unlock()
	}
}
