package converter

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Status describes where a job sits in its lifecycle.
type Status string

const (
	StatusQueued Status = "queued"
	StatusActive Status = "active"
)

// Job tracks one pending or running conversion. Callers obtain jobs
// from Queue.Enqueue and wait on them with Wait.
type Job struct {
	ID    string
	Added time.Time

	done chan struct{}

	mu     sync.Mutex
	status Status
	err    error
}

// Wait blocks until the job finishes or the context is done. It
// returns the conversion error, if any.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the job's final error. Valid only after done is closed.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// JobInfo is a point-in-time view of a job for listings.
type JobInfo struct {
	ID     string    `json:"id"`
	Status Status    `json:"status"`
	Added  time.Time `json:"added"`
}

// Queue holds pending conversions keyed by video ID. Enqueueing an ID
// that is already queued or active returns the existing job, so
// concurrent feed subscribers share one conversion.
type Queue struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Enqueue adds a job for id, or returns the existing one.
func (q *Queue) Enqueue(id string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job, ok := q.jobs[id]; ok {
		return job
	}
	job := &Job{
		ID:     id,
		Added:  q.now(),
		done:   make(chan struct{}),
		status: StatusQueued,
	}
	q.jobs[id] = job
	return job
}

// next claims the oldest queued job, marking it active. It returns nil
// when nothing is waiting.
func (q *Queue) next() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var oldest *Job
	for _, job := range q.jobs {
		job.mu.Lock()
		queued := job.status == StatusQueued
		job.mu.Unlock()
		if !queued {
			continue
		}
		if oldest == nil || job.Added.Before(oldest.Added) {
			oldest = job
		}
	}
	if oldest != nil {
		oldest.mu.Lock()
		oldest.status = StatusActive
		oldest.mu.Unlock()
	}
	return oldest
}

// complete records the job's outcome, releases waiters, and removes it
// from the queue.
func (q *Queue) complete(job *Job, err error) {
	job.mu.Lock()
	job.err = err
	job.mu.Unlock()
	close(job.done)

	q.mu.Lock()
	delete(q.jobs, job.ID)
	q.mu.Unlock()
}

// Len returns the number of queued and active jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Snapshot lists current jobs sorted oldest first.
func (q *Queue) Snapshot() []JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	infos := make([]JobInfo, 0, len(q.jobs))
	for _, job := range q.jobs {
		job.mu.Lock()
		infos = append(infos, JobInfo{ID: job.ID, Status: job.status, Added: job.Added})
		job.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Added.Before(infos[j].Added)
	})
	return infos
}
