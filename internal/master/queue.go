// internal/master/queue.go
package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"distributed-lsi/internal/domain"
	"distributed-lsi/internal/metrics"
)

// ErrNoOutstandingJob is returned by Done for a worker that holds no job.
var ErrNoOutstandingJob = errors.New("worker has no outstanding job")

// QueueStats is a point-in-time view of the queue.
type QueueStats struct {
	Queued      int               `json:"queued"`
	Submitted   int64             `json:"submitted"`
	Abandoned   int64             `json:"abandoned"`
	Outstanding map[string]string `json:"outstanding"` // worker id -> job id
	Completed   map[string]int64  `json:"completed"`   // worker id -> jobs done
}

// JobQueue is a bounded FIFO of jobs waiting for workers. Each worker holds
// at most one outstanding job at a time.
type JobQueue struct {
	jobs   chan *domain.Job
	logger *slog.Logger

	mu          sync.Mutex
	submitted   int64
	abandoned   int64
	outstanding map[string]*domain.Job
	completed   map[string]int64
}

func NewJobQueue(size int, logger *slog.Logger) *JobQueue {
	return &JobQueue{
		jobs:        make(chan *domain.Job, size),
		logger:      logger.With("component", "job-queue"),
		outstanding: make(map[string]*domain.Job),
		completed:   make(map[string]int64),
	}
}

// Submit enqueues a job, blocking while the queue is full.
func (q *JobQueue) Submit(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}

	// Counted before the send: a waiting worker may take the job and
	// decrement the gauge before Submit returns.
	metrics.JobsQueued.Inc()
	select {
	case q.jobs <- job:
	case <-ctx.Done():
		metrics.JobsQueued.Dec()
		return ctx.Err()
	}

	q.mu.Lock()
	q.submitted++
	q.mu.Unlock()
	q.logger.Debug("job queued", "job_id", job.ID, "documents", len(job.Documents))
	return nil
}

// Next blocks until a job is available and assigns it to workerID. A job the
// worker still held is treated as abandoned; the worker only asks again after
// giving up on it.
func (q *JobQueue) Next(ctx context.Context, workerID string) (*domain.Job, error) {
	var job *domain.Job
	select {
	case job = <-q.jobs:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	metrics.JobsQueued.Dec()

	q.mu.Lock()
	if prev, ok := q.outstanding[workerID]; ok {
		q.abandoned++
		q.logger.Warn("worker abandoned its job", "worker_id", workerID, "job_id", prev.ID)
	}
	q.outstanding[workerID] = job
	q.mu.Unlock()

	q.logger.Info("job assigned", "worker_id", workerID, "job_id", job.ID)
	return job, nil
}

// Done records that workerID finished its outstanding job.
func (q *JobQueue) Done(workerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.outstanding[workerID]
	if !ok {
		return ErrNoOutstandingJob
	}
	delete(q.outstanding, workerID)
	q.completed[workerID]++
	q.logger.Info("job completed", "worker_id", workerID, "job_id", job.ID, "jobs_done", q.completed[workerID])
	return nil
}

func (q *JobQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := QueueStats{
		Queued:      len(q.jobs),
		Submitted:   q.submitted,
		Abandoned:   q.abandoned,
		Outstanding: make(map[string]string, len(q.outstanding)),
		Completed:   make(map[string]int64, len(q.completed)),
	}
	for w, job := range q.outstanding {
		stats.Outstanding[w] = job.ID
	}
	for w, n := range q.completed {
		stats.Completed[w] = n
	}
	return stats
}
