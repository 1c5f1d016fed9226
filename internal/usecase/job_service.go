package usecase

import (
	"context"
	"log/slog"

	"distributed-lsi/internal/domain"
	"distributed-lsi/internal/master"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobQueue accepts jobs for the workers.
type JobQueue interface {
	Submit(ctx context.Context, job *domain.Job) error
	Stats() master.QueueStats
}

// WorkerLister returns the registered workers.
type WorkerLister interface {
	GetWorkers() []domain.WorkerEndpoint
}

// Leadership reports whether this master currently leads the cluster.
type Leadership interface {
	IsLeader() bool
}

// JobService is the master's entry point for submitting work and reading
// back what the workers have done.
type JobService struct {
	queue   JobQueue
	states  domain.StateRepository
	workers WorkerLister
	leader  Leadership
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewJobService creates a new JobService instance. Jobs are only accepted
// while leader reports leadership.
func NewJobService(queue JobQueue, states domain.StateRepository, workers WorkerLister, leader Leadership, logger *slog.Logger) *JobService {
	return &JobService{
		queue:   queue,
		states:  states,
		workers: workers,
		leader:  leader,
		logger:  logger.With("component", "job-service"),
		tracer:  otel.Tracer("distributed-lsi-usecase"),
	}
}

// Submit queues a batch of documents. A job without an id gets a new one.
// Followers reject jobs with domain.ErrNotLeader since no worker pulls from
// their queue.
func (s *JobService) Submit(ctx context.Context, job *domain.Job) error {
	ctx, span := s.tracer.Start(ctx, "service.Submit")
	defer span.End()

	if !s.leader.IsLeader() {
		span.SetStatus(codes.Error, "not the leader")
		return domain.ErrNotLeader
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.Int("job.documents", len(job.Documents)),
	)

	if err := s.queue.Submit(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to queue job")
		return err
	}
	s.logger.Info("job submitted", "job_id", job.ID, "documents", len(job.Documents))
	return nil
}

// QueueStats reports the state of the job queue.
func (s *JobService) QueueStats(ctx context.Context) master.QueueStats {
	_, span := s.tracer.Start(ctx, "service.QueueStats")
	defer span.End()
	return s.queue.Stats()
}

// Workers lists the registered workers.
func (s *JobService) Workers(ctx context.Context) []domain.WorkerEndpoint {
	_, span := s.tracer.Start(ctx, "service.Workers")
	defer span.End()
	return s.workers.GetWorkers()
}

// GetState returns the last harvested state of a worker.
func (s *JobService) GetState(ctx context.Context, workerID string) (*domain.StateRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetState")
	defer span.End()
	span.SetAttributes(attribute.String("worker.id", workerID))

	record, err := s.states.Get(ctx, workerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get state from repository")
	}
	return record, err
}

// ListStates returns the last harvested state of every worker.
func (s *JobService) ListStates(ctx context.Context) ([]*domain.StateRecord, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListStates")
	defer span.End()

	records, err := s.states.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list states from repository")
	}
	return records, err
}
