// internal/worker/worker.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"distributed-lsi/internal/domain"
	"distributed-lsi/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Worker owns one shard of cumulative model state. Jobs are pulled from the
// dispatcher one at a time and folded into the model; the dispatcher may ask
// for a snapshot of the model at any time.
//
// ProcessJob and GetState serialize on mu, so a snapshot never observes a
// partially applied job. mu is never held while waiting for a job.
type Worker struct {
	newModel domain.ModelFactory
	logger   *slog.Logger
	tracer   trace.Tracer

	mu         sync.Mutex
	id         string
	dispatcher domain.Dispatcher
	model      domain.Model
	jobsDone   int64
}

// New creates an uninitialized worker. newModel builds the model from the
// params passed to Initialize.
func New(newModel domain.ModelFactory, logger *slog.Logger) *Worker {
	return &Worker{
		newModel: newModel,
		logger:   logger.With("component", "worker"),
		tracer:   otel.Tracer("distributed-lsi-worker"),
	}
}

// Initialize prepares the worker to receive jobs. It may be called only once;
// later calls fail with domain.ErrAlreadyInitialized and leave the
// accumulated state untouched.
func (w *Worker) Initialize(ctx context.Context, id string, dispatcher domain.Dispatcher, params domain.ModelParams) error {
	_, span := w.tracer.Start(ctx, "worker.Initialize", trace.WithAttributes(attribute.String("worker.id", id)))
	defer span.End()

	if id == "" || dispatcher == nil {
		err := fmt.Errorf("%w: worker id and dispatcher are required", domain.ErrInvalidArgument)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid initialize request")
		return err
	}

	w.mu.Lock()
	if w.model != nil {
		existing := w.id
		w.mu.Unlock()
		w.logger.Warn("rejecting re-initialization", "worker_id", existing, "requested_id", id)
		span.SetStatus(codes.Error, "already initialized")
		return domain.ErrAlreadyInitialized
	}

	// Built under the lock so concurrent calls construct at most one model.
	model, err := w.newModel(params)
	if err != nil {
		w.mu.Unlock()
		err = fmt.Errorf("%w: failed to construct model: %w", domain.ErrInvalidArgument, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "model construction failed")
		return err
	}
	w.id = id
	w.dispatcher = dispatcher
	w.model = model
	w.jobsDone = 0
	w.mu.Unlock()

	w.logger.Info("initializing worker", "worker_id", id)
	return nil
}

// Rebind points an initialized worker at another dispatcher and returns the
// previous one. The model and job counter are kept. A loop iteration already
// in flight finishes against the dispatcher it started with.
func (w *Worker) Rebind(dispatcher domain.Dispatcher) (domain.Dispatcher, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher is required", domain.ErrInvalidArgument)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return nil, domain.ErrUninitialized
	}
	previous := w.dispatcher
	w.dispatcher = dispatcher
	w.logger.Info("worker rebound to a new dispatcher", "worker_id", w.id, "jobs_done", w.jobsDone)
	return previous, nil
}

// RequestJob pulls jobs from the dispatcher and processes them until an error
// occurs or ctx is done. Each iteration blocks in GetJob until a job is
// available, processes it, then reports it with JobDone. Dispatcher failures
// are returned as *domain.TransportError; there is no retry here.
func (w *Worker) RequestJob(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.requestOne(ctx); err != nil {
			return err
		}
	}
}

func (w *Worker) requestOne(ctx context.Context) error {
	id, dispatcher, err := w.handle()
	if err != nil {
		return err
	}

	job, err := dispatcher.GetJob(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transportError("getJob", err)
	}
	if job == nil {
		return transportError("getJob", errors.New("dispatcher returned no job"))
	}
	w.logger.Debug("worker received job", "worker_id", id, "job_id", job.ID, "documents", len(job.Documents))

	if err := w.ProcessJob(ctx, job); err != nil {
		return err
	}

	if err := dispatcher.JobDone(ctx, id); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transportError("jobDone", err)
	}
	return nil
}

// ProcessJob folds job into the model and counts it. On failure the counter
// is left unchanged and a *domain.AccumulateError is returned.
func (w *Worker) ProcessJob(ctx context.Context, job *domain.Job) error {
	_, span := w.tracer.Start(ctx, "worker.ProcessJob")
	defer span.End()

	var jobID string
	if job != nil {
		jobID = job.ID
		span.SetAttributes(
			attribute.String("job.id", job.ID),
			attribute.Int("job.documents", len(job.Documents)),
		)
	}

	id, jobsDone, err := w.accumulate(job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job processing failed")
		if !errors.Is(err, domain.ErrUninitialized) {
			metrics.JobsProcessedTotal.WithLabelValues(id, "failed").Inc()
			w.logger.Error("failed to process job", "worker_id", id, "job_id", jobID, "error", err)
		}
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues(id, "success").Inc()
	span.SetAttributes(attribute.Int64("worker.jobs_done", jobsDone))
	w.logger.Debug("processed job", "worker_id", id, "job_id", jobID, "jobs_done", jobsDone)
	return nil
}

func (w *Worker) accumulate(job *domain.Job) (string, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model == nil {
		return "", 0, domain.ErrUninitialized
	}
	if job == nil {
		return w.id, w.jobsDone, fmt.Errorf("%w: job is nil", domain.ErrInvalidArgument)
	}

	start := time.Now()
	err := w.model.Accumulate(job)
	metrics.AccumulateDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return w.id, w.jobsDone, &domain.AccumulateError{JobID: job.ID, Err: err}
	}
	w.jobsDone++
	return w.id, w.jobsDone, nil
}

// GetState returns a snapshot of the model. It is safe to call concurrently
// with the job loop and sees the model either before or after any given job.
func (w *Worker) GetState(ctx context.Context) (*domain.State, error) {
	_, span := w.tracer.Start(ctx, "worker.GetState")
	defer span.End()

	state, err := w.snapshot()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "state export failed")
		return nil, err
	}

	metrics.StateExportsTotal.WithLabelValues(state.WorkerID).Inc()
	span.SetAttributes(attribute.Int64("worker.jobs_done", state.JobsDone))
	w.logger.Info("worker returning its state", "worker_id", state.WorkerID, "jobs_done", state.JobsDone)
	return state, nil
}

func (w *Worker) snapshot() (*domain.State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model == nil {
		return nil, domain.ErrUninitialized
	}
	return &domain.State{
		WorkerID: w.id,
		JobsDone: w.jobsDone,
		Snapshot: w.model.Snapshot(),
	}, nil
}

// JobsDone returns the number of jobs processed since Initialize.
func (w *Worker) JobsDone() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.jobsDone
}

// ID returns the id assigned at Initialize, or "" before that.
func (w *Worker) ID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

func (w *Worker) handle() (string, domain.Dispatcher, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return "", nil, domain.ErrUninitialized
	}
	return w.id, w.dispatcher, nil
}

func transportError(op string, err error) error {
	var te *domain.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &domain.TransportError{Op: op, Err: err}
}
