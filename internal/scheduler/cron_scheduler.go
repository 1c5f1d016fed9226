// internal/scheduler/cron_scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"distributed-lsi/internal/domain"
	pb "distributed-lsi/proto"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Cluster is the part of the master the scheduler drives.
type Cluster interface {
	InitializeWorkers(ctx context.Context) error
	HarvestStates(ctx context.Context) ([]*pb.State, error)
}

// HarvestScheduler periodically brings new workers into the computation and
// stores the latest state of every worker.
type HarvestScheduler struct {
	cron    *cron.Cron
	cluster Cluster
	repo    domain.StateRepository
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time

	mu  sync.Mutex
	ctx context.Context // set by Start, parent of every scheduled run
}

// NewHarvestScheduler registers the harvest and worker sync entries. Both
// schedules use the standard five-field cron syntax or a descriptor such as
// "@every 30s". Each scheduled run is bounded by timeout.
func NewHarvestScheduler(cluster Cluster, repo domain.StateRepository, harvestSpec, syncSpec string, timeout time.Duration, logger *slog.Logger) (*HarvestScheduler, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("harvest timeout must be positive, got %s", timeout)
	}
	s := &HarvestScheduler{
		cron:    cron.New(),
		cluster: cluster,
		repo:    repo,
		timeout: timeout,
		logger:  logger.With("component", "harvest-scheduler"),
		tracer:  otel.Tracer("distributed-lsi-scheduler"),
		now:     time.Now,
	}

	if _, err := s.cron.AddFunc(syncSpec, s.runSync); err != nil {
		return nil, fmt.Errorf("invalid worker sync schedule %q: %w", syncSpec, err)
	}
	if _, err := s.cron.AddFunc(harvestSpec, s.runHarvest); err != nil {
		return nil, fmt.Errorf("invalid harvest schedule %q: %w", harvestSpec, err)
	}
	s.logger.Info("scheduler configured", "harvest_schedule", harvestSpec, "worker_sync_schedule", syncSpec)
	return s, nil
}

// Start runs the cron entries until ctx is done. Runs in flight when ctx is
// done are canceled.
func (s *HarvestScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info("harvest scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("harvest scheduler stopping...")
	s.Stop()
	s.logger.Info("harvest scheduler stopped")
	return ctx.Err()
}

// Stop halts the cron entries and waits for running ones to finish.
func (s *HarvestScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// SyncWorkers initializes workers that joined since the last sync.
func (s *HarvestScheduler) SyncWorkers(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.SyncWorkers")
	defer span.End()

	if err := s.cluster.InitializeWorkers(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Harvest collects the state of every worker and saves it. States that were
// harvested are saved even if other workers failed to answer.
func (s *HarvestScheduler) Harvest(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.Harvest")
	defer span.End()

	states, harvestErr := s.cluster.HarvestStates(ctx)
	harvestedAt := s.now().UTC()

	errs := []error{harvestErr}
	for _, st := range states {
		record := &domain.StateRecord{
			WorkerID:    st.WorkerID,
			JobsDone:    st.JobsDone,
			Kind:        st.Kind,
			Snapshot:    st.Snapshot,
			HarvestedAt: harvestedAt,
		}
		if err := s.repo.Save(ctx, record); err != nil {
			s.logger.Error("failed to save worker state", "worker_id", st.WorkerID, "error", err)
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("worker state saved", "worker_id", st.WorkerID, "jobs_done", st.JobsDone)
	}

	span.SetAttributes(attribute.Int("harvest.states", len(states)))
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// runContext derives the context of one scheduled run.
func (s *HarvestScheduler) runContext() (context.Context, context.CancelFunc) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.timeout)
}

func (s *HarvestScheduler) runSync() {
	ctx, cancel := s.runContext()
	defer cancel()
	if err := s.SyncWorkers(ctx); err != nil {
		s.logger.Warn("worker sync incomplete", "error", err)
	}
}

func (s *HarvestScheduler) runHarvest() {
	ctx, cancel := s.runContext()
	defer cancel()
	if err := s.Harvest(ctx); err != nil {
		s.logger.Warn("harvest incomplete", "error", err)
	}
}
