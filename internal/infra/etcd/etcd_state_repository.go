// internal/infra/etcd/etcd_state_repository.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"distributed-lsi/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	StateDir = "/lsi/states/"
)

// KV is the subset of the etcd client the repository uses.
type KV interface {
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
}

type etcdStateRepository struct {
	kv     KV
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdStateRepository creates a repository for harvested worker states backed by etcd.
// A *clientv3.Client satisfies KV.
func NewEtcdStateRepository(kv KV, logger *slog.Logger) domain.StateRepository {
	return &etcdStateRepository{
		kv:     kv,
		logger: logger.With("component", "state-repository"),
		tracer: otel.Tracer("distributed-lsi-etcd-state-repo"),
	}
}

// Save stores the record under /lsi/states/{workerID}, replacing the previous one.
func (r *etcdStateRepository) Save(ctx context.Context, record *domain.StateRecord) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveState")
	defer span.End()

	if err := record.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid state record")
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal state record")
		return fmt.Errorf("failed to marshal state of worker %s to JSON: %w", record.WorkerID, err)
	}

	key := path.Join(StateDir, record.WorkerID)
	span.SetAttributes(
		attribute.String("worker.id", record.WorkerID),
		attribute.Int64("worker.jobs_done", record.JobsDone),
		attribute.String("etcd.key", key),
	)

	if _, err := r.kv.Put(ctx, key, string(recordJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put state record to etcd")
		return fmt.Errorf("failed to save state of worker %s to etcd: %w", record.WorkerID, err)
	}
	return nil
}

// Get returns the latest harvested state of a worker.
func (r *etcdStateRepository) Get(ctx context.Context, workerID string) (*domain.StateRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.GetState")
	defer span.End()
	span.SetAttributes(attribute.String("worker.id", workerID))

	resp, err := r.kv.Get(ctx, path.Join(StateDir, workerID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get state record from etcd")
		return nil, fmt.Errorf("failed to get state of worker %s from etcd: %w", workerID, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, domain.ErrStateNotFound
	}

	var record domain.StateRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal state record")
		return nil, fmt.Errorf("failed to unmarshal state of worker %s from JSON: %w", workerID, err)
	}
	return &record, nil
}

// List returns the latest state of every worker, ordered by worker id.
func (r *etcdStateRepository) List(ctx context.Context) ([]*domain.StateRecord, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListStates")
	defer span.End()

	resp, err := r.kv.Get(ctx, StateDir,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list state records from etcd")
		return nil, fmt.Errorf("failed to list worker states from etcd: %w", err)
	}
	span.SetAttributes(attribute.Int("etcd.kv_count", len(resp.Kvs)))

	records := make([]*domain.StateRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var record domain.StateRecord
		if err := json.Unmarshal(kv.Value, &record); err != nil {
			r.logger.Warn("failed to unmarshal state record from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}
