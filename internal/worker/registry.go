// internal/worker/registry.go
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"distributed-lsi/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Registry keeps a worker's leased registration alive in etcd.
type Registry struct {
	client  *clientv3.Client
	logger  *slog.Logger
	leaseID clientv3.LeaseID
	key     string
	stop    context.CancelFunc
}

// NewRegistry creates a new worker registry.
func NewRegistry(client *clientv3.Client, logger *slog.Logger) *Registry {
	return &Registry{
		client: client,
		logger: logger.With("component", "registry"),
	}
}

// Register publishes the worker's address under domain.WorkerRegistryPrefix+nodeID with a
// lease of ttl seconds, and keeps the lease alive until Deregister.
func (r *Registry) Register(ctx context.Context, nodeID, addr string, ttl int64) error {
	value, err := json.Marshal(domain.WorkerRegistration{Addr: addr, RegisteredAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal registration: %w", err)
	}
	r.key = domain.WorkerRegistryPrefix + nodeID

	leaseResp, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	r.leaseID = leaseResp.ID

	if _, err := r.client.Put(ctx, r.key, string(value), clientv3.WithLease(r.leaseID)); err != nil {
		return fmt.Errorf("failed to put worker registration key: %w", err)
	}

	kaCtx, stop := context.WithCancel(context.Background())
	keepAliveCh, err := r.client.KeepAlive(kaCtx, r.leaseID)
	if err != nil {
		stop()
		return fmt.Errorf("failed to start keep-alive: %w", err)
	}
	r.stop = stop

	go func() {
		for ka := range keepAliveCh {
			r.logger.Debug("lease keep-alive refreshed", "lease_id", ka.ID, "ttl", ka.TTL)
		}
		// Closed on Deregister, or when the lease is lost.
		if kaCtx.Err() == nil {
			r.logger.Warn("keep-alive channel closed, worker registration may have expired", "key", r.key)
		}
	}()

	r.logger.Info("worker registered successfully", "key", r.key, "addr", addr)
	return nil
}

// Deregister revokes the lease, which deletes the registration key.
func (r *Registry) Deregister(ctx context.Context) error {
	r.logger.Info("deregistering worker", "key", r.key)
	if r.stop != nil {
		r.stop()
	}
	if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	return nil
}
