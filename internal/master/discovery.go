// internal/master/discovery.go
package master

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"distributed-lsi/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// WorkerDiscovery tracks the worker processes registered in etcd.
type WorkerDiscovery struct {
	client  *clientv3.Client
	logger  *slog.Logger
	workers map[string]string // node id -> addr
	mu      sync.RWMutex
}

// NewWorkerDiscovery creates a new discovery service.
func NewWorkerDiscovery(client *clientv3.Client, logger *slog.Logger) *WorkerDiscovery {
	return &WorkerDiscovery{
		client:  client,
		logger:  logger.With("component", "worker-discovery"),
		workers: make(map[string]string),
	}
}

// WatchWorkers loads the current registrations and then follows changes
// until ctx is done. It blocks and should be run in a goroutine.
func (d *WorkerDiscovery) WatchWorkers(ctx context.Context) {
	d.logger.Info("starting to watch for workers")

	rev, err := d.loadInitialWorkers(ctx)
	if err != nil {
		d.logger.Error("failed to perform initial worker load", "error", err)
	}

	opts := []clientv3.OpOption{clientv3.WithPrefix()}
	if rev > 0 {
		opts = append(opts, clientv3.WithRev(rev+1))
	}
	watchChan := d.client.Watch(ctx, domain.WorkerRegistryPrefix, opts...)

	for watchResp := range watchChan {
		for _, event := range watchResp.Events {
			d.apply(event.Type == clientv3.EventTypeDelete, event.Kv.Key, event.Kv.Value)
		}
	}
	d.logger.Info("stopped watching for workers")
}

func (d *WorkerDiscovery) loadInitialWorkers(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := d.client.Get(ctx, domain.WorkerRegistryPrefix, clientv3.WithPrefix())
	if err != nil {
		return 0, err
	}
	for _, kv := range resp.Kvs {
		d.apply(false, kv.Key, kv.Value)
	}
	return resp.Header.Revision, nil
}

func (d *WorkerDiscovery) apply(deleted bool, key, value []byte) {
	nodeID := strings.TrimPrefix(string(key), domain.WorkerRegistryPrefix)

	d.mu.Lock()
	defer d.mu.Unlock()

	if deleted {
		d.logger.Info("worker deregistered", "node_id", nodeID, "addr", d.workers[nodeID])
		delete(d.workers, nodeID)
		return
	}

	var reg domain.WorkerRegistration
	if err := json.Unmarshal(value, &reg); err != nil {
		d.logger.Warn("ignoring malformed worker registration", "node_id", nodeID, "error", err)
		return
	}
	if _, ok := d.workers[nodeID]; !ok {
		d.logger.Info("new worker discovered", "node_id", nodeID, "addr", reg.Addr)
	}
	d.workers[nodeID] = reg.Addr
}

// GetWorkers returns a snapshot of the currently registered workers, ordered by node id.
func (d *WorkerDiscovery) GetWorkers() []domain.WorkerEndpoint {
	d.mu.RLock()
	defer d.mu.RUnlock()

	endpoints := make([]domain.WorkerEndpoint, 0, len(d.workers))
	for id, addr := range d.workers {
		endpoints = append(endpoints, domain.WorkerEndpoint{NodeID: id, Addr: addr})
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].NodeID < endpoints[j].NodeID })
	return endpoints
}
