// internal/master/cluster.go
package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"distributed-lsi/internal/domain"
	"distributed-lsi/internal/metrics"
	pb "distributed-lsi/proto"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// maxInFlight bounds the concurrent RPCs of one sync or harvest round.
const maxInFlight = 16

// WorkerLister returns the currently known worker processes.
type WorkerLister interface {
	GetWorkers() []domain.WorkerEndpoint
}

// WorkerDialer creates a client for the worker at addr.
type WorkerDialer func(addr string) (pb.WorkerClient, error)

// Cluster drives the registered workers: it initializes new ones, starts
// their job loops and harvests their state.
type Cluster struct {
	workers        WorkerLister
	dispatcherAddr string
	modelParams    domain.ModelParams
	dial           WorkerDialer
	logger         *slog.Logger
	tracer         trace.Tracer

	mu          sync.Mutex
	clients     map[string]pb.WorkerClient // addr -> client
	initialized map[string]bool            // node id
}

// NewCluster creates a cluster. Workers are initialized with modelParams and
// told to pull jobs from dispatcherAddr. A nil dial uses DialWorker.
func NewCluster(workers WorkerLister, dispatcherAddr string, modelParams domain.ModelParams, dial WorkerDialer, logger *slog.Logger) *Cluster {
	if dial == nil {
		dial = DialWorker
	}
	return &Cluster{
		workers:        workers,
		dispatcherAddr: dispatcherAddr,
		modelParams:    modelParams,
		dial:           dial,
		logger:         logger.With("component", "cluster"),
		tracer:         otel.Tracer("distributed-lsi-master"),
		clients:        make(map[string]pb.WorkerClient),
		initialized:    make(map[string]bool),
	}
}

// DialWorker opens an instrumented gRPC client to a worker.
func DialWorker(addr string) (pb.WorkerClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to worker at %s: %w", addr, err)
	}
	return pb.NewWorkerClient(conn), nil
}

// InitializeWorkers initializes every worker not yet initialized by this
// master and starts its job loop. The node id becomes the worker id. A worker
// that is already initialized, for example by a previous leader, keeps its
// model and is rebound to this master's dispatcher.
func (c *Cluster) InitializeWorkers(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "cluster.InitializeWorkers")
	defer span.End()

	endpoints := c.workers.GetWorkers()
	c.forgetMissing(endpoints)

	errs := make([]error, len(endpoints))
	var eg errgroup.Group
	eg.SetLimit(maxInFlight)
	for i, ep := range endpoints {
		if c.isInitialized(ep.NodeID) {
			continue
		}
		eg.Go(func() error {
			if err := c.initializeWorker(ctx, ep); err != nil {
				c.logger.Error("failed to initialize worker", "node_id", ep.NodeID, "addr", ep.Addr, "error", err)
				errs[i] = err
				return nil
			}
			c.markInitialized(ep.NodeID)
			return nil
		})
	}
	_ = eg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "some workers failed to initialize")
	}
	return err
}

func (c *Cluster) initializeWorker(ctx context.Context, ep domain.WorkerEndpoint) error {
	client, err := c.getOrCreateClient(ep.Addr)
	if err != nil {
		return err
	}

	req, err := pb.EncodeInitializeRequest(&pb.InitializeRequest{
		WorkerID:       ep.NodeID,
		DispatcherAddr: c.dispatcherAddr,
		Model:          c.modelParams,
	})
	if err != nil {
		return err
	}

	_, err = client.Initialize(ctx, req)
	switch status.Code(err) {
	case grpccodes.OK:
	case grpccodes.AlreadyExists:
		if _, err := client.Rebind(ctx, wrapperspb.String(c.dispatcherAddr)); err != nil {
			return fmt.Errorf("rebind %s: %w", ep.NodeID, err)
		}
	default:
		return fmt.Errorf("initialize %s: %w", ep.NodeID, err)
	}
	if _, err := client.RequestJob(ctx, &emptypb.Empty{}); err != nil && status.Code(err) != grpccodes.AlreadyExists {
		return fmt.Errorf("start job loop on %s: %w", ep.NodeID, err)
	}

	c.logger.Info("worker initialized", "node_id", ep.NodeID, "addr", ep.Addr)
	return nil
}

// HarvestStates asks every initialized worker for its state in parallel.
// States of the workers that answered are returned in discovery order
// together with the joined errors of those that did not.
func (c *Cluster) HarvestStates(ctx context.Context) ([]*pb.State, error) {
	ctx, span := c.tracer.Start(ctx, "cluster.HarvestStates")
	defer span.End()

	endpoints := c.workers.GetWorkers()
	results := make([]*pb.State, len(endpoints))
	errs := make([]error, len(endpoints))

	var eg errgroup.Group
	eg.SetLimit(maxInFlight)
	for i, ep := range endpoints {
		if !c.isInitialized(ep.NodeID) {
			continue
		}
		eg.Go(func() error {
			state, err := c.harvest(ctx, ep)
			if err != nil {
				metrics.HarvestsTotal.WithLabelValues("failed").Inc()
				c.logger.Error("failed to harvest worker state", "node_id", ep.NodeID, "error", err)
				errs[i] = err
				return nil
			}
			metrics.HarvestsTotal.WithLabelValues("success").Inc()
			results[i] = state
			return nil
		})
	}
	_ = eg.Wait()

	var states []*pb.State
	for _, state := range results {
		if state != nil {
			states = append(states, state)
		}
	}

	span.SetAttributes(attribute.Int("harvest.states", len(states)))
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "some harvests failed")
	}
	return states, err
}

func (c *Cluster) harvest(ctx context.Context, ep domain.WorkerEndpoint) (*pb.State, error) {
	client, err := c.getOrCreateClient(ep.Addr)
	if err != nil {
		return nil, err
	}
	resp, err := client.GetState(ctx, &emptypb.Empty{})
	if err != nil {
		if status.Code(err) == grpccodes.FailedPrecondition {
			// The worker process restarted and lost its initialization.
			c.forget(ep.NodeID)
		}
		return nil, fmt.Errorf("get state from %s: %w", ep.NodeID, err)
	}
	state, err := pb.DecodeState(resp)
	if err != nil {
		return nil, err
	}
	if state.DispatcherAddr != c.dispatcherAddr {
		// Bound to another master's dispatcher; the next sync rebinds it.
		c.logger.Warn("worker pulls from another dispatcher", "node_id", ep.NodeID, "dispatcher_addr", state.DispatcherAddr)
		c.forget(ep.NodeID)
	}
	return state, nil
}

func (c *Cluster) getOrCreateClient(addr string) (pb.WorkerClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[addr]; ok {
		return client, nil
	}
	client, err := c.dial(addr)
	if err != nil {
		return nil, err
	}
	c.clients[addr] = client
	c.logger.Info("created new gRPC client for worker", "addr", addr)
	return client, nil
}

func (c *Cluster) isInitialized(nodeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized[nodeID]
}

func (c *Cluster) markInitialized(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized[nodeID] = true
}

func (c *Cluster) forget(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.initialized, nodeID)
}

func (c *Cluster) forgetMissing(endpoints []domain.WorkerEndpoint) {
	present := make(map[string]bool, len(endpoints))
	for _, ep := range endpoints {
		present[ep.NodeID] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.initialized {
		if !present[id] {
			delete(c.initialized, id)
		}
	}
}
