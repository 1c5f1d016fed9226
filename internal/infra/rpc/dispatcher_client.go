// internal/infra/rpc/dispatcher_client.go
package rpc

import (
	"context"
	"fmt"

	"distributed-lsi/internal/domain"
	pb "distributed-lsi/proto"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DispatcherClient is the worker's gRPC handle on the dispatcher.
// Failures are returned as *domain.TransportError.
type DispatcherClient struct {
	conn   *grpc.ClientConn
	client pb.DispatcherClient
}

var _ domain.Dispatcher = (*DispatcherClient)(nil)

// DialDispatcher creates a client for the dispatcher at addr. The connection
// is established lazily on first use.
func DialDispatcher(addr string, opts ...grpc.DialOption) (*DispatcherClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to dispatcher at %s: %w", addr, err)
	}
	return NewDispatcherClient(conn), nil
}

// NewDispatcherClient wraps an existing connection.
func NewDispatcherClient(conn *grpc.ClientConn) *DispatcherClient {
	return &DispatcherClient{
		conn:   conn,
		client: pb.NewDispatcherClient(conn),
	}
}

// GetJob blocks until the dispatcher hands out a job for workerID.
func (c *DispatcherClient) GetJob(ctx context.Context, workerID string) (*domain.Job, error) {
	resp, err := c.client.GetJob(ctx, wrapperspb.String(workerID))
	if err != nil {
		return nil, &domain.TransportError{Op: "getJob", Err: err}
	}
	job, err := pb.DecodeJob(resp)
	if err != nil {
		return nil, &domain.TransportError{Op: "getJob", Err: err}
	}
	return job, nil
}

// JobDone tells the dispatcher that workerID finished its job.
func (c *DispatcherClient) JobDone(ctx context.Context, workerID string) error {
	if _, err := c.client.JobDone(ctx, wrapperspb.String(workerID)); err != nil {
		return &domain.TransportError{Op: "jobDone", Err: err}
	}
	return nil
}

func (c *DispatcherClient) Close() error {
	return c.conn.Close()
}
