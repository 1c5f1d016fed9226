// internal/worker/server.go
package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"distributed-lsi/internal/domain"
	pb "distributed-lsi/proto"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// DispatcherDialer opens a handle on the dispatcher at addr.
type DispatcherDialer func(addr string) (domain.Dispatcher, error)

// Server implements the proto.WorkerServer interface.
type Server struct {
	pb.UnimplementedWorkerServer
	worker *Worker
	runner *Runner
	dial   DispatcherDialer
	logger *slog.Logger
	tracer trace.Tracer

	mu             sync.Mutex
	dispatcher     domain.Dispatcher // dialed at Initialize or Rebind, closed by Close
	dispatcherAddr string
}

// NewServer creates a new gRPC server for the worker.
func NewServer(w *Worker, runner *Runner, dial DispatcherDialer, logger *slog.Logger) *Server {
	return &Server{
		worker: w,
		runner: runner,
		dial:   dial,
		logger: logger.With("component", "grpc-server"),
		tracer: otel.Tracer("distributed-lsi-worker"),
	}
}

// Initialize is called once by the dispatcher to assign the worker id and
// model params.
func (s *Server) Initialize(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	ctx, span := s.tracer.Start(ctx, "worker.Initialize.Accept")
	defer span.End()

	req, err := pb.DecodeInitializeRequest(in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid initialize request")
		return nil, status.Error(grpccodes.InvalidArgument, err.Error())
	}
	span.SetAttributes(
		attribute.String("worker.id", req.WorkerID),
		attribute.String("dispatcher.addr", req.DispatcherAddr),
	)
	s.logger.Info("received initialize request", "worker_id", req.WorkerID, "dispatcher_addr", req.DispatcherAddr)

	if req.DispatcherAddr == "" {
		return nil, status.Error(grpccodes.InvalidArgument, "dispatcher_addr is required")
	}
	dispatcher, err := s.dial(req.DispatcherAddr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to dial dispatcher")
		return nil, status.Error(grpccodes.Unavailable, err.Error())
	}

	if err := s.worker.Initialize(ctx, req.WorkerID, dispatcher, req.Model); err != nil {
		closeDispatcher(dispatcher)
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialize failed")
		return nil, toStatus(err)
	}

	s.mu.Lock()
	s.dispatcher = dispatcher
	s.dispatcherAddr = req.DispatcherAddr
	s.mu.Unlock()
	return &emptypb.Empty{}, nil
}

// Rebind moves an initialized worker to the dispatcher at the given address,
// keeping its model and job counter. A running job loop is restarted against
// the new dispatcher. Rebinding to the current address is a no-op.
func (s *Server) Rebind(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	addr := in.GetValue()
	_, span := s.tracer.Start(ctx, "worker.Rebind.Accept", trace.WithAttributes(attribute.String("dispatcher.addr", addr)))
	defer span.End()

	if addr == "" {
		return nil, status.Error(grpccodes.InvalidArgument, "dispatcher address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, err := s.worker.handle(); err != nil {
		return nil, toStatus(err)
	}
	if addr == s.dispatcherAddr {
		return &emptypb.Empty{}, nil
	}

	dispatcher, err := s.dial(addr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to dial dispatcher")
		return nil, status.Error(grpccodes.Unavailable, err.Error())
	}

	running := s.runner.Running()
	s.runner.Stop()

	previous, err := s.worker.Rebind(dispatcher)
	if err != nil {
		closeDispatcher(dispatcher)
		span.RecordError(err)
		span.SetStatus(codes.Error, "rebind failed")
		return nil, toStatus(err)
	}
	s.logger.Info("rebound to dispatcher", "worker_id", s.worker.ID(), "from", s.dispatcherAddr, "to", addr)
	s.dispatcher = dispatcher
	s.dispatcherAddr = addr
	if previous != nil {
		closeDispatcher(previous)
	}

	if running {
		if err := s.runner.Start(); err != nil && !errors.Is(err, ErrLoopRunning) {
			span.RecordError(err)
			return nil, toStatus(err)
		}
	}
	return &emptypb.Empty{}, nil
}

// RequestJob starts the job loop in the background and returns immediately.
func (s *Server) RequestJob(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	_, span := s.tracer.Start(ctx, "worker.RequestJob.Accept")
	defer span.End()

	if err := s.runner.Start(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start job loop")
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// GetState returns the current model snapshot.
func (s *Server) GetState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ctx, span := s.tracer.Start(ctx, "worker.GetState.Accept")
	defer span.End()

	state, err := s.worker.GetState(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get state")
		return nil, toStatus(err)
	}

	s.mu.Lock()
	addr := s.dispatcherAddr
	s.mu.Unlock()

	resp, err := pb.EncodeState(state, addr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode state")
		return nil, status.Error(grpccodes.Internal, err.Error())
	}
	return resp, nil
}

// Close stops the job loop and releases the dispatcher connection.
func (s *Server) Close() {
	s.runner.Stop()

	s.mu.Lock()
	dispatcher := s.dispatcher
	s.dispatcher = nil
	s.mu.Unlock()

	if dispatcher != nil {
		closeDispatcher(dispatcher)
	}
}

func closeDispatcher(d domain.Dispatcher) {
	if c, ok := d.(io.Closer); ok {
		_ = c.Close()
	}
}

// toStatus converts worker errors to errors with grpc status codes.
func toStatus(err error) error {
	var accErr *domain.AccumulateError
	switch {
	case errors.Is(err, domain.ErrUninitialized):
		return status.Error(grpccodes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrAlreadyInitialized), errors.Is(err, ErrLoopRunning):
		return status.Error(grpccodes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(grpccodes.InvalidArgument, err.Error())
	case errors.As(err, &accErr):
		return status.Error(grpccodes.Internal, err.Error())
	}
	return status.Error(grpccodes.Unknown, err.Error())
}
