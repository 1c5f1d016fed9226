// internal/master/dispatcher_server.go
package master

import (
	"context"
	"errors"
	"log/slog"

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

// DispatcherServer implements the proto.DispatcherServer interface on top of a JobQueue.
type DispatcherServer struct {
	pb.UnimplementedDispatcherServer
	queue  *JobQueue
	logger *slog.Logger
	tracer trace.Tracer
}

func NewDispatcherServer(queue *JobQueue, logger *slog.Logger) *DispatcherServer {
	return &DispatcherServer{
		queue:  queue,
		logger: logger.With("component", "dispatcher-server"),
		tracer: otel.Tracer("distributed-lsi-master"),
	}
}

// GetJob blocks until a job is available for the calling worker.
func (s *DispatcherServer) GetJob(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	workerID := in.GetValue()
	ctx, span := s.tracer.Start(ctx, "dispatcher.GetJob", trace.WithAttributes(attribute.String("worker.id", workerID)))
	defer span.End()

	if workerID == "" {
		return nil, status.Error(grpccodes.InvalidArgument, "worker id is required")
	}

	job, err := s.queue.Next(ctx, workerID)
	if err != nil {
		return nil, status.FromContextError(err).Err()
	}
	span.SetAttributes(attribute.String("job.id", job.ID))

	resp, err := pb.EncodeJob(job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode job")
		return nil, status.Error(grpccodes.Internal, err.Error())
	}
	return resp, nil
}

// JobDone marks the calling worker's outstanding job as complete.
func (s *DispatcherServer) JobDone(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	workerID := in.GetValue()
	_, span := s.tracer.Start(ctx, "dispatcher.JobDone", trace.WithAttributes(attribute.String("worker.id", workerID)))
	defer span.End()

	if err := s.queue.Done(workerID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job done rejected")
		if errors.Is(err, ErrNoOutstandingJob) {
			s.logger.Warn("unexpected job done", "worker_id", workerID)
			return nil, status.Error(grpccodes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(grpccodes.Internal, err.Error())
	}
	return &emptypb.Empty{}, nil
}
