// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"distributed-lsi/internal/config"
	"distributed-lsi/internal/domain"
	"distributed-lsi/internal/infra/etcd"
	"distributed-lsi/internal/infra/rpc"
	"distributed-lsi/internal/model"
	"distributed-lsi/internal/tracing"
	"distributed-lsi/internal/worker"
	pb "distributed-lsi/proto"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

func main() {
	// 1. Load configuration and init logger
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	nodeID := uuid.New().String()
	logger = logger.With("node_id", nodeID)

	tracerShutdown, err := tracing.InitTracer("distributed-lsi-worker", nodeID, log.Writer())
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel, logger)

	// 3. Init etcd client
	etcdClient, err := etcd.NewClient(cfg.EtcdEndpoints, cfg.EtcdTimeout)
	if err != nil {
		log.Fatalf("Failed to create etcd client: %v", err)
	}
	defer etcdClient.Close()
	logger.Info("connected to etcd", "endpoints", cfg.EtcdEndpoints)

	// 4. Build the worker. The job loop lives as long as the process.
	w := worker.New(model.New, logger)
	runner := worker.NewRunner(rootCtx, w, cfg.LoopRestartBackoff, logger)
	workerServer := worker.NewServer(w, runner, func(addr string) (domain.Dispatcher, error) {
		client, err := rpc.DialDispatcher(addr)
		if err != nil {
			return nil, err
		}
		return client, nil
	}, logger)

	// 5. Start the gRPC server
	lis, err := net.Listen("tcp", cfg.WorkerListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen for gRPC: %v", err)
	}
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	pb.RegisterWorkerServer(grpcServer, workerServer)

	go func() {
		logger.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC server failed: %v", err)
		}
	}()

	// 6. Serve metrics
	var metricsServer *http.Server
	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	// 7. Register this worker in etcd so the master can initialize it
	advertise := advertiseAddr(cfg.WorkerAdvertiseAddr, lis.Addr())
	registry := worker.NewRegistry(etcdClient, logger)
	regCtx, regCancel := context.WithTimeout(rootCtx, cfg.EtcdTimeout)
	err = registry.Register(regCtx, nodeID, advertise, int64(cfg.RegistrationTTL.Seconds()))
	regCancel()
	if err != nil {
		log.Fatalf("Failed to register worker: %v", err)
	}

	// 8. Block until shutdown signal
	<-rootCtx.Done()
	logger.Info("shutting down worker node gracefully...")

	deregCtx, deregCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := registry.Deregister(deregCtx); err != nil {
		logger.Error("failed to deregister worker", "error", err)
	}
	deregCancel()

	workerServer.Close()
	grpcServer.GracefulStop()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	logger.Info("worker node shut down", "jobs_done", w.JobsDone())
}

// advertiseAddr returns the configured address, or the listener's address
// with the host's name when the listener is bound to every interface.
func advertiseAddr(configured string, bound net.Addr) string {
	if configured != "" {
		return configured
	}
	_, port, err := net.SplitHostPort(bound.String())
	if err != nil {
		return bound.String()
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

func setupGracefulShutdown(cancel context.CancelFunc, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
		cancel()
	}()
}
