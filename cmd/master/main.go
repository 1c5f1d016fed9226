// cmd/master/main.go
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

	http_api "distributed-lsi/internal/api/http"
	"distributed-lsi/internal/config"
	"distributed-lsi/internal/infra/etcd"
	"distributed-lsi/internal/master"
	"distributed-lsi/internal/scheduler"
	"distributed-lsi/internal/tracing"
	"distributed-lsi/internal/usecase"
	pb "distributed-lsi/proto"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// corsMiddleware wraps an http.Handler with CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding")

		// Handle pre-flight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

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

	tracerShutdown, err := tracing.InitTracer("distributed-lsi-master", nodeID, log.Writer())
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

	// 4. Dispatcher: the queue workers pull from
	queue := master.NewJobQueue(cfg.QueueSize, logger)
	lis, err := net.Listen("tcp", cfg.DispatcherListenAddr)
	if err != nil {
		log.Fatalf("Failed to listen for gRPC: %v", err)
	}
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	pb.RegisterDispatcherServer(grpcServer, master.NewDispatcherServer(queue, logger))
	go func() {
		logger.Info("dispatcher listening", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("dispatcher gRPC server failed: %v", err)
		}
	}()

	// 5. Workers, harvest and leadership
	discovery := master.NewWorkerDiscovery(etcdClient, logger)
	go discovery.WatchWorkers(rootCtx)

	dispatcherAddr := cfg.DispatcherAdvertiseAddr
	if dispatcherAddr == "" {
		dispatcherAddr = cfg.DispatcherListenAddr
	}
	cluster := master.NewCluster(discovery, dispatcherAddr, cfg.Model.Params(), nil, logger)
	stateRepo := etcd.NewEtcdStateRepository(etcdClient, logger)

	harvester, err := scheduler.NewHarvestScheduler(cluster, stateRepo, cfg.HarvestSchedule, cfg.WorkerSyncSchedule, cfg.HarvestTimeout, logger)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	leaderManager := etcd.NewEtcdLeaderElectionManager(etcdClient, nodeID, cfg.LeaderElectionTTL, logger)
	masterService := usecase.NewMasterService(leaderManager, harvester, nodeID, cfg.EtcdTimeout, logger)

	go func() {
		if err := masterService.Start(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("master service stopped with error", "error", err)
		}
	}()

	// 6. HTTP API and metrics
	jobService := usecase.NewJobService(queue, stateRepo, discovery, leaderManager, logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	http_api.NewJobHandler(jobService, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.HttpListenAddr,
		Handler: corsMiddleware(mux),
	}
	go func() {
		logger.Info("HTTP API listening", "addr", cfg.HttpListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 7. Block until shutdown
	<-rootCtx.Done()
	logger.Info("shutting down master node gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	// Workers blocked in GetJob are released by Stop.
	grpcServer.Stop()

	logger.Info("master node shut down", "queue", queue.Stats())
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
