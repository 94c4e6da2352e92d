package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/thesislens/internal/async"
	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/delivery"
	"github.com/joseph-ayodele/thesislens/internal/export"
	"github.com/joseph-ayodele/thesislens/internal/pipeline"
	svc "github.com/joseph-ayodele/thesislens/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs, db, err := svc.ConnectJobs(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close(logger)
	}

	proc, closeLLM, err := pipeline.FromConfig(ctx, cfg, jobs, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	defer func() {
		if err := closeLLM(); err != nil {
			logger.Warn("closing llm provider", "error", err)
		}
	}()

	queue := async.NewDeliveryQueue(proc, logger,
		async.WithWorkers(2),
		async.WithQueueSize(64),
		async.WithDeliveryTimeout(5*time.Minute),
	)

	apiOpts := []svc.APIOption{
		svc.WithDeliveryQueue(queue),
		svc.WithMaxUploadMB(cfg.Server.MaxUploadMB),
		svc.WithRequestTimeout(cfg.Server.RequestTimeout),
	}
	if db != nil {
		apiOpts = append(apiOpts, svc.WithJobHistory(jobs, export.NewService(jobs, logger)))
	}
	api := svc.NewAPI(proc, delivery.NewSessionStore(), logger, apiOpts...)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(svc.UnaryLogging(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	// Reflection for grpcurl
	reflection.Register(grpcServer)
	svc.RegisterAnalysisServer(grpcServer, svc.NewAnalysisService(proc, logger))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr, "email", proc.EmailEnabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc serving", "addr", cfg.Server.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		queue.Shutdown(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
