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
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/doctext/internal/bootstrap"
	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/server"
)

func main() {
	cfg := common.LoadConfig()
	logger := bootstrap.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("failed to build extraction stack", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := run(ctx, app, logger); err != nil {
		logger.Error("doctextd stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("doctextd stopped")
}

func run(ctx context.Context, app *bootstrap.App, logger *slog.Logger) error {
	cfg := app.Config
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			return err
		}
		grpcServer := grpc.NewServer(
			grpc.MaxRecvMsgSize(int(cfg.Server.MaxUploadBytes)),
			grpc.UnaryInterceptor(server.UnaryLoggingInterceptor(logger)),
		)
		server.RegisterExtractorServer(grpcServer, server.NewExtractorService(app.Service, logger))

		healthServer := health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		healthServer.SetServingStatus(server.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

		g.Go(func() error {
			logger.Info("gRPC listening", "addr", cfg.Server.GRPCAddr)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-ctx.Done()
			healthServer.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	if cfg.Server.HTTPAddr != "" {
		var health server.HealthChecker
		if app.DB != nil {
			health = app.DB
		}
		var exporter server.JobExporter
		if app.Exporter != nil {
			exporter = app.Exporter
		}
		h, err := server.NewHTTPHandler(app.Service, exporter, health, server.HTTPConfig{
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			CORSOrigins:    cfg.Server.CORSOrigins,
		}, logger)
		if err != nil {
			return err
		}
		httpServer := &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           h.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("HTTP listening", "addr", cfg.Server.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
