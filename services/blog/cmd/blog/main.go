package main

import (
	"context"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/internal/platform/config"
	"github.com/example/blog-platform/internal/platform/httpserver"
	"github.com/example/blog-platform/internal/platform/logging"
	"github.com/example/blog-platform/internal/platform/natsconn"
	"github.com/example/blog-platform/internal/platform/run"
	"github.com/example/blog-platform/services/blog/internal/comments"
	"github.com/example/blog-platform/services/blog/internal/events"
	"github.com/example/blog-platform/services/blog/internal/handlers"
	"github.com/example/blog-platform/services/blog/internal/posts"
	"github.com/example/blog-platform/services/blog/internal/users"
	"github.com/example/blog-platform/services/blog/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.ForService(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	runner := run.New(log)

	store := initStore(cfg, log, runner)
	threads := initCache(cfg, log, runner)

	// events are optional; without NATS they are logged and dropped
	var js nats.JetStreamContext
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName})
	if err != nil {
		log.Warn("nats unavailable, events disabled", zap.Error(err))
	} else {
		runner.OnShutdown("nats", func(context.Context) error { return nc.Drain() })
		if js, err = nc.JetStream(); err != nil {
			log.Warn("jetstream unavailable, events disabled", zap.Error(err))
			js = nil
		} else if err := natsconn.EnsureStream(js, events.StreamName, events.StreamSubjects, 7*24*time.Hour); err != nil {
			log.Warn("ensure stream failed, events disabled", zap.Error(err))
			js = nil
		}
	}

	registry := posts.NewRegistry(store, log.Named("posts"))
	manager := comments.NewManager(comments.Options{
		Store:        store,
		Posts:        registry,
		Users:        users.NewDirectory(store),
		Events:       events.NewNATS(js, log.Named("events")),
		Cache:        threads,
		Logger:       log.Named("comments"),
		StoreTimeout: cfg.Store.Timeout,
	})
	registry.SetPurger(manager)
	reconciler := comments.NewReconciler(manager, registry)

	ready := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return store.Ping(ctx)
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc:      ready,
		Logger:         log,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	limiter := httpserver.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
	handlers.Register(r, handlers.Deps{
		Comments:    manager,
		Posts:       registry,
		Log:         log,
		RequireUser: auth.RequireUser(auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}),
		Limit:       limiter.Middleware,
	})
	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Router: r})

	// gRPC server: health + reflection
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)
	go func() {
		log.Info("grpc server starting", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	runner.OnShutdown("grpc", func(ctx context.Context) error {
		healthSrv.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			grpcSrv.Stop()
		}
		return nil
	})
	runner.OnShutdown("http", srv.Shutdown)

	code := runner.WithSignals(func(ctx context.Context) error {
		go watchHealth(ctx, healthSrv, ready, log)

		if js != nil {
			w := worker.New(log.Named("worker"), js, worker.Handlers{
				ResumeDelete: manager.ResumeDelete,
				Reconcile:    reconciler.Reconcile,
			})
			go func() {
				if err := w.Run(ctx); err != nil {
					log.Error("reconcile worker stopped", zap.Error(err))
				}
			}()
		}
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// watchHealth mirrors store readiness into the gRPC health service.
func watchHealth(ctx context.Context, hs *health.Server, ready func() error, log *zap.Logger) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		status := healthpb.HealthCheckResponse_SERVING
		if err := ready(); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if status != last {
			log.Info("health status", zap.String("status", status.String()))
			hs.SetServingStatus("", status)
			last = status
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
