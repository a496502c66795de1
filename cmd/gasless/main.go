package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/api"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/config"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/health"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/journal"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/ledger"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/sponsor"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/worker"
)

const metricsNamespace = "gasless"

// appLedger is what the server needs from the chain; *ledger.Client has it all.
type appLedger interface {
	worker.Ledger
	sponsor.Reader
}

var _ appLedger = (*ledger.Client)(nil)

// app holds the wired components behind the HTTP server.
type app struct {
	worker  *worker.Worker
	journal *journal.Journal
	guard   *sponsor.Guard
	reg     *prometheus.Registry
	router  *gin.Engine
}

// newApp wires worker, journal, sponsor service and routes around l.
func newApp(cfg *config.Config, policy voucher.Policy, rdb *redis.Client, l appLedger, log *zap.Logger) *app {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	failed := journal.New(rdb, policy.Program)
	w := worker.New(l, worker.Options{
		Policy:        policy,
		PollInterval:  cfg.Worker.PollInterval(),
		SubmitTimeout: cfg.Worker.SubmitTimeout(),
		Journal:       failed,
		Metrics:       worker.NewMetrics(metricsNamespace, reg),
	}, log)

	guard := sponsor.NewGuard(rdb, cfg.Redis.InflightTTL())
	svc := sponsor.NewService(l, w, guard, policy, log)

	r := gin.New()
	r.Use(gin.Recovery())
	api.RegisterOps(r, reg, func() string { return w.State().String() })
	api.NewHandler(svc, api.Options{
		RequireSignature: cfg.Server.RequireSignature,
		Redis:            rdb,
		Failed:           failed,
	}, log).Register(r.Group("/voucher"))

	return &app{worker: w, journal: failed, guard: guard, reg: reg, router: r}
}

// start clears guards left by a previous process and starts the worker.
func (a *app) start(ctx context.Context, log *zap.Logger) error {
	if n, err := a.guard.ClearStale(ctx); err != nil {
		log.Warn("clear stale inflight guards", zap.Error(err))
	} else if n > 0 {
		log.Info("cleared stale inflight guards", zap.Int("count", n))
	}
	return a.worker.Start(ctx)
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}
	policy, err := cfg.Policy()
	if err != nil {
		log.Fatal("voucher policy", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Ledger client (voucher manager + sponsor key) ─────────────────────────
	client, err := ledger.NewClient(cfg, log)
	if err != nil {
		log.Fatal("ledger client init failed", zap.Error(err))
	}
	defer client.Close()

	if addr, ok := client.SponsorAddress(); ok {
		log.Info("sponsor account", zap.String("address", addr.Hex()))
	} else {
		log.Warn("SPONSOR_KEY not set; every batch will fail with a configuration error")
	}

	// ── Worker, service, routes ───────────────────────────────────────────────
	a := newApp(cfg, policy, rdb, client, log)
	if err := a.start(ctx, log); err != nil {
		log.Fatal("worker start failed", zap.Error(err))
	}

	// ── gRPC health ───────────────────────────────────────────────────────────
	var hs *health.Server
	if cfg.GRPC.HealthPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.HealthPort))
		if err != nil {
			log.Fatal("grpc health listen failed", zap.Error(err))
		}
		hs = health.New(a.worker, log)
		go func() {
			if err := hs.Serve(ctx, lis); err != nil {
				log.Error("grpc health server error", zap.Error(err))
			}
		}()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: a.router,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")

	// Finishes the in-flight batch, then rejects whatever is still queued so
	// waiting handlers return before the HTTP server drains.
	a.worker.Stop()
	if hs != nil {
		hs.Sync()
		hs.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	cancel()
	log.Info("shutdown complete")
}
