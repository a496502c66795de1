// Package health publishes the voucher worker's liveness over the standard
// gRPC health protocol.
package health

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/worker"
)

// Service is the name clients pass in HealthCheckRequest.
const Service = "voucher.Worker"

const defaultSyncInterval = time.Second

// StateSource is satisfied by *worker.Worker.
type StateSource interface {
	State() worker.State
}

type Server struct {
	gs       *grpc.Server
	hs       *health.Server
	src      StateSource
	interval time.Duration
	log      *zap.Logger
}

func New(src StateSource, log *zap.Logger) *Server {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	s := &Server{gs: gs, hs: hs, src: src, interval: defaultSyncInterval, log: log}
	s.Sync()
	return s
}

// Sync copies the worker state into the health status. Idle and running are
// both SERVING.
func (s *Server) Sync() {
	st := healthpb.HealthCheckResponse_SERVING
	if s.src.State() == worker.StateStopped {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.hs.SetServingStatus(Service, st)
	s.hs.SetServingStatus("", st)
}

// Serve accepts health checks on lis until ctx is done or Stop is called.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go s.syncLoop(ctx)
	s.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	return s.gs.Serve(lis)
}

func (s *Server) syncLoop(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sync()
		}
	}
}

// Stop marks every service NOT_SERVING and stops the gRPC server.
func (s *Server) Stop() {
	s.hs.Shutdown()
	s.gs.GracefulStop()
}
