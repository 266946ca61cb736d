package rpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	iface "OnnxInspector/interface"
)

// ServiceName reports NOT_SERVING while a run owns the worker so a line
// controller can tell whether a new batch would be accepted.
const ServiceName = "inspector"

type RequestCounter interface {
	GRPCRequest()
}

type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *zap.Logger

	mu   sync.Mutex
	busy bool
}

func NewServer(counter RequestCounter, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{health: health.NewServer(), log: log}
	s.grpc = grpc.NewServer(grpc.UnaryInterceptor(s.unaryInterceptor(counter)))
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

func (s *Server) unaryInterceptor(counter RequestCounter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if counter != nil {
			counter.GRPCRequest()
		}
		resp, err := handler(ctx, req)
		if err != nil {
			s.log.Debug("grpc", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return resp, err
	}
}

// SetBusy flips the inspector service status.
func (s *Server) SetBusy(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy == busy {
		return
	}
	s.busy = busy
	status := healthpb.HealthCheckResponse_SERVING
	if busy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.log.Debug("health status", zap.String("service", ServiceName), zap.Stringer("status", status))
}

// Watch follows progress snapshots until ctx ends or updates closes.
func (s *Server) Watch(ctx context.Context, updates <-chan iface.Progress) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-updates:
			if !ok {
				return
			}
			s.SetBusy(p.State.Active())
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// StartGRPCServer listens on port and serves in the background.
func StartGRPCServer(port int, counter RequestCounter, log *zap.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	s := NewServer(counter, log)
	go func() {
		if err := s.Serve(lis); err != nil {
			s.log.Error("grpc server", zap.Error(err))
		}
	}()
	s.log.Info("gRPC server started", zap.Int("port", port))
	return s, nil
}

func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
