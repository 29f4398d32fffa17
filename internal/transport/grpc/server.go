package transportgrpc

import (
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcinterceptors "github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/transport/grpc/interceptors"
)

// ServiceName is the health-checked service advertised next to the overall "" entry.
const ServiceName = "smartlock.api"

// ServerDependencies encapsulates what the gRPC server layer needs.
type ServerDependencies struct {
	Logger  *zap.Logger
	Metrics *grpcinterceptors.GRPCMetrics
	Tracing *grpcinterceptors.TracingOptions
}

// Server exposes grpc.health.v1 and reflection for probes and tooling.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

// NewServer wires the health service with logging, metrics and tracing.
// Every service starts NOT_SERVING until SetServing(true).
func NewServer(deps ServerDependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	unaryInterceptors := []grpc.UnaryServerInterceptor{
		grpcinterceptors.LoggingUnaryInterceptor(logger),
		deps.Metrics.UnaryServerInterceptor(),
	}
	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(unaryInterceptors...)}
	if deps.Tracing != nil {
		opts = append(opts, grpcinterceptors.TracingServerOption(*deps.Tracing))
	}

	server := grpc.NewServer(opts...)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	// Register reflection service for tools like Postman, grpcurl, etc.
	reflection.Register(server)

	return &Server{grpc: server, health: healthServer, logger: logger}
}

// SetServing flips every advertised service between SERVING and NOT_SERVING.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	s.logger.Info("grpc health updated", zap.String("status", status.String()))
}

// Serve blocks accepting connections on lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop reports NOT_SERVING to watchers and then drains in-flight RPCs.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
