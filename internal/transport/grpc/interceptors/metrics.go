package interceptors

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/trinhkhanh29/SmartLock-FaceRecognition/internal/infra/telemetry"
)

// GRPCMetricsOptions controls construction of gRPC metrics collectors.
type GRPCMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Subsystem  string
	Buckets    []float64
}

// GRPCMetrics counts unary calls served by the health and reflection services.
type GRPCMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewGRPCMetrics registers the collectors, reusing ones already present on the registerer.
func NewGRPCMetrics(opts GRPCMetricsOptions) (*GRPCMetrics, error) {
	namespace, subsystem := opts.Namespace, opts.Subsystem
	if namespace == "" {
		namespace = "smartlock"
	}
	if subsystem == "" {
		subsystem = "grpc"
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	labels := []string{"service", "method", "code"}

	requests, err := telemetry.Register(opts.Registerer, "gRPC requests", prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "Unary gRPC calls by service, method and status code.",
	}, labels))
	if err != nil {
		return nil, err
	}

	duration, err := telemetry.Register(opts.Registerer, "gRPC duration", prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Unary gRPC latency in seconds by service, method and status code.",
		Buckets:   buckets,
	}, labels))
	if err != nil {
		return nil, err
	}

	inFlight, err := telemetry.Register(opts.Registerer, "gRPC in-flight", prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "in_flight_requests",
		Help:      "Unary gRPC calls currently running by service.",
	}, []string{"service"}))
	if err != nil {
		return nil, err
	}

	return &GRPCMetrics{requests: requests, duration: duration, inFlight: inFlight}, nil
}

// UnaryServerInterceptor records the collectors for each call. A nil receiver passes through.
func (m *GRPCMetrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if m == nil {
			return handler(ctx, req)
		}

		service, method := splitFullMethod(info.FullMethod)
		gauge := m.inFlight.WithLabelValues(service)
		gauge.Inc()
		started := time.Now()

		resp, err := handler(ctx, req)

		gauge.Dec()
		code := status.Code(err).String()
		m.requests.WithLabelValues(service, method, code).Inc()
		m.duration.WithLabelValues(service, method, code).Observe(time.Since(started).Seconds())
		return resp, err
	}
}

// splitFullMethod turns "/pkg.Service/Method" into its two halves.
func splitFullMethod(full string) (service, method string) {
	service, method = "unknown", "unknown"
	full = strings.TrimPrefix(full, "/")
	if full == "" {
		return service, method
	}
	svc, m, ok := strings.Cut(full, "/")
	if !ok || strings.Contains(m, "/") {
		return full, method
	}
	if svc != "" {
		service = svc
	}
	if m != "" {
		method = m
	}
	return service, method
}
