package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall
// ("") status.
const ServiceName = "conote"

// Pinger checks a backing dependency, typically the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health flips the serving status according to periodic pings. A nil Pinger
// always reports SERVING.
type Health struct {
	hs       *health.Server
	ping     Pinger
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewHealth constructs a reporter that pings every interval.
func NewHealth(ping Pinger, interval time.Duration, log *zap.Logger) *Health {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Health{hs: health.NewServer(), ping: ping, interval: interval, timeout: 2 * time.Second, log: log}
}

// Check pings once and publishes the result.
func (h *Health) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if h.ping != nil {
		pctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.ping.Ping(pctx)
		cancel()
		if err != nil {
			h.log.Warn("health ping failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
	return st
}

// Run checks immediately and then on every tick until ctx ends, after which
// every service reports NOT_SERVING.
func (h *Health) Run(ctx context.Context) {
	h.Check(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.hs.Shutdown()
			return
		case <-t.C:
			h.Check(ctx)
		}
	}
}

// NewServer builds a gRPC server with ic installed and the health service
// registered.
func NewServer(h *Health, ic *Interceptors, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts,
		grpc.ChainUnaryInterceptor(ic.Unary()),
		grpc.ChainStreamInterceptor(ic.Stream()),
	)
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.hs)
	return s
}
