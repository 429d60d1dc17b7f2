// Package grpcserver serves the gRPC health endpoint.
package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Interceptors log and count every call and turn handler panics into
// codes.Internal. Probes arrive every few seconds, so successful calls are
// logged at debug level.
type Interceptors struct {
	log   *zap.Logger
	calls *prometheus.CounterVec
}

// NewInterceptors registers conote_grpc_calls_total on reg. A nil registerer
// keeps the counter unregistered.
func NewInterceptors(log *zap.Logger, reg prometheus.Registerer) *Interceptors {
	if log == nil {
		log = zap.NewNop()
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conote",
		Subsystem: "grpc",
		Name:      "calls_total",
		Help:      "gRPC calls by method and status code.",
	}, []string{"method", "code"})
	if reg != nil {
		reg.MustRegister(calls)
	}
	return &Interceptors{log: log, calls: calls}
}

// Unary returns the unary server interceptor.
func (i *Interceptors) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() { i.observe(ctx, info.FullMethod, start, err) }()
		defer i.recoverPanic(info.FullMethod, &err)
		return next(ctx, req)
	}
}

// Stream returns the stream server interceptor used by health Watch.
func (i *Interceptors) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) (err error) {
		start := time.Now()
		defer func() { i.observe(ss.Context(), info.FullMethod, start, err) }()
		defer i.recoverPanic(info.FullMethod, &err)
		return next(srv, ss)
	}
}

func (i *Interceptors) recoverPanic(method string, err *error) {
	if r := recover(); r != nil {
		i.log.Error("panic",
			zap.Any("reason", r),
			zap.ByteString("stack", debug.Stack()),
			zap.String("method", method),
		)
		*err = status.Error(codes.Internal, "internal")
	}
}

func (i *Interceptors) observe(ctx context.Context, method string, start time.Time, err error) {
	code := status.Code(err)
	i.calls.WithLabelValues(method, code.String()).Inc()

	var remote string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	lvl := zap.DebugLevel
	if code != codes.OK && code != codes.Canceled {
		lvl = zap.WarnLevel
	}
	// metadata only, never payloads
	if ce := i.log.Check(lvl, "grpc"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		)
	}
}
