package rpc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/zoravur/orderfeed/internal/logutil"
	"github.com/zoravur/orderfeed/internal/metrics"
	"github.com/zoravur/orderfeed/internal/service"
)

const requestIDKey = "x-request-id"

// callLogger derives the per-call logger the same way the HTTP middleware
// does: reuse the caller's request id or mint one.
func callLogger(ctx context.Context, base *zap.Logger, method string) *zap.Logger {
	traceID := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDKey); len(v) > 0 {
			traceID = v[0]
		}
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return base.With(zap.String("trace_id", traceID), zap.String("method", method))
}

func observe(logger *zap.Logger, m *metrics.ServerMetrics, method string, start time.Time, err error) {
	code := status.Code(err)
	duration := time.Since(start)
	logger.Info("gRPC call complete",
		zap.String("code", code.String()),
		zap.Duration("duration", duration),
	)
	if m != nil {
		m.Requests.WithLabelValues(method, code.String()).Inc()
		m.LatencyMS.WithLabelValues(method).Observe(float64(duration.Microseconds()) / 1000)
	}
}

func UnaryLogging(base *zap.Logger, m *metrics.ServerMetrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		logger := callLogger(ctx, base, info.FullMethod)
		resp, err := handler(logutil.WithLogger(ctx, logger), req)
		observe(logger, m, info.FullMethod, start, err)
		return resp, err
	}
}

// loggedStream swaps in a context carrying the call logger.
type loggedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *loggedStream) Context() context.Context { return s.ctx }

func StreamLogging(base *zap.Logger, m *metrics.ServerMetrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger := callLogger(ss.Context(), base, info.FullMethod)
		err := handler(srv, &loggedStream{ServerStream: ss, ctx: logutil.WithLogger(ss.Context(), logger)})
		observe(logger, m, info.FullMethod, start, err)
		return err
	}
}

// NewGRPCServer builds a grpc.Server with the logging interceptors and the
// order service registered.
func NewGRPCServer(orders *service.Orders, logger *zap.Logger, m *metrics.ServerMetrics, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryLogging(logger, m)),
		grpc.ChainStreamInterceptor(StreamLogging(logger, m)),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterOrderServiceServer(s, NewServer(orders))
	return s
}
