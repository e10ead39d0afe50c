package interceptors

import (
	"context"
	"time"

	"github.com/Dhoini/checkout-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryLogger логирует каждый unary-вызов с кодом ответа и длительностью.
func UnaryLogger(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []interface{}{
			"method", info.FullMethod,
			"code", code.String(),
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			log.Warnw("gRPC request failed", append(fields, "error", err)...)
		} else {
			log.Debugw("gRPC request handled", fields...)
		}
		return resp, err
	}
}
