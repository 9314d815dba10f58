package interceptors

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pribylovaa/account-service/internal/pkg/log"
)

// WithTimeout ограничивает вызов сроком d (timeouts.service), если клиент
// не передал свой дедлайн; d <= 0 отключает перехватчик. Ошибка, вызванная
// истечением этого срока, отдаётся как codes.DeadlineExceeded.
func WithTimeout(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok || d <= 0 {
			return handler(ctx, req)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		resp, err := handler(ctx, req)
		if err != nil && status.Code(err) == codes.Unknown && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.From(ctx).Warn("deadline_exceeded",
				slog.String("method", info.FullMethod),
				slog.Duration("timeout", d),
			)
			return nil, status.Error(codes.DeadlineExceeded, "deadline exceeded")
		}

		return resp, err
	}
}
