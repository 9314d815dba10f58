// interceptors: unary-перехватчики gRPC-сервера (health, reflection).
package interceptors

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/pribylovaa/account-service/internal/pkg/log"
)

// requestIDKey совпадает с заголовком X-Request-Id HTTP-слоя.
const requestIDKey = "x-request-id"

// UnaryLogging кладёт в контекст логгер с request_id, method и peer и
// пишет одну запись "grpc_call" после обработки вызова.
// request_id берётся из metadata, иначе генерируется UUID.
func UnaryLogging(base *slog.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()

		rid := requestID(ctx)
		peerAddr := "-"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			peerAddr = p.Addr.String()
		}

		ctx = log.WithRequestID(log.Into(ctx, base), rid)
		ctx = log.With(ctx,
			slog.String("method", info.FullMethod),
			slog.String("peer", peerAddr),
		)
		l := log.From(ctx)

		resp, err := handler(ctx, req)

		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
		}
		l.Log(ctx, level, "grpc_call",
			slog.String("code", status.Code(err).String()),
			slog.Duration("dur", time.Since(start)),
		)

		return resp, err
	}
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDKey); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}

	return uuid.NewString()
}
