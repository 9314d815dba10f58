// log хранит request-scoped *slog.Logger в context.Context.
// HTTP- и gRPC-слой кладут в него логгер с request_id, а после проверки
// access-токена добавляют caller_id; сервис пишет через From(ctx).
package log

import (
	"context"
	"log/slog"
)

// Ключи атрибутов, общие для HTTP и gRPC.
const (
	KeyRequestID = "request_id"
	KeyCallerID  = "caller_id"
)

type ctxKey struct{}

// Into кладёт логгер в контекст.
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From достаёт логгер из контекста (или возвращает slog.Default()).
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// With дополняет логгер из контекста атрибутами и кладёт результат обратно.
func With(ctx context.Context, args ...any) context.Context {
	return Into(ctx, From(ctx).With(args...))
}

// WithRequestID помечает логгер контекста идентификатором запроса.
// Пустой id контекст не меняет.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}

	return With(ctx, slog.String(KeyRequestID, id))
}

// WithCaller помечает логгер контекста ID аутентифицированного аккаунта.
func WithCaller(ctx context.Context, accountID int64) context.Context {
	return With(ctx, slog.Int64(KeyCallerID, accountID))
}
