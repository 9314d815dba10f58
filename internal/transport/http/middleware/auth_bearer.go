package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pribylovaa/account-service/internal/pkg/log"
	"github.com/pribylovaa/account-service/internal/service"
)

// TokenValidator проверяет access-токен и возвращает ID аккаунта.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (int64, error)
}

// Authenticate проверяет Bearer-токен из Authorization и кладёт ID
// вызывающего в контекст (service.WithCaller). Отсутствующий или
// невалидный токен не прерывает запрос: защищённые операции получат
// ErrUnauthenticated от service.Authorize.
func Authenticate(v TokenValidator) Middleware {
	const prefix = "Bearer "

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, prefix) {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimSpace(auth[len(prefix):])
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := v.ValidateAccessToken(r.Context(), token)
			if err != nil {
				log.From(r.Context()).Debug("access_token_rejected", slog.String("err", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			ctx := service.WithCaller(r.Context(), id)
			ctx = log.WithCaller(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
