// http собирает HTTP API account-сервиса: chi-роутер, мидлвары и маршруты.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/account-service/internal/service"
	"github.com/pribylovaa/account-service/internal/transport/http/handlers"
	"github.com/pribylovaa/account-service/internal/transport/http/middleware"
)

// Options: параметры сборки роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // "/accounts" по умолчанию; пустой: маршруты на корне.
	// Metrics: необязательный мидлвар метрик (metrics.Metrics.Middleware).
	Metrics func(http.Handler) http.Handler
}

// NewRouter собирает http.Handler API.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Внешний -> внутренний. RequestID до Logging, чтобы id попал в лог.
	root.Use(
		middleware.Recover(),
		middleware.RequestID(),
		middleware.Logging(opts.Logger),
	)
	if opts.Metrics != nil {
		root.Use(opts.Metrics)
	}
	root.Use(
		middleware.Timeout(opts.Timeout),
		middleware.Authenticate(svc),
	)

	h := handlers.New(svc)

	if opts.BasePath != "" && opts.BasePath != "/" {
		root.Route(opts.BasePath, func(r chi.Router) { registerRoutes(r, h) })
		return root
	}

	registerRoutes(root, h)
	return root
}

func registerRoutes(r chi.Router, h *handlers.Handlers) {
	r.Post("/authenticate", h.Authenticate)
	r.Post("/refresh-token", h.RefreshToken)
	r.Post("/revoke-token", h.RevokeToken)
	r.Post("/register", h.Register)

	r.Get("/", h.ListAccounts)
	r.Post("/", h.CreateAccount)
	r.Get("/{id:[0-9]+}", h.GetAccount)
	r.Put("/{id:[0-9]+}", h.UpdateAccount)
	r.Delete("/{id:[0-9]+}", h.DeleteAccount)
}
