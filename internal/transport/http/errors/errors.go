// errors стандартизирует ответы об ошибках HTTP-слоя account-сервиса.
// Ошибки сервиса и хранилища маппятся на HTTP-статус и стабильный код;
// сообщение безопасно и не раскрывает, какая из проверок не прошла.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/account-service/internal/service"
	"github.com/pribylovaa/account-service/internal/storage"
)

// APIError: единый формат ошибки для клиента.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse: корневой объект ответа.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

type mapping struct {
	target  error
	status  int
	code    string
	message string
}

// Порядок важен: первая совпавшая по errors.Is строка побеждает.
var table = []mapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect"},
	{service.ErrInvalidToken, http.StatusBadRequest, "invalid_token", "invalid token"},
	{service.ErrEmailTaken, http.StatusConflict, "email_taken", "email already taken"},
	{service.ErrNotFound, http.StatusNotFound, "not_found", "account not found"},
	{service.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "unauthorized"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden", "forbidden"},
	{service.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument", "invalid argument"},
	{storage.ErrConflict, http.StatusConflict, "conflict", "concurrent modification, retry"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout", "request timed out"},
}

// ToHTTP конвертирует ошибку в HTTP-статус и тело ответа.
// nil и неизвестные ошибки дают 500/internal без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	if err != nil {
		for _, m := range table {
			if errors.Is(err, m.target) {
				return m.status, ErrorResponse{Error: APIError{Code: m.code, Message: m.message}}
			}
		}
	}

	return http.StatusInternalServerError, ErrorResponse{
		Error: APIError{Code: "internal", Message: "internal error"},
	}
}

// WriteError пишет статус и тело ошибки; request_id берётся из X-Request-Id.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
