package handlers

import (
	"net/http"

	"github.com/pribylovaa/account-service/internal/service"
	apierrors "github.com/pribylovaa/account-service/internal/transport/http/errors"
)

func (h *Handlers) Authenticate(w http.ResponseWriter, r *http.Request) {
	var in authenticateRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	res, err := h.svc.Authenticate(r.Context(), in.Email, in.Password, clientIP(r))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	setRefreshCookie(w, res.RefreshToken, res.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, authFromResult(res))
}

// RefreshToken ротирует токен из cookie; без cookie читается поле token тела.
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := refreshFromCookie(r)
	if token == "" {
		var in tokenRequest
		if err := decodeOptional(r, &in); err != nil {
			apierrors.WriteError(w, r, err)
			return
		}
		token = in.Token
	}

	res, err := h.svc.RotateRefreshToken(r.Context(), token, clientIP(r))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	setRefreshCookie(w, res.RefreshToken, res.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, authFromResult(res))
}

// RevokeToken отзывает токен из тела, иначе из cookie. Отозвать можно
// собственный токен; Admin: любой.
func (h *Handlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var in tokenRequest
	if err := decodeOptional(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	token := in.Token
	if token == "" {
		token = refreshFromCookie(r)
	}

	if token == "" {
		err := service.ErrInvalidToken
		if _, ok := service.CallerFrom(r.Context()); !ok {
			err = service.ErrUnauthenticated
		}
		apierrors.WriteError(w, r, err)
		return
	}

	if _, err := h.svc.Authorize(r.Context(), service.OpRevokeToken, service.Target{Token: token}); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.RevokeRefreshToken(r.Context(), token, clientIP(r)); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Token revoked"})
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if _, err := h.svc.Register(r.Context(), in.toInput()); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Registration successful"})
}
