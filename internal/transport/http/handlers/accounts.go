package handlers

import (
	"net/http"

	"github.com/pribylovaa/account-service/internal/service"
	apierrors "github.com/pribylovaa/account-service/internal/transport/http/errors"
)

func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Authorize(r.Context(), service.OpListAccounts, service.Target{}); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out, err := h.svc.ListAccounts(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Authorize(r.Context(), service.OpCreateAccount, service.Target{}); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in createRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out, err := h.svc.CreateAccount(r.Context(), in.toInput())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if _, err := h.svc.Authorize(r.Context(), service.OpGetAccount, service.Target{AccountID: id}); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out, err := h.svc.AccountByID(r.Context(), id)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// UpdateAccount: смена роли учитывается только для Admin.
func (h *Handlers) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	caller, err := h.svc.Authorize(r.Context(), service.OpUpdateAccount, service.Target{AccountID: id})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	var in updateRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out, err := h.svc.UpdateAccount(r.Context(), caller, id, in.toInput())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if _, err := h.svc.Authorize(r.Context(), service.OpDeleteAccount, service.Target{AccountID: id}); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if err := h.svc.DeleteAccount(r.Context(), id); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Account deleted successfully"})
}
