package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"intervox/internal/auth"
	"intervox/internal/provision"
	"intervox/internal/webhook"
)

type SessionProvisioner interface {
	Provision(ctx context.Context, req provision.Request) (provision.Result, error)
}

type Handler struct {
	Auth        auth.Authenticator
	Provisioner SessionProvisioner
	Webhook     *webhook.Handler
	Logger      *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Sessions provisions a disposable interview session for an authenticated
// operator.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if !h.ensureAuth(w, r) {
		return
	}

	var req provision.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	result, err := h.Provisioner.Provision(r.Context(), req)
	if err != nil {
		h.writeProvisionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) writeProvisionError(w http.ResponseWriter, err error) {
	if errors.Is(err, provision.ErrInvalidRequest) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var collab *provision.CollaboratorError
	if errors.As(err, &collab) {
		h.logger().Error("provisioning failed", "collaborator", collab.Collaborator, "error", collab.Err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":        collab.Err.Error(),
			"collaborator": collab.Collaborator,
		})
		return
	}

	h.logger().Error("provisioning failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (h *Handler) ensureAuth(w http.ResponseWriter, r *http.Request) bool {
	if _, err := h.Auth.Authenticate(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
