package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/leaseshield/internal/apperror"
	"github.com/sakif/leaseshield/internal/auth"
	"github.com/sakif/leaseshield/internal/gate"
	"github.com/sakif/leaseshield/internal/model"
	"github.com/sakif/leaseshield/internal/repository"
	"github.com/sakif/leaseshield/internal/service"
)

// WebhookSecretHeader authenticates profile webhooks from the backend.
const WebhookSecretHeader = "X-Webhook-Secret"

// AdminHandler lets the admin and the backend change subscription profiles.
type AdminHandler struct {
	profiles      *service.ProfileService
	webhookSecret string
	logger        *slog.Logger
}

func NewAdminHandler(profiles *service.ProfileService, webhookSecret string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{profiles: profiles, webhookSecret: webhookSecret, logger: logger}
}

// RequireAdmin answers 403 unless the session email is exactly adminEmail.
// It applies the same rule as the page gate.
func RequireAdmin(adminEmail string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := gate.Decide(gate.Input{
				Session:      auth.SessionFromContext(r.Context()),
				Requirements: gate.Requirements{RequireAdmin: true},
				AdminEmail:   adminEmail,
			})
			if d.Kind != gate.KindAllow {
				writeError(w, apperror.Forbidden("admin only"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HTTP: GET /api/admin/users?limit=&offset=
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	users, err := h.profiles.ListUsers(r.Context(), repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HTTP: PUT /api/admin/users/{id}/tier  {"tier":"pro"}
func (h *AdminHandler) HandleSetTier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier model.Tier `json:"tier"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID := chi.URLParam(r, "id")
	p, err := h.profiles.SetTier(r.Context(), userID, req.Tier)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("admin changed tier",
		slog.String("admin", auth.SessionFromContext(r.Context()).Email),
		slog.String("user_id", userID),
		slog.String("tier", string(req.Tier)),
	)
	writeJSON(w, http.StatusOK, p)
}

// HandleProfileWebhook applies a profile update pushed by the backend after
// a payment or quota change. It is disabled when no secret is configured.
//
// HTTP: POST /webhooks/profile
func (h *AdminHandler) HandleProfileWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		http.NotFound(w, r)
		return
	}
	got := r.Header.Get(WebhookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
		writeError(w, apperror.Unauthorized("invalid webhook secret"))
		return
	}

	var u model.ProfileUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.profiles.Update(r.Context(), u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
